// Package render holds the visual outputs of factorygrid.
//
// The [flowgraph] subpackage draws the allocation plan as a Graphviz
// diagram: units and sources as nodes, material flows as labelled edges.
// Layout tables and blueprint strings live in pkg/decode and
// pkg/blueprint.
package render
