// Package flowgraph renders allocation plans as Graphviz diagrams.
//
// # Usage
//
// Convert a plan to DOT, then render it to SVG:
//
//	dot := flowgraph.ToDOT(units, sources, plan, flowgraph.Options{})
//	svg, err := flowgraph.RenderSVG(dot)
//
// # Nodes
//
//   - units: rounded boxes labelled with the unit ID (and recipe and
//     throughput when Options.Detailed is set)
//   - sources: ellipses named after their item and position
//   - unsatisfied demand: one dashed red node per item that no producer or
//     source covers
//
// # Edges
//
// Producer edges are solid and point from producer to consumer. Source
// edges are dashed and drawn from every source of the group, since the
// solver only charges the nearest one. Edge labels carry the item and the
// flow in items per second.
package flowgraph
