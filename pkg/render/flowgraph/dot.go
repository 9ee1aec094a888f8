package flowgraph

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/factorygrid/pkg/alloc"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds recipe and throughput lines to unit labels.
	Detailed bool
}

// SourceID returns the node ID of a source.
func SourceID(s factory.Source) string {
	return fmt.Sprintf("src_%s_%d_%d", s.Item, s.At.X, s.At.Y)
}

// ToDOT converts units and their allocation plan to Graphviz DOT.
func ToDOT(units []*factory.Unit, sources []factory.Source, plan *alloc.Plan, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, u := range units {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", u.ID, unitLabel(u, opts.Detailed))
	}
	for _, s := range sources {
		label := fmt.Sprintf("%s\n%s", s.Item, s.At)
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, fillcolor=lightyellow];\n", SourceID(s), label)
	}

	missing := map[string]bool{}
	if plan != nil {
		for _, u := range plan.Unsatisfied {
			if !missing[u.Item] {
				missing[u.Item] = true
				fmt.Fprintf(&buf, "  %q [label=%q, style=\"rounded,dashed\", color=red, fontcolor=red];\n",
					missingID(u.Item), u.Item+"\n(unsupplied)")
			}
		}
	}

	buf.WriteString("\n")
	if plan != nil {
		for _, e := range plan.Edges {
			label := fmt.Sprintf("%s\n%.2f/s", e.Item, e.Amount)
			if !e.IsSource() {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.Producer.ID, e.Consumer.ID, label)
				continue
			}
			for _, s := range e.Sources {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q, style=dashed];\n", SourceID(s), e.Consumer.ID, label)
			}
		}
		for _, u := range plan.Unsatisfied {
			label := fmt.Sprintf("%.2f/s", u.Amount)
			fmt.Fprintf(&buf, "  %q -> %q [label=%q, style=dashed, color=red];\n", missingID(u.Item), u.Consumer.ID, label)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func missingID(item string) string { return "missing_" + item }

func unitLabel(u *factory.Unit, detailed bool) string {
	if !detailed {
		return u.ID
	}
	parts := []string{
		u.ID,
		"recipe: " + u.Recipe.Name,
		fmt.Sprintf("runs: %.3f/s", u.Amount),
		fmt.Sprintf("out: %.2f %s/s", u.Amount*u.Recipe.MainAmount(), u.Product()),
	}
	return strings.Join(parts, "\n")
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with a
// unitless one so the SVG scales in browsers.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
