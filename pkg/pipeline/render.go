package pipeline

import (
	"bytes"
	"fmt"

	"github.com/matzehuels/factorygrid/pkg/blueprint"
	"github.com/matzehuels/factorygrid/pkg/demand"
	fgio "github.com/matzehuels/factorygrid/pkg/io"
	"github.com/matzehuels/factorygrid/pkg/render/flowgraph"
)

// Render generates output artifacts in the requested formats. The best
// snapshot must be set for the layout formats; dot and svg only need the
// plan.
func Render(res *Result, opts Options) (map[string][]byte, error) {
	artifacts := make(map[string][]byte)

	for _, format := range opts.Formats {
		var data []byte
		var err error

		if res.Best == nil && layoutFormats[format] {
			return nil, fmt.Errorf("render %s: no layout was found", format)
		}

		switch format {
		case FormatBlueprint:
			if res.Blueprint == "" {
				res.Blueprint, err = blueprint.String(res.Best.Placements, opts.BlueprintOptions(res.Requirements)...)
			}
			data = []byte(res.Blueprint)
		case FormatTable:
			data = []byte(res.Best.Table)
		case FormatJSON:
			var buf bytes.Buffer
			err = fgio.WriteJSON(fgio.NewDocument(res.Best.Objective, res.Best.Bounds, res.Best.Placements), &buf)
			data = buf.Bytes()
		case FormatDOT:
			data = []byte(flowgraph.ToDOT(res.Units, opts.Sources, res.Allocation, flowgraph.Options{}))
		case FormatSVG:
			data, err = flowgraph.RenderSVG(flowgraph.ToDOT(res.Units, opts.Sources, res.Allocation, flowgraph.Options{}))
		default:
			return nil, fmt.Errorf("unsupported format: %s", format)
		}

		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}

	return artifacts, nil
}

var layoutFormats = map[string]bool{
	FormatBlueprint: true,
	FormatTable:     true,
	FormatJSON:      true,
}

// BlueprintOptions returns the blueprint options of a run: its label and
// the product of the first request as icon.
func (o *Options) BlueprintOptions(req *demand.Requirements) []blueprint.Option {
	bpOpts := []blueprint.Option{blueprint.WithLabel(o.Label)}
	if req != nil && len(o.Requests) > 0 {
		if d, ok := req.Recipe(o.Requests[0].Recipe); ok {
			bpOpts = append(bpOpts, blueprint.WithIcon(d.Recipe.MainName()))
		}
	}
	return bpOpts
}
