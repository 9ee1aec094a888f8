package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
	"github.com/matzehuels/factorygrid/pkg/planfile"
	"github.com/matzehuels/factorygrid/pkg/render/flowgraph"
)

// graphFlags holds options for the graph command.
type graphFlags struct {
	format   string
	output   string
	detailed bool
}

// graphCommand creates the graph command that draws a plan's flow graph
// without solving it.
func (c *CLI) graphCommand() *cobra.Command {
	var flags graphFlags

	cmd := &cobra.Command{
		Use:   "graph [plan.toml]",
		Short: "Draw the ingredient flows of a plan",
		Long: `Draw the ingredient flows of a plan as a Graphviz diagram.

Units are boxes, sources are ellipses and unsatisfied demand is shown in red.
No placement is searched; the graph shows which unit feeds which.`,
		Example: `  factorygrid graph examples/plan.toml
  factorygrid graph examples/plan.toml -f svg -o flows.svg --detailed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", pipeline.FormatDOT, "output format: dot or svg")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&flags.detailed, "detailed", false, "show recipe and throughput in unit labels")
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormats(pipeline.FormatDOT, pipeline.FormatSVG))

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, path string, flags graphFlags) error {
	if flags.format != pipeline.FormatDOT && flags.format != pipeline.FormatSVG {
		return errors.New(errors.ErrCodeInvalidInput, "graph format must be dot or svg, got %q", flags.format)
	}

	f, err := planfile.Load(path)
	if err != nil {
		return err
	}
	opts, err := f.Options()
	if err != nil {
		return err
	}
	opts.Logger = c.Logger

	cat, _, err := pipeline.LoadCatalog(f.CatalogPath())
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	p, err := pipeline.NewRunner(nil, nil, c.Logger).Plan(ctx, cat, opts)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Planned %d units", len(p.Units)))

	dot := flowgraph.ToDOT(p.Units, opts.Sources, p.Allocation, flowgraph.Options{Detailed: flags.detailed})
	data := []byte(dot)
	if flags.format == pipeline.FormatSVG {
		if data, err = flowgraph.RenderSVG(dot); err != nil {
			return err
		}
	}

	if flags.output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(flags.output, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "write %s", flags.output)
	}
	printSuccess("Flow graph written")
	printFile(flags.output)
	return nil
}
