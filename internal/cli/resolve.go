package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/server"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// resolveCommand creates the resolve command that prints a bill of materials.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		requests   []string
		categories []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [catalog.json]",
		Short: "Print the bill of materials for target rates",
		Long: `Print the bill of materials for target rates.

Each -r flag requests a recipe at a rate in items per second of its main
product. Intermediate recipes are expanded recursively; ingredients without
a recipe are listed as raw items.`,
		Example: `  factorygrid resolve recipes.json -r electronic-circuit=2 -r inserter=0.5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := parseRequests(requests)
			if err != nil {
				return err
			}
			opts := pipeline.Options{Requests: reqs, Categories: categories}
			return c.runResolve(cmd.Context(), args[0], opts, asJSON)
		},
	}

	cmd.Flags().StringArrayVarP(&requests, "request", "r", nil, "target as recipe=rate (repeatable)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "recipe categories to use (default: assembling machine categories)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, catalogPath string, opts pipeline.Options, asJSON bool) error {
	prog := newProgress(c.Logger)
	cat, _, err := pipeline.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Loaded %d recipes", len(cat.Recipes)))

	req, err := pipeline.NewRunner(nil, nil, c.Logger).Resolve(ctx, cat, opts)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(server.NewBOM(req))
	}
	printRequirements(req)
	return nil
}

// printRequirements prints the recipe and raw item tables of a bill of
// materials.
func printRequirements(req *demand.Requirements) {
	rows := make([][]string, 0, len(req.Recipes))
	for _, d := range req.Recipes {
		rows = append(rows, []string{
			d.Recipe.Name,
			d.Recipe.Category,
			formatRate(d.Rate),
			strconv.FormatFloat(d.Machines(), 'f', 2, 64),
			strconv.Itoa(d.Units()),
		})
	}
	fmt.Println(StyleTitle.Render("Recipes"))
	fmt.Println(renderTable([]string{"Recipe", "Category", "Rate", "Machines", "Units"}, rows, 2, 3, 4))

	rows = rows[:0]
	for _, d := range req.Items {
		rows = append(rows, []string{d.Item.Name, formatRate(d.Rate)})
	}
	if len(rows) > 0 {
		fmt.Println(StyleTitle.Render("Raw items"))
		fmt.Println(renderTable([]string{"Item", "Rate"}, rows, 1))
	}

	for _, name := range req.Unresolved {
		printWarning("no recipe or item named %s", name)
	}
	printKeyValue("Units", StyleNumber.Render(strconv.Itoa(req.TotalUnits())))
}
