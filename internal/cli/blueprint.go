package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/pkg/blueprint"
	"github.com/matzehuels/factorygrid/pkg/errors"
	fgio "github.com/matzehuels/factorygrid/pkg/io"
	"github.com/matzehuels/factorygrid/pkg/runstore"
)

// blueprintFlags holds options for the blueprint command.
type blueprintFlags struct {
	label string
	icon  string
	check bool
}

// blueprintCommand creates the blueprint command that re-encodes a saved
// layout.
func (c *CLI) blueprintCommand() *cobra.Command {
	var flags blueprintFlags

	cmd := &cobra.Command{
		Use:   "blueprint [layout.json | run-dir]",
		Short: "Encode a saved layout as a blueprint string",
		Long: `Encode a saved layout as a blueprint string.

The argument is a layout JSON written by 'plan -f json' or a run directory,
in which case its best_layout.json is used. With --check the argument is a
file holding a blueprint string, which is decoded and summarized instead.`,
		Example: `  factorygrid blueprint "runs/2026-10-18 14.02.11 - solve"
  factorygrid blueprint layout.json --label "green circuits" --icon electronic-circuit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.check {
				return c.runBlueprintCheck(args[0])
			}
			return c.runBlueprint(args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.label, "label", blueprint.DefaultLabel, "blueprint label")
	cmd.Flags().StringVar(&flags.icon, "icon", "", "item shown as blueprint icon")
	cmd.Flags().BoolVar(&flags.check, "check", false, "decode a blueprint string file and summarize it")

	return cmd
}

// layoutPath resolves a run directory to its best layout file.
func layoutPath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, runstore.BestLayoutFile)
	}
	return path
}

func (c *CLI) runBlueprint(path string, flags blueprintFlags) error {
	path = layoutPath(path)
	doc, err := fgio.ImportJSON(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "read layout")
	}
	placements, err := doc.Placements()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid layout %s", path)
	}
	c.Logger.Debug("loaded layout", "path", path, "units", len(placements), "objective", doc.Objective)

	opts := []blueprint.Option{blueprint.WithLabel(flags.label)}
	if flags.icon != "" {
		opts = append(opts, blueprint.WithIcon(flags.icon))
	}
	s, err := blueprint.String(placements, opts...)
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}

func (c *CLI) runBlueprintCheck(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "read %s", path)
	}
	bp, err := blueprint.Decode(string(data))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid blueprint string")
	}

	recipes := make(map[string]int)
	for _, e := range bp.Entities {
		if e.Recipe != "" {
			recipes[e.Recipe]++
		}
	}

	printSuccess("Blueprint %s", StyleHighlight.Render(bp.Label))
	printKeyValue("Entities", StyleNumber.Render(fmt.Sprint(len(bp.Entities))))
	var rows [][]string
	for _, name := range sortedKeys(recipes) {
		rows = append(rows, []string{name, fmt.Sprint(recipes[name])})
	}
	if len(rows) > 0 {
		printNewline()
		fmt.Println(renderTable([]string{"Recipe", "Machines"}, rows, 1))
	}
	return nil
}
