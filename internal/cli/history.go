package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/history"
	"github.com/matzehuels/factorygrid/pkg/runstore"
)

// historyCommand creates the history command that prints recorded scores.
func (c *CLI) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show the score history of plan runs",
		Long: `Show the score history of plan runs.

Without arguments, lists recent runs with their number of improvements and
best objective. With a run ID (or a unique prefix of one), prints every
improving solution of that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return c.runHistoryList(cmd.Context(), limit)
			}
			return c.runHistoryShow(cmd.Context(), args[0])
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list (0 for all)")
	return cmd
}

func (c *CLI) openHistory() (*history.DB, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	db, err := history.Open(cfg.Paths.History)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open history %s", cfg.Paths.History)
	}
	return db, nil
}

func (c *CLI) runHistoryList(ctx context.Context, limit int) error {
	db, err := c.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(ctx, limit)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "list runs")
	}
	if len(runs) == 0 {
		printInfo("No runs recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.Name,
			r.Started.Local().Format(time.DateTime),
			fmt.Sprint(r.Points),
			fmt.Sprint(r.Best),
		})
	}
	fmt.Println(renderTable([]string{"Run", "Name", "Started", "Solutions", "Best"}, rows, 3, 4))
	return nil
}

func (c *CLI) runHistoryShow(ctx context.Context, prefix string) error {
	db, err := c.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(ctx, 0)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "list runs")
	}
	var run *history.RunInfo
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, prefix) {
			if run != nil {
				return errors.New(errors.ErrCodeInvalidInput, "run prefix %q is ambiguous", prefix)
			}
			run = &runs[i]
		}
	}
	if run == nil {
		return errors.New(errors.ErrCodeRunNotFound, "no run matches %q", prefix)
	}

	points, err := db.Points(ctx, run.ID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "read points")
	}

	printSuccess("%s %s", StyleHighlight.Render(shortID(run.ID)), run.Name)
	rows := make([][]string, 0, len(points))
	var prev int64
	for i, p := range points {
		gain := ""
		if i > 0 && p.Objective > 0 {
			gain = fmt.Sprintf("%.1f%%", (float64(prev)/float64(p.Objective)-1)*100)
		}
		rows = append(rows, []string{
			fmt.Sprint(p.Index),
			fmt.Sprint(p.Objective),
			gain,
			p.Elapsed.Round(time.Millisecond).String(),
		})
		prev = p.Objective
	}
	fmt.Println(renderTable([]string{"#", "Objective", "Improvement", "Elapsed"}, rows, 0, 1, 2, 3))
	return nil
}

// runsCommand creates the runs command that lists run directories.
func (c *CLI) runsCommand() *cobra.Command {
	var runsDir string

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List run directories or print a run's best blueprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.runStore(runsDir)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return c.runRunsList(cmd.Context(), store)
			}
			return c.runRunsShow(cmd.Context(), store, args[0])
		},
	}

	cmd.Flags().StringVar(&runsDir, "runs-dir", "", "run directory root (default from config)")
	return cmd
}

func (c *CLI) runStore(dir string) (*runstore.Store, error) {
	if dir == "" {
		cfg, err := c.config()
		if err != nil {
			return nil, err
		}
		dir = cfg.Paths.RunsDir
	}
	store, err := runstore.NewStore(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open runs dir %s", dir)
	}
	return store, nil
}

func (c *CLI) runRunsList(ctx context.Context, store *runstore.Store) error {
	runs, err := store.List(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "list runs")
	}
	if len(runs) == 0 {
		printInfo("No runs in %s", store.Path())
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, m := range runs {
		rows = append(rows, []string{
			shortID(m.ID),
			m.Name,
			string(m.Status),
			m.Started.Local().Format(time.DateTime),
			fmt.Sprint(m.Solutions),
			fmt.Sprint(m.Best),
		})
	}
	fmt.Println(renderTable([]string{"Run", "Name", "Status", "Started", "Solutions", "Best"}, rows, 4, 5))
	return nil
}

func (c *CLI) runRunsShow(ctx context.Context, store *runstore.Store, id string) error {
	var (
		m   *runstore.Manifest
		err error
	)
	if id == "latest" {
		m, err = store.Latest(ctx)
	} else {
		m, err = store.Get(ctx, id)
	}
	if stderrors.Is(err, runstore.ErrNotFound) {
		return errors.Wrap(errors.ErrCodeRunNotFound, err, "run %s", id)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "read run %s", id)
	}

	printKeyValue("Run", StyleHighlight.Render(m.ID))
	printKeyValue("Status", string(m.Status))
	printKeyValue("Solutions", StyleNumber.Render(fmt.Sprint(m.Solutions)))
	if m.Error != "" {
		printKeyValue("Error", StyleWarning.Render(m.Error))
	}
	printFile(m.Dir)

	best, err := runstore.ReadBest(m)
	if err != nil {
		printWarning("no layout recorded")
		return nil
	}
	printNewline()
	fmt.Println(best)
	return nil
}

// shortID abbreviates a run ID for tables.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
