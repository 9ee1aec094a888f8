package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/config"
	"github.com/matzehuels/factorygrid/pkg/archive"
	"github.com/matzehuels/factorygrid/pkg/blueprint"
	"github.com/matzehuels/factorygrid/pkg/history"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
	"github.com/matzehuels/factorygrid/pkg/planfile"
	"github.com/matzehuels/factorygrid/pkg/runstore"
)

// planFlags holds command-line overrides for a plan file.
type planFlags struct {
	output        string
	formats       string
	timeLimit     time.Duration
	timeBudget    time.Duration
	solutionLimit int
	noIO          bool
	noCache       bool
	refresh       bool
	archive       bool
	runsDir       string
}

// planCommand creates the plan command that runs the full pipeline.
func (c *CLI) planCommand() *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "plan [plan.toml]",
		Short: "Resolve, allocate and place a factory block",
		Long: `Resolve, allocate and place a factory block.

The plan file (TOML or YAML) names the recipe catalog, the target rates and
the fixed sources. Every improving layout is written to a new run directory:

  <runs>/<timestamp> - solve/
    log.txt                  copy of this command's log
    best_output_string.txt   blueprint string of the best layout
    best_layout.txt          best layout as a text grid
    best_layout.json         best layout, re-encodable with 'blueprint'
    allSolves/               one blueprint string per improvement

The best layout of each problem is cached and seeds the next run of the
same plan; --refresh ignores it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlan(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "also write artifacts to <output>.<ext>")
	cmd.Flags().StringVarP(&flags.formats, "format", "f", "", "artifact formats: blueprint, table, json, dot, svg (comma-separated)")
	cmd.Flags().DurationVar(&flags.timeLimit, "time-limit", 0, "solver wall time limit (overrides plan file)")
	cmd.Flags().DurationVar(&flags.timeBudget, "time-budget", 0, "stop at the first improvement after this much time")
	cmd.Flags().IntVar(&flags.solutionLimit, "solution-limit", 0, "stop after this many improvements")
	cmd.Flags().BoolVar(&flags.noIO, "no-io", false, "do not write a run directory")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the hint cache")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "ignore the cached layout of this plan")
	cmd.Flags().BoolVar(&flags.archive, "archive", false, "store improvements in the configured MongoDB archive")
	cmd.Flags().StringVar(&flags.runsDir, "runs-dir", "", "run directory root (default from config)")
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormats())

	return cmd
}

// planOptions merges the plan file with flags and configuration.
func planOptions(f *planfile.File, flags planFlags, cfg *config.Config) (pipeline.Options, error) {
	opts, err := f.Options()
	if err != nil {
		return opts, err
	}
	if flags.timeLimit > 0 {
		opts.TimeLimit = flags.timeLimit
	}
	if opts.TimeLimit == 0 {
		opts.TimeLimit = cfg.Solver.TimeLimit
	}
	if flags.timeBudget > 0 {
		opts.TimeBudget = flags.timeBudget
	}
	if flags.solutionLimit > 0 {
		opts.SolutionLimit = flags.solutionLimit
	}
	if formats := parseFormats(flags.formats); formats != nil {
		opts.Formats = formats
	}
	if opts.Label == "" {
		opts.Label = strings.TrimSuffix(filepath.Base(f.Path()), filepath.Ext(f.Path()))
	}
	opts.NoIO = flags.noIO
	opts.Refresh = flags.refresh
	return opts, nil
}

func (c *CLI) runPlan(ctx context.Context, path string, flags planFlags) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	f, err := planfile.Load(path)
	if err != nil {
		return err
	}
	opts, err := planOptions(f, flags, cfg)
	if err != nil {
		return err
	}
	opts.Logger = c.Logger
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, "Loading catalog...")
	spinner.Start()
	cat, hash, err := pipeline.LoadCatalog(f.CatalogPath())
	if err != nil {
		spinner.StopWithError("Loading catalog failed")
		return err
	}
	opts.CatalogHash = hash
	c.Logger.Debug("loaded catalog", "path", f.CatalogPath(), "recipes", len(cat.Recipes), "hash", hash[:12])

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		spinner.Stop()
		return err
	}
	defer runner.Close()

	spinner.Update("Resolving demand and allocating flows...")
	p, err := runner.Plan(ctx, cat, opts)
	if err != nil {
		spinner.StopWithError("Planning failed")
		return err
	}
	spinner.Stop()

	var run *runstore.Run
	if !opts.NoIO {
		runsDir := cfg.Paths.RunsDir
		if flags.runsDir != "" {
			runsDir = flags.runsDir
		}
		run, err = c.startRun(ctx, runsDir, opts.Label, opts.BlueprintOptions(p.Requirements))
		if err != nil {
			return err
		}
		opts.Logger = teeLogger(c.Logger, os.Stderr, run.Log())
		opts.Sinks = append(opts.Sinks, run)

		closeSinks := c.attachSinks(ctx, cfg, flags, run, &opts)
		defer closeSinks()
	}

	res, solveErr := runner.Solve(ctx, p, opts)
	if res != nil {
		res.Stats.ResolveTime = p.ResolveTime
		res.Stats.PlanTime = p.PlanTime
	}
	if run != nil {
		if err := run.Close(solveErr); err != nil {
			c.Logger.Warn("close run", "dir", run.Dir(), "err", err)
		}
	}
	if solveErr != nil {
		if res != nil && res.Best != nil {
			printWarning("layout found but rendering failed")
		}
		return solveErr
	}

	printNewline()
	printSuccess("Layout %s", StyleHighlight.Render(res.Status.String()))
	fmt.Print(res.Best.Table)
	printKeyValue("Objective", StyleNumber.Render(fmt.Sprint(res.Best.Objective)))
	printKeyValue("Solutions", StyleNumber.Render(fmt.Sprint(res.Stats.Solutions)))
	printKeyValue("Solve time", res.Stats.SolveTime.Round(time.Millisecond).String())
	printStats(res.Stats.Units, res.Stats.Edges, res.Stats.Unsatisfied, res.CacheInfo.HintHit)

	if run != nil {
		printFile(filepath.Join(run.Dir(), runstore.BestStringFile))
		printFile(filepath.Join(run.Dir(), runstore.BestTableFile))
	} else if res.Blueprint != "" {
		printNewline()
		fmt.Println(res.Blueprint)
	}

	if flags.output != "" {
		if err := writeArtifacts(flags.output, res.Artifacts); err != nil {
			return err
		}
	}
	if run != nil {
		printNewline()
		printNextStep("Score history", appName+" history "+shortID(run.ID()))
	}
	return nil
}

// startRun creates the run directory for a plan.
func (c *CLI) startRun(ctx context.Context, runsDir, name string, bpOpts []blueprint.Option) (*runstore.Run, error) {
	store, err := runstore.NewStore(runsDir)
	if err != nil {
		return nil, err
	}
	run, err := store.Create(ctx, name, runstore.WithBlueprint(bpOpts...), runstore.WithSolver("cp"))
	if err != nil {
		return nil, err
	}
	c.Logger.Info("writing run", "dir", run.Dir())
	return run, nil
}

// attachSinks adds the score history and, when enabled, the solution
// archive as sinks of opts. Either failing to open only costs its output.
// The returned func closes whatever was opened.
func (c *CLI) attachSinks(ctx context.Context, cfg *config.Config, flags planFlags, run *runstore.Run, opts *pipeline.Options) func() {
	var closers []func()
	logger := opts.Logger
	m := run.Manifest()

	if db, err := history.Open(cfg.Paths.History); err != nil {
		logger.Warn("score history disabled", "path", cfg.Paths.History, "err", err)
	} else if err := db.StartRun(ctx, m.ID, m.Name, m.Started); err != nil {
		logger.Warn("score history disabled", "err", err)
		_ = db.Close()
	} else {
		opts.Sinks = append(opts.Sinks, db.Sink(m.ID))
		closers = append(closers, func() { _ = db.Close() })
	}

	if flags.archive || cfg.Archive.Enabled {
		if a, err := openArchive(ctx, cfg, logger); err == nil {
			opts.Sinks = append(opts.Sinks, a.Sink(m.ID, m.Name))
			closers = append(closers, func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Archive.Timeout)
				defer cancel()
				_ = a.Close(closeCtx)
			})
		}
	}

	return func() {
		for _, fn := range closers {
			fn()
		}
	}
}

func openArchive(ctx context.Context, cfg *config.Config, logger *log.Logger) (*archive.Archive, error) {
	if cfg.Archive.URI == "" {
		logger.Warn("archive requested but archive.uri is not configured")
		return nil, fmt.Errorf("archive uri not configured")
	}
	a, err := archive.Open(ctx, archive.Config{
		URI:        cfg.Archive.URI,
		Database:   cfg.Archive.Database,
		Collection: cfg.Archive.Collection,
		Timeout:    cfg.Archive.Timeout,
	})
	if err != nil {
		logger.Warn("solution archive disabled", "err", err)
		return nil, err
	}
	return a, nil
}

// artifactExt maps artifact formats to file extensions.
var artifactExt = map[string]string{
	pipeline.FormatBlueprint: "blueprint.txt",
	pipeline.FormatTable:     "txt",
	pipeline.FormatJSON:      "json",
	pipeline.FormatDOT:       "dot",
	pipeline.FormatSVG:       "svg",
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// writeArtifacts writes each artifact to base.<ext>.
func writeArtifacts(base string, artifacts map[string][]byte) error {
	for _, format := range sortedKeys(artifacts) {
		path := base + "." + artifactExt[format]
		if err := os.WriteFile(path, artifacts[format], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		printFile(path)
	}
	return nil
}
