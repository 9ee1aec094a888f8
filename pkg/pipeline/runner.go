package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/cp"
	"github.com/matzehuels/factorygrid/pkg/decode"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/factory"
	"github.com/matzehuels/factorygrid/pkg/observability"
	"github.com/matzehuels/factorygrid/pkg/placement"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating the stage wiring.
//
// The Runner is stateless except for the cache and logger; it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// If logger is nil, log output is discarded.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete resolve → plan → solve → render pipeline.
func (r *Runner) Execute(ctx context.Context, cat *catalog.Catalog, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	p, err := r.Plan(ctx, cat, opts)
	if err != nil {
		return nil, err
	}
	res, err := r.Solve(ctx, p, opts)
	if res != nil {
		res.Stats.ResolveTime = p.ResolveTime
		res.Stats.PlanTime = p.PlanTime
	}
	return res, err
}

// Resolve runs the resolve stage on the catalog filtered to the configured
// categories.
func (r *Runner) Resolve(ctx context.Context, cat *catalog.Catalog, opts Options) (*demand.Requirements, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForResolve(); err != nil {
		return nil, err
	}

	hooks := observability.Pipeline()
	hooks.OnResolveStart(ctx, len(opts.Requests))
	start := time.Now()

	req, err := demand.NewResolver(cat.Filter(opts.Categories), opts.Logger).Resolve(opts.Requests)
	if err != nil {
		hooks.OnResolveComplete(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}
	hooks.OnResolveComplete(ctx, len(req.Recipes), len(req.Items), time.Since(start), nil)

	opts.Logger.Info("resolved demand",
		"recipes", len(req.Recipes),
		"items", len(req.Items),
		"unresolved", len(req.Unresolved))
	return req, nil
}

// Plan runs the resolve and plan stages.
func (r *Runner) Plan(ctx context.Context, cat *catalog.Catalog, opts Options) (*Plan, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForResolve(); err != nil {
		return nil, err
	}
	if err := opts.ValidateForPlan(); err != nil {
		return nil, err
	}

	start := time.Now()
	req, err := r.Resolve(ctx, cat, opts)
	if err != nil {
		return nil, err
	}
	resolveTime := time.Since(start)

	start = time.Now()
	p, err := BuildPlan(req, opts)
	if err != nil {
		return nil, err
	}
	p.ResolveTime = resolveTime
	p.PlanTime = time.Since(start)
	observability.Pipeline().OnPlanComplete(ctx, len(p.Units), len(p.Allocation.Edges), len(p.Allocation.Unsatisfied))

	opts.Logger.Info("allocated flows",
		"units", len(p.Units),
		"grid", p.Bounds,
		"edges", len(p.Allocation.Edges),
		"unsatisfied", len(p.Allocation.Unsatisfied))
	return p, nil
}

// Solve builds the placement model for a plan, searches it and renders the
// best layout. Every improving layout is streamed to opts.Sinks.
//
// A result is returned alongside a solve error so callers can report the
// model size and solver status of a failed run.
func (r *Runner) Solve(ctx context.Context, p *Plan, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForSolve(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	res := &Result{
		Requirements: p.Requirements,
		Units:        p.Units,
		Bounds:       p.Bounds,
		Allocation:   p.Allocation,
	}
	res.Stats.Recipes = len(p.Requirements.Recipes)
	res.Stats.Units = len(p.Units)
	res.Stats.Edges = len(p.Allocation.Edges)
	res.Stats.Unsatisfied = len(p.Allocation.Unsatisfied)

	buildStart := time.Now()
	m, err := placement.Build(p.Units, opts.Sources, p.Allocation, p.Bounds, opts.PlacementOptions())
	if err != nil {
		return res, err
	}
	res.Model = m
	res.Stats.BuildTime = time.Since(buildStart)
	res.Stats.Vars = m.CP.NumVars()
	res.Stats.Constraints = m.CP.NumConstraints()
	logger.Info("built placement model",
		"vars", res.Stats.Vars,
		"constraints", res.Stats.Constraints,
		"offset", m.Offset,
		"duration", res.Stats.BuildTime)

	key := r.Keyer.PlacementKey(opts.PlacementKeyOpts(p.Bounds))
	if opts.CatalogHash != "" && !opts.Refresh {
		res.CacheInfo = r.loadHint(ctx, m, key, logger)
	}

	solver := opts.Solver
	if solver == nil {
		solver = cp.NewEngine(opts.TimeLimit, logger)
	}

	hooks := observability.Pipeline()
	dec := decode.New(m, logger, opts.DecodeOptions(), opts.Sinks...)
	cb := cp.CallbackFunc(func(sol *cp.Solution) {
		dec.OnSolution(sol)
		best := dec.Best()
		hooks.OnSolution(ctx, best.Index, best.Objective, best.Elapsed)
	})

	hooks.OnSolveStart(ctx, res.Stats.Vars, res.Stats.Constraints)
	solveStart := time.Now()
	status, err := m.Solve(ctx, solver, cb)
	res.Stats.SolveTime = time.Since(solveStart)
	res.Stats.Solutions = dec.Solutions()
	res.Status = status
	res.Best = dec.Best()
	hooks.OnSolveComplete(ctx, status.String(), res.Stats.SolveTime, err)
	if err != nil {
		return res, err
	}

	logger.Info("solved placement",
		"status", status,
		"objective", res.Best.Objective,
		"solutions", res.Stats.Solutions,
		"duration", res.Stats.SolveTime.Round(time.Millisecond))

	if opts.CatalogHash != "" {
		r.storeHint(ctx, key, res.Best.Coords(), logger)
	}

	renderStart := time.Now()
	res.Artifacts, err = Render(res, opts)
	res.Stats.RenderTime = time.Since(renderStart)
	if err != nil {
		return res, err
	}
	return res, nil
}

// loadHint seeds m with the cached best layout of the same problem.
func (r *Runner) loadHint(ctx context.Context, m *placement.Model, key string, logger *log.Logger) CacheInfo {
	var coords map[string]factory.Coord
	err := cache.RetryWithBackoff(ctx, func() error {
		return cache.GetJSON(ctx, r.Cache, key, &coords)
	})
	switch {
	case stderrors.Is(err, cache.ErrCacheMiss):
		observability.Cache().OnCacheMiss(ctx, "placement")
		return CacheInfo{}
	case err != nil:
		logger.Warn("hint lookup failed", "err", err)
		return CacheInfo{}
	}

	observability.Cache().OnCacheHit(ctx, "placement")
	n := m.Hint(coords)
	logger.Debug("seeded solver from cached layout", "units", n)
	return CacheInfo{HintHit: n > 0, HintUnits: n}
}

func (r *Runner) storeHint(ctx context.Context, key string, coords map[string]factory.Coord, logger *log.Logger) {
	if err := cache.SetJSON(ctx, r.Cache, key, coords, HintTTL); err != nil {
		logger.Warn("hint store failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "placement", len(coords))
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
