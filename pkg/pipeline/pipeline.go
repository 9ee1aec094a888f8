// Package pipeline provides the planning pipeline shared by the CLI and the
// HTTP API.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Resolve: turn target rates into a bill of materials (pkg/demand)
//  2. Plan: replicate recipes into units and allocate flows (pkg/factory,
//     pkg/alloc)
//  3. Solve: build the placement model and search it, streaming every
//     improving layout to the decoder and its sinks (pkg/placement,
//     pkg/cp, pkg/decode)
//  4. Render: produce artifacts from the best layout (blueprint string,
//     layout table, layout JSON, flow graph)
//
// Each stage can be run on its own. The best layout of every solved problem
// is cached and fed back as a solver hint the next time the same problem is
// planned.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Requests: []demand.Request{{Recipe: "electronic-circuit", Rate: 2}},
//	    Sources:  []factory.Source{{Item: "iron-plate", At: factory.Coord{X: 0, Y: 0}}},
//	}
//	result, err := runner.Execute(ctx, cat, opts)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Blueprint)
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/alloc"
	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/cp"
	"github.com/matzehuels/factorygrid/pkg/decode"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
	"github.com/matzehuels/factorygrid/pkg/placement"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultTimeLimit bounds the solver's wall time.
	DefaultTimeLimit = cp.DefaultTimeLimit

	// DefaultLabel is the blueprint label when none is given.
	DefaultLabel = "factorygrid layout"

	// HintTTL is how long a cached best layout is kept.
	HintTTL = 30 * 24 * time.Hour
)

// Format constants for output artifacts.
const (
	FormatBlueprint = "blueprint"
	FormatTable     = "table"
	FormatJSON      = "json"
	FormatDOT       = "dot"
	FormatSVG       = "svg"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatBlueprint: true,
	FormatTable:     true,
	FormatJSON:      true,
	FormatDOT:       true,
	FormatSVG:       true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a planning run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Resolve options
	Requests   []demand.Request `json:"requests"`
	Categories []string         `json:"categories,omitempty"`

	// Plan options
	Sources []factory.Source `json:"sources,omitempty"`
	// Bounds overrides the square grid sized for the unit count.
	Bounds *factory.Bounds `json:"bounds,omitempty"`
	// MaxUnits rejects plans that instantiate more units. Zero means no
	// limit. Model size grows with the square of the unit count.
	MaxUnits int `json:"-"`

	// Model options
	Scale        int64 `json:"scale,omitempty"`
	SourceOffset int64 `json:"source_offset,omitempty"`

	// Solve options
	TimeLimit     time.Duration `json:"time_limit,omitempty"`
	TimeBudget    time.Duration `json:"time_budget,omitempty"`
	SolutionLimit int           `json:"solution_limit,omitempty"`
	NoIO          bool          `json:"no_io,omitempty"`
	Refresh       bool          `json:"refresh,omitempty"` // ignore cached hints

	// Render options
	Formats []string `json:"formats,omitempty"`
	Label   string   `json:"label,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger   `json:"-"`
	Solver cp.Solver     `json:"-"`
	Sinks  []decode.Sink `json:"-"`

	// CatalogHash fingerprints the catalog for cache keys; empty disables
	// hint caching.
	CatalogHash string `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	Requirements *demand.Requirements
	Units        []*factory.Unit
	Bounds       factory.Bounds
	Allocation   *alloc.Plan
	Model        *placement.Model

	Status cp.Status
	Best   *decode.Snapshot

	// Blueprint is the encoded blueprint string of the best layout.
	Blueprint string

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Recipes     int
	Units       int
	Edges       int
	Unsatisfied int
	Vars        int
	Constraints int
	Solutions   int

	ResolveTime time.Duration
	PlanTime    time.Duration
	BuildTime   time.Duration
	SolveTime   time.Duration
	RenderTime  time.Duration
}

// CacheInfo tracks cache use.
type CacheInfo struct {
	HintHit   bool // a cached layout seeded the solver
	HintUnits int  // units the cached layout covered
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput,
			"invalid format: %q (must be one of: blueprint, table, json, dot, svg)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults for the full pipeline.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForResolve(); err != nil {
		return err
	}
	if err := o.ValidateForPlan(); err != nil {
		return err
	}
	if err := o.ValidateForSolve(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// ValidateForResolve checks the target requests.
func (o *Options) ValidateForResolve() error {
	if len(o.Requests) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one recipe request is required")
	}
	for _, r := range o.Requests {
		if err := errors.ValidateName(r.Recipe); err != nil {
			return err
		}
		if err := errors.ValidateRate(r.Rate); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "request %s", r.Recipe)
		}
	}
	if o.Categories == nil {
		o.Categories = catalog.DefaultCategories
	}
	o.setLogger()
	return nil
}

// ValidateForPlan checks sources and bounds.
func (o *Options) ValidateForPlan() error {
	for _, s := range o.Sources {
		if err := errors.ValidateName(s.Item); err != nil {
			return err
		}
		if err := errors.ValidateForce(s.Force); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "source %s", s.Item)
		}
	}
	if b := o.Bounds; b != nil && (b.UX < b.LX || b.UY < b.LY) {
		return errors.New(errors.ErrCodeInvalidInput, "empty %s", b)
	}
	if o.MaxUnits < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max_units must not be negative")
	}
	o.setLogger()
	return nil
}

// ValidateForSolve checks solver limits and applies their defaults.
func (o *Options) ValidateForSolve() error {
	if o.Scale < 0 || o.SourceOffset < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "scale and source_offset must not be negative")
	}
	if o.TimeBudget < 0 || o.SolutionLimit < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "time_budget and solution_limit must not be negative")
	}
	if o.TimeLimit == 0 {
		o.TimeLimit = DefaultTimeLimit
	}
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatBlueprint, FormatTable}
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	o.setLogger()
	return nil
}

func (o *Options) setLogger() {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// PlacementOptions returns the model builder options.
func (o *Options) PlacementOptions() placement.Options {
	return placement.Options{Scale: o.Scale, SourceOffset: o.SourceOffset}.WithDefaults()
}

// DecodeOptions returns the decoder options.
func (o *Options) DecodeOptions() decode.Options {
	return decode.Options{
		TimeBudget:    o.TimeBudget,
		SolutionLimit: o.SolutionLimit,
		DisableIO:     o.NoIO,
	}
}

// PlacementKeyOpts returns cache key options for the best-layout hint.
func (o *Options) PlacementKeyOpts(bounds factory.Bounds) cache.PlacementKeyOpts {
	p := o.PlacementOptions()
	return cache.PlacementKeyOpts{
		CatalogHash:  o.CatalogHash,
		Categories:   o.Categories,
		Requests:     o.Requests,
		Sources:      o.Sources,
		Bounds:       bounds,
		Scale:        p.Scale,
		SourceOffset: p.SourceOffset,
	}
}

// WantsFormat reports whether format was requested.
func (o *Options) WantsFormat(format string) bool {
	for _, f := range o.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// String summarizes the options for log lines.
func (o *Options) String() string {
	return fmt.Sprintf("%d requests, %d sources", len(o.Requests), len(o.Sources))
}
