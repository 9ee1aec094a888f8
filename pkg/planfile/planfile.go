// Package planfile loads planning jobs from TOML or YAML files.
//
// A plan file names the recipe catalog, the target rates and the fixed
// sources, plus optional grid bounds and solver settings:
//
//	catalog = "catalog.json"
//	label   = "green circuits"
//
//	[[request]]
//	recipe = "electronic-circuit"
//	rate   = 2
//
//	[[source]]
//	item = "iron-plate"
//	at   = { x = 0, y = 0 }
//
//	[solver]
//	time_limit = "5m"
//
// The format is chosen by file extension: .toml, or .yaml/.yml. Unknown keys
// are rejected in both formats.
package planfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// Supported file formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// File is a decoded plan file.
type File struct {
	// Catalog is the recipe catalog path, relative to the plan file.
	Catalog string `toml:"catalog" yaml:"catalog"`
	Label   string `toml:"label" yaml:"label"`

	Categories []string `toml:"categories" yaml:"categories"`
	Formats    []string `toml:"formats" yaml:"formats"`

	Requests []demand.Request `toml:"request" yaml:"requests"`
	Sources  []factory.Source `toml:"source" yaml:"sources"`
	Bounds   *factory.Bounds  `toml:"bounds" yaml:"bounds"`

	Solver Solver `toml:"solver" yaml:"solver"`

	// path is where the file was loaded from; empty for parsed data.
	path string
}

// Solver holds the solver settings. Durations use time.ParseDuration
// syntax ("90s", "5m").
type Solver struct {
	TimeLimit     string `toml:"time_limit" yaml:"time_limit"`
	TimeBudget    string `toml:"time_budget" yaml:"time_budget"`
	SolutionLimit int    `toml:"solution_limit" yaml:"solution_limit"`
	Scale         int64  `toml:"scale" yaml:"scale"`
	SourceOffset  int64  `toml:"source_offset" yaml:"source_offset"`
}

// FormatFor returns the plan format implied by a file name.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.New(errors.ErrCodeInvalidPlan, "unsupported plan file extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
}

// Load reads and validates a plan file.
func Load(path string) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "plan file %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "read plan file %s", path)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

// Parse decodes and validates plan data in the given format.
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPlan, err, "decode toml")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.ErrCodeInvalidPlan, "unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPlan, err, "decode yaml")
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidPlan, "unsupported plan format %q", format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the fields that Options cannot check on its own.
func (f *File) Validate() error {
	if err := errors.ValidatePath(f.Catalog); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPlan, err, "catalog")
	}
	if len(f.Requests) == 0 {
		return errors.New(errors.ErrCodeInvalidPlan, "at least one [[request]] is required")
	}
	if _, err := f.durations(); err != nil {
		return err
	}
	return nil
}

// CatalogPath returns the catalog path resolved against the plan file's
// directory. Absolute catalog paths are returned unchanged.
func (f *File) CatalogPath() string {
	if filepath.IsAbs(f.Catalog) || f.path == "" {
		return f.Catalog
	}
	return filepath.Join(filepath.Dir(f.path), f.Catalog)
}

// Path returns the file the plan was loaded from.
func (f *File) Path() string { return f.path }

// Options converts the plan into pipeline options. Runtime fields (logger,
// sinks, catalog hash) are left for the caller.
func (f *File) Options() (pipeline.Options, error) {
	d, err := f.durations()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Requests:      f.Requests,
		Categories:    f.Categories,
		Sources:       f.Sources,
		Bounds:        f.Bounds,
		Scale:         f.Solver.Scale,
		SourceOffset:  f.Solver.SourceOffset,
		TimeLimit:     d.limit,
		TimeBudget:    d.budget,
		SolutionLimit: f.Solver.SolutionLimit,
		Formats:       f.Formats,
		Label:         f.Label,
	}, nil
}

type durations struct {
	limit, budget time.Duration
}

func (f *File) durations() (durations, error) {
	var d durations
	var err error
	if d.limit, err = parseDuration("time_limit", f.Solver.TimeLimit); err != nil {
		return d, err
	}
	if d.budget, err = parseDuration("time_budget", f.Solver.TimeBudget); err != nil {
		return d, err
	}
	return d, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidPlan, err, "solver.%s", key)
	}
	if d < 0 {
		return 0, errors.New(errors.ErrCodeInvalidPlan, "solver.%s must not be negative", key)
	}
	return d, nil
}

// String summarizes the plan for log lines.
func (f *File) String() string {
	return fmt.Sprintf("%d requests, %d sources, catalog %s", len(f.Requests), len(f.Sources), f.Catalog)
}
