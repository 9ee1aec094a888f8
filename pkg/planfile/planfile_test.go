package planfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

const tomlPlan = `
catalog = "recipes.json"
label   = "circuits"
formats = ["blueprint", "json"]

[[request]]
recipe = "electronic-circuit"
rate   = 2

[[request]]
recipe = "inserter"
rate   = 0.5

[[source]]
item  = "iron-plate"
at    = { x = 0, y = 0 }
force = 2

[bounds]
lx = 1
ux = 4
ly = 1
uy = 3

[solver]
time_limit     = "90s"
time_budget    = "30s"
solution_limit = 5
`

const yamlPlan = `
catalog: recipes.json
requests:
  - recipe: electronic-circuit
    rate: 2
sources:
  - item: copper-plate
    at: {x: 5, y: 0}
solver:
  time_limit: 2m
`

func TestParseTOML(t *testing.T) {
	f, err := Parse([]byte(tomlPlan), FormatTOML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Requests) != 2 || f.Requests[1].Recipe != "inserter" || f.Requests[1].Rate != 0.5 {
		t.Errorf("requests = %+v", f.Requests)
	}
	if len(f.Sources) != 1 || f.Sources[0].At != (factory.Coord{X: 0, Y: 0}) || f.Sources[0].Force != 2 {
		t.Errorf("sources = %+v", f.Sources)
	}

	opts, err := f.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.TimeLimit != 90*time.Second || opts.TimeBudget != 30*time.Second || opts.SolutionLimit != 5 {
		t.Errorf("solver options = %v %v %d", opts.TimeLimit, opts.TimeBudget, opts.SolutionLimit)
	}
	if opts.Bounds == nil || *opts.Bounds != (factory.Bounds{LX: 1, UX: 4, LY: 1, UY: 3}) {
		t.Errorf("bounds = %v", opts.Bounds)
	}
	if opts.Label != "circuits" || len(opts.Formats) != 2 {
		t.Errorf("render options = %q %v", opts.Label, opts.Formats)
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Errorf("options rejected: %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	f, err := Parse([]byte(yamlPlan), FormatYAML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Catalog != "recipes.json" || len(f.Requests) != 1 {
		t.Errorf("plan = %+v", f)
	}
	if f.Sources[0].At != (factory.Coord{X: 5, Y: 0}) {
		t.Errorf("source at %v", f.Sources[0].At)
	}
	opts, err := f.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.TimeLimit != 2*time.Minute || opts.Bounds != nil {
		t.Errorf("options = %+v", opts)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
	}{
		{"no catalog", FormatTOML, "[[request]]\nrecipe = \"a\"\nrate = 1\n"},
		{"catalog traversal", FormatTOML, "catalog = \"../x.json\"\n[[request]]\nrecipe = \"a\"\nrate = 1\n"},
		{"no requests", FormatTOML, "catalog = \"c.json\"\n"},
		{"unknown toml key", FormatTOML, "catalog = \"c.json\"\nsolver_time = 3\n[[request]]\nrecipe = \"a\"\nrate = 1\n"},
		{"unknown yaml key", FormatYAML, "catalog: c.json\nrequest:\n  - recipe: a\n    rate: 1\n"},
		{"bad duration", FormatYAML, "catalog: c.json\nrequests: [{recipe: a, rate: 1}]\nsolver: {time_limit: soon}\n"},
		{"negative duration", FormatYAML, "catalog: c.json\nrequests: [{recipe: a, rate: 1}]\nsolver: {time_budget: -1s}\n"},
		{"malformed toml", FormatTOML, "catalog = "},
		{"unknown format", "json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if !errors.Is(err, errors.ErrCodeInvalidPlan) {
				t.Errorf("err = %v, want INVALID_PLAN", err)
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"plan.toml", FormatTOML, false},
		{"dir/plan.YAML", FormatYAML, false},
		{"plan.yml", FormatYAML, false},
		{"plan.json", "", true},
		{"plan", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFor(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans", "circuits.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(tomlPlan), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Path() != path {
		t.Errorf("Path() = %q", f.Path())
	}
	if want := filepath.Join(dir, "plans", "recipes.json"); f.CatalogPath() != want {
		t.Errorf("CatalogPath() = %q, want %q", f.CatalogPath(), want)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestExamples(t *testing.T) {
	for _, name := range []string{"plan.toml", "plan.yaml"} {
		t.Run(name, func(t *testing.T) {
			f, err := Load(filepath.Join("..", "..", "examples", name))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			opts, err := f.Options()
			if err != nil {
				t.Fatalf("Options: %v", err)
			}
			if err := opts.ValidateAndSetDefaults(); err != nil {
				t.Fatalf("ValidateAndSetDefaults: %v", err)
			}

			cat, _, err := pipeline.LoadCatalog(f.CatalogPath())
			if err != nil {
				t.Fatalf("LoadCatalog: %v", err)
			}
			for _, r := range opts.Requests {
				if _, ok := cat.Recipe(r.Recipe); !ok {
					t.Errorf("request %s not in catalog", r.Recipe)
				}
			}
		})
	}
}

func ExampleParse() {
	f, err := Parse([]byte(yamlPlan), FormatYAML)
	if err != nil {
		panic(err)
	}
	fmt.Println(f)
	// Output: 1 requests, 1 sources, catalog recipes.json
}
