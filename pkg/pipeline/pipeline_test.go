package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/factorygrid/pkg/blueprint"
	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/cp"
	"github.com/matzehuels/factorygrid/pkg/decode"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.AddItem("iron-plate", 100)
	c.AddItem("gear", 100)
	c.AddItem("belt", 100)
	recipes := []*catalog.Recipe{
		{
			Name: "gear", Category: "crafting", Energy: 0.5,
			Ingredients: catalog.List[catalog.Ingredient]{{Type: "item", Name: "iron-plate", Amount: 2}},
			MainProduct: &catalog.Product{Type: "item", Name: "gear", Amount: 1},
		},
		{
			Name: "belt", Category: "crafting", Energy: 0.5,
			Ingredients: catalog.List[catalog.Ingredient]{
				{Type: "item", Name: "gear", Amount: 1},
				{Type: "item", Name: "iron-plate", Amount: 1},
			},
			MainProduct: &catalog.Product{Type: "item", Name: "belt", Amount: 2},
		},
		{
			Name: "smelting", Category: "smelting", Energy: 3.2,
			Ingredients: catalog.List[catalog.Ingredient]{{Type: "item", Name: "iron-ore", Amount: 1}},
			MainProduct: &catalog.Product{Type: "item", Name: "iron-plate", Amount: 1},
		},
	}
	for _, r := range recipes {
		if err := c.AddRecipe(r); err != nil {
			t.Fatalf("AddRecipe %s: %v", r.Name, err)
		}
	}
	return c
}

func beltOptions() Options {
	return Options{
		Requests:    []demand.Request{{Recipe: "belt", Rate: 1}},
		Sources:     []factory.Source{{Item: "iron-plate", At: factory.Coord{X: 0, Y: 0}}},
		TimeLimit:   10 * time.Second,
		CatalogHash: "test",
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"blueprint", false},
		{"table", false},
		{"json", false},
		{"dot", false},
		{"svg", false},
		{"png", true},
		{"SVG", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
		code   errors.Code
	}{
		{"no requests", func(o *Options) { o.Requests = nil }, errors.ErrCodeInvalidInput},
		{"bad recipe name", func(o *Options) { o.Requests[0].Recipe = "../belt" }, errors.ErrCodeInvalidInput},
		{"zero rate", func(o *Options) { o.Requests[0].Rate = 0 }, errors.ErrCodeInvalidInput},
		{"negative force", func(o *Options) { o.Sources[0].Force = -1 }, errors.ErrCodeInvalidInput},
		{"empty bounds", func(o *Options) { o.Bounds = &factory.Bounds{LX: 3, UX: 1, LY: 1, UY: 3} }, errors.ErrCodeInvalidInput},
		{"negative scale", func(o *Options) { o.Scale = -1 }, errors.ErrCodeInvalidInput},
		{"negative max units", func(o *Options) { o.MaxUnits = -1 }, errors.ErrCodeInvalidInput},
		{"bad format", func(o *Options) { o.Formats = []string{"png"} }, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := beltOptions()
			tt.modify(&o)
			err := o.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	o := Options{Requests: []demand.Request{{Recipe: "belt", Rate: 1}}}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if o.TimeLimit != DefaultTimeLimit || o.Label != DefaultLabel || o.Logger == nil {
		t.Errorf("defaults not applied: %+v", o)
	}
	if len(o.Categories) != len(catalog.DefaultCategories) {
		t.Errorf("categories = %v", o.Categories)
	}
	if !o.WantsFormat(FormatBlueprint) || !o.WantsFormat(FormatTable) || o.WantsFormat(FormatSVG) {
		t.Errorf("formats = %v", o.Formats)
	}

	// idempotent
	o.Label = "custom"
	if err := o.ValidateAndSetDefaults(); err != nil || o.Label != "custom" {
		t.Errorf("second call changed options: %v %q", err, o.Label)
	}
}

func TestRunnerPlan(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	p, err := r.Plan(context.Background(), testCatalog(t), beltOptions())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// smelting is outside the default categories, so iron-plate is a raw item
	if _, ok := p.Requirements.Recipe("smelting"); ok {
		t.Error("smelting should be filtered out")
	}
	if len(p.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(p.Units))
	}
	if p.Bounds != factory.GridFor(2) {
		t.Errorf("bounds = %s", p.Bounds)
	}
	if len(p.Allocation.ProducerEdges()) != 1 || len(p.Allocation.SourceEdges()) != 2 {
		t.Errorf("edges = %d producer, %d source",
			len(p.Allocation.ProducerEdges()), len(p.Allocation.SourceEdges()))
	}
}

func TestRunnerPlanUnknownRecipe(t *testing.T) {
	o := beltOptions()
	o.Requests[0].Recipe = "rocket"
	_, err := NewRunner(nil, nil, nil).Plan(context.Background(), testCatalog(t), o)
	if !errors.Is(err, errors.ErrCodeRecipeNotFound) {
		t.Errorf("err = %v, want RECIPE_NOT_FOUND", err)
	}
}

func TestRunnerPlanMaxUnits(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		maxUnits int
		wantErr  bool
	}{
		{"no limit", 40, 0, false},
		{"at limit", 1, 2, false},
		{"over limit", 40, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := beltOptions()
			o.Requests[0].Rate = tt.rate
			o.MaxUnits = tt.maxUnits
			p, err := NewRunner(nil, nil, nil).Plan(context.Background(), testCatalog(t), o)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeInvalidInput) {
					t.Fatalf("err = %v, want INVALID_INPUT", err)
				}
				if p != nil {
					t.Error("plan returned alongside the limit error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if tt.maxUnits > 0 && len(p.Units) > tt.maxUnits {
				t.Errorf("units = %d, over limit %d", len(p.Units), tt.maxUnits)
			}
		})
	}
}

type recorder struct{ snaps []*decode.Snapshot }

func (r *recorder) WriteSnapshot(s *decode.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

func TestRunnerExecute(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(fc, nil, nil)
	defer r.Close()
	cat := testCatalog(t)

	rec := &recorder{}
	opts := beltOptions()
	opts.Formats = []string{FormatBlueprint, FormatTable, FormatJSON, FormatDOT}
	opts.Sinks = []decode.Sink{rec}

	res, err := r.Execute(context.Background(), cat, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != cp.Optimal {
		t.Errorf("status = %s, want OPTIMAL", res.Status)
	}
	if len(rec.snaps) == 0 || rec.snaps[len(rec.snaps)-1] != res.Best {
		t.Error("sink did not receive the best snapshot last")
	}
	if res.CacheInfo.HintHit {
		t.Error("first run should not find a cached hint")
	}
	for _, f := range opts.Formats {
		if len(res.Artifacts[f]) == 0 {
			t.Errorf("artifact %s is empty", f)
		}
	}

	bp, err := blueprint.Decode(res.Blueprint)
	if err != nil {
		t.Fatalf("decode blueprint: %v", err)
	}
	if bp.Label != DefaultLabel || bp.Icons[0].Signal.Name != "belt" {
		t.Errorf("blueprint label/icon = %q/%q", bp.Label, bp.Icons[0].Signal.Name)
	}
	if !strings.Contains(string(res.Artifacts[FormatTable]), "belt") {
		t.Errorf("table:\n%s", res.Artifacts[FormatTable])
	}

	// Same problem again: the cached layout seeds the solver.
	again, err := r.Execute(context.Background(), cat, beltOptions())
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !again.CacheInfo.HintHit || again.CacheInfo.HintUnits != 2 {
		t.Errorf("cache info = %+v, want hint for 2 units", again.CacheInfo)
	}
	if again.Best.Objective != res.Best.Objective {
		t.Errorf("objective = %d, want %d", again.Best.Objective, res.Best.Objective)
	}
}

func TestRunnerExecuteNoIO(t *testing.T) {
	rec := &recorder{}
	opts := beltOptions()
	opts.NoIO = true
	opts.SolutionLimit = 1
	opts.Sinks = []decode.Sink{rec}

	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), testCatalog(t), opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rec.snaps) != 0 {
		t.Errorf("sink got %d snapshots with NoIO", len(rec.snaps))
	}
	if res.Stats.Solutions != 1 || res.Status != cp.Feasible {
		t.Errorf("solutions = %d status = %s, want 1 FEASIBLE", res.Stats.Solutions, res.Status)
	}
}

func TestRunnerExecuteInfeasible(t *testing.T) {
	opts := beltOptions()
	opts.Bounds = &factory.Bounds{LX: 1, UX: 1, LY: 1, UY: 1}

	res, err := NewRunner(nil, nil, nil).Execute(context.Background(), testCatalog(t), opts)
	if !errors.Is(err, errors.ErrCodeInfeasible) {
		t.Fatalf("err = %v, want INFEASIBLE", err)
	}
	if res == nil || res.Status != cp.Infeasible || res.Best != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRenderNeedsLayout(t *testing.T) {
	_, err := Render(&Result{}, Options{Formats: []string{FormatTable}})
	if err == nil {
		t.Error("expected error rendering a table without a layout")
	}
}
