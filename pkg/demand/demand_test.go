package demand

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/errors"
)

// testCatalog builds A <- 2xB, B <- 3xiron, with C <- 1xA + 1xB + 1xmystery.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.AddItem("iron", 100)
	recipes := []*catalog.Recipe{
		{
			Name: "A", Category: "crafting", Energy: 1,
			Ingredients: catalog.List[catalog.Ingredient]{{Name: "B", Amount: 2}},
			MainProduct: &catalog.Product{Name: "A", Amount: 1},
		},
		{
			Name: "B", Category: "crafting", Energy: 0.5,
			Ingredients: catalog.List[catalog.Ingredient]{{Name: "iron", Amount: 3}},
			MainProduct: &catalog.Product{Name: "B", Amount: 1},
		},
		{
			Name: "C", Category: "crafting", Energy: 2,
			Ingredients: catalog.List[catalog.Ingredient]{
				{Name: "A", Amount: 1},
				{Name: "B", Amount: 1},
				{Name: "mystery", Amount: 5},
			},
			MainProduct: &catalog.Product{Name: "C", Amount: 2},
		},
	}
	for _, r := range recipes {
		if err := c.AddRecipe(r); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestResolveChain(t *testing.T) {
	res := NewResolver(testCatalog(t), nil)
	req, err := res.Resolve([]Request{{Recipe: "A", Rate: 1}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	b, ok := req.Recipe("B")
	if !ok || !approx(b.Rate, 2) {
		t.Errorf("B rate = %v, want 2", b.Rate)
	}
	if got := req.Machines("B"); got != 1 {
		t.Errorf("Machines(B) = %d, want 1", got)
	}
	a, ok := req.Recipe("A")
	if !ok || !approx(a.Rate, 1) {
		t.Errorf("A rate = %v, want 1", a.Rate)
	}
	iron, ok := req.Item("iron")
	if !ok || !approx(iron.Rate, 6) {
		t.Errorf("iron rate = %v, want 6", iron.Rate)
	}
	if got := req.TotalUnits(); got != 2 {
		t.Errorf("TotalUnits() = %d, want 2", got)
	}
}

func TestResolveOrder(t *testing.T) {
	res := NewResolver(testCatalog(t), nil)
	req, err := res.Resolve([]Request{{Recipe: "A", Rate: 1}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, d := range req.Recipes {
		names = append(names, d.Recipe.Name)
	}
	// Traversal entries come first; top-level requests not reached by the
	// traversal are appended afterwards.
	if got := strings.Join(names, ","); got != "B,A" {
		t.Errorf("recipe order = %s, want B,A", got)
	}
}

func TestResolveMerge(t *testing.T) {
	res := NewResolver(testCatalog(t), nil)
	req, err := res.Resolve([]Request{{Recipe: "B", Rate: 1.5}, {Recipe: "B", Rate: 2.5}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(req.Recipes) != 1 {
		t.Fatalf("len(Recipes) = %d, want 1", len(req.Recipes))
	}
	if !approx(req.Recipes[0].Rate, 4) {
		t.Errorf("merged rate = %v, want 4", req.Recipes[0].Rate)
	}
	iron, _ := req.Item("iron")
	if !approx(iron.Rate, 12) {
		t.Errorf("iron rate = %v, want 12", iron.Rate)
	}
}

func TestResolveDiamond(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{})
	res := NewResolver(testCatalog(t), logger)

	// 2/s of C = 1 run/s: 1xA (-> 2xB -> 6 iron) + 1xB (-> 3 iron).
	req, err := res.Resolve([]Request{{Recipe: "C", Rate: 2}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	tests := []struct {
		name string
		rate float64
	}{
		{"A", 1},
		{"B", 3},
		{"C", 2},
	}
	for _, tt := range tests {
		d, ok := req.Recipe(tt.name)
		if !ok || !approx(d.Rate, tt.rate) {
			t.Errorf("%s rate = %v, want %v", tt.name, d.Rate, tt.rate)
		}
	}
	iron, _ := req.Item("iron")
	if !approx(iron.Rate, 9) {
		t.Errorf("iron rate = %v, want 9", iron.Rate)
	}

	if len(req.Unresolved) != 1 || req.Unresolved[0] != "mystery" {
		t.Errorf("Unresolved = %v, want [mystery]", req.Unresolved)
	}
	if !strings.Contains(buf.String(), "couldn't find mystery") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

func TestResolveErrors(t *testing.T) {
	res := NewResolver(testCatalog(t), nil)

	tests := []struct {
		name string
		req  Request
		code errors.Code
	}{
		{"unknown recipe", Request{Recipe: "Z", Rate: 1}, errors.ErrCodeRecipeNotFound},
		{"zero rate", Request{Recipe: "A", Rate: 0}, errors.ErrCodeInvalidInput},
		{"negative rate", Request{Recipe: "A", Rate: -1}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := res.Resolve([]Request{tt.req})
			if !errors.Is(err, tt.code) {
				t.Errorf("Resolve() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestRecipeDemand(t *testing.T) {
	r := &catalog.Recipe{Name: "cable", Energy: 0.5, MainProduct: &catalog.Product{Name: "cable", Amount: 2}}
	d := RecipeDemand{Recipe: r, Rate: 10}

	if got := d.Runs(); !approx(got, 5) {
		t.Errorf("Runs() = %v, want 5", got)
	}
	if got := d.Machines(); !approx(got, 2.5) {
		t.Errorf("Machines() = %v, want 2.5", got)
	}
	if got := d.Units(); got != 3 {
		t.Errorf("Units() = %d, want 3", got)
	}
}

func ExampleRequirements_Summary() {
	c := catalog.New()
	c.AddItem("iron", 100)
	_ = c.AddRecipe(&catalog.Recipe{
		Name: "gear", Category: "crafting", Energy: 0.5,
		Ingredients: catalog.List[catalog.Ingredient]{{Name: "iron", Amount: 2}},
		MainProduct: &catalog.Product{Name: "gear", Amount: 1},
	})

	req, _ := NewResolver(c, nil).Resolve([]Request{{Recipe: "gear", Rate: 3}})
	fmt.Print(req.Summary())
	// Output:
	// total recipes: 1 (Σ rate: 3.00/s)
	// (assemblers: 1.50x) (amount: 3.00/s) -- gear
	//
	// total items: 1 (Σ rate: 6.00/s)
	// iron: 6.00/s
}
