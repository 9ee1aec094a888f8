package alloc

import (
	"math"
	"testing"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

func recipe(name string, energy, amount float64, ings ...catalog.Ingredient) *catalog.Recipe {
	return &catalog.Recipe{
		Name:        name,
		Energy:      energy,
		Ingredients: ings,
		MainProduct: &catalog.Product{Name: name, Amount: amount},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPlanGreedyOrder(t *testing.T) {
	// Each gear unit makes 2/s. The consumer needs 3/s of gear.
	gear := recipe("gear", 0.5, 1, catalog.Ingredient{Name: "iron", Amount: 2})
	belt := recipe("belt", 1, 1, catalog.Ingredient{Name: "gear", Amount: 1})

	g1 := &factory.Unit{ID: "x_gear_1", Recipe: gear, Amount: 1}
	g2 := &factory.Unit{ID: "x_gear_2", Recipe: gear, Amount: 1}
	b1 := &factory.Unit{ID: "x_belt_1", Recipe: belt, Amount: 3}

	plan := NewPlanner(nil).Plan([]*factory.Unit{g1, g2, b1}, nil)

	edges := plan.ProducerEdges()
	if len(edges) != 2 {
		t.Fatalf("got %d producer edges, want 2", len(edges))
	}
	if edges[0].Producer != g1 || !approx(edges[0].Amount, 2) {
		t.Errorf("edge 0 = %s %v, want x_gear_1 2", edges[0].Producer, edges[0].Amount)
	}
	if edges[1].Producer != g2 || !approx(edges[1].Amount, 1) {
		t.Errorf("edge 1 = %s %v, want x_gear_2 1", edges[1].Producer, edges[1].Amount)
	}
	if !approx(g1.Usage, 1) || !approx(g2.Usage, 0.5) {
		t.Errorf("usage = %v, %v, want 1, 0.5", g1.Usage, g2.Usage)
	}
	if len(plan.Unsatisfied) != 2 {
		// both gear units need iron and nothing produces it
		t.Errorf("len(Unsatisfied) = %d, want 2", len(plan.Unsatisfied))
	}
}

func TestPlanCapacityMonotonicity(t *testing.T) {
	gear := recipe("gear", 0.5, 1)
	belt := recipe("belt", 1, 1, catalog.Ingredient{Name: "gear", Amount: 1})

	g := &factory.Unit{ID: "x_gear_1", Recipe: gear, Amount: 1}
	units := []*factory.Unit{g}
	for i := 0; i < 5; i++ {
		units = append(units, &factory.Unit{ID: "belt", Recipe: belt, Amount: 0.9})
	}

	plan := NewPlanner(nil).Plan(units, nil)

	if g.Usage > 1 {
		t.Errorf("usage = %v exceeds 1", g.Usage)
	}
	var supplied float64
	for _, e := range plan.ProducerEdges() {
		if e.Amount <= 0 {
			t.Errorf("edge with non-positive amount %v", e.Amount)
		}
		supplied += e.Amount
	}
	if !approx(supplied, 2) {
		t.Errorf("supplied = %v, want 2 (the producer's full rate)", supplied)
	}

	var short float64
	for _, u := range plan.Unsatisfied {
		if u.Amount < 0 {
			t.Errorf("negative remaining %v", u.Amount)
		}
		short += u.Amount
	}
	if !approx(short, 4.5-2) {
		t.Errorf("unsatisfied = %v, want 2.5", short)
	}
}

func TestPlanSources(t *testing.T) {
	circuit := recipe("circuit", 0.5, 1,
		catalog.Ingredient{Name: "iron", Amount: 1},
		catalog.Ingredient{Name: "copper", Amount: 3},
	)
	c := &factory.Unit{ID: "x_circuit_1", Recipe: circuit, Amount: 2}

	sources := []factory.Source{
		{Item: "iron", At: factory.Coord{X: 0, Y: 0}, Force: 2},
		{Item: "copper", At: factory.Coord{X: 5, Y: 0}},
		{Item: "iron", At: factory.Coord{X: 9, Y: 0}, Force: 7},
		{Item: "circuit", At: factory.Coord{X: 3, Y: 3}},
		{Item: "stone", At: factory.Coord{X: 1, Y: 1}},
	}

	plan := NewPlanner(nil).Plan([]*factory.Unit{c}, sources)
	edges := plan.SourceEdges()

	// iron ingredient: iron group + circuit (own product) group.
	// copper ingredient: copper group + circuit group.
	if len(edges) != 4 {
		t.Fatalf("got %d source edges, want 4", len(edges))
	}

	iron := edges[0]
	if iron.Item != "iron" || len(iron.Sources) != 2 {
		t.Fatalf("edge 0 = %s with %d sources, want iron with 2", iron.Item, len(iron.Sources))
	}
	if iron.Force != 2 {
		t.Errorf("iron force = %v, want 2 (first source of group)", iron.Force)
	}
	if !approx(iron.Amount, 2) {
		t.Errorf("iron amount = %v, want 2", iron.Amount)
	}
	if edges[1].Item != "circuit" || edges[1].Force != factory.DefaultForce {
		t.Errorf("edge 1 = %s force %v, want circuit force 1", edges[1].Item, edges[1].Force)
	}
	if edges[2].Item != "copper" || !approx(edges[2].Amount, 6) {
		t.Errorf("edge 2 = %s %v, want copper 6", edges[2].Item, edges[2].Amount)
	}
	for _, e := range edges {
		if !e.IsSource() {
			t.Errorf("edge %s is not a source edge", e.Item)
		}
		if e.Item == "stone" {
			t.Error("unrelated source was attached")
		}
	}
	if len(plan.Unsatisfied) != 0 {
		t.Errorf("Unsatisfied = %+v, want none (every ingredient has a source)", plan.Unsatisfied)
	}
}

func TestPlanUnsatisfiedSkipsSourcedItems(t *testing.T) {
	circuit := recipe("circuit", 0.5, 1,
		catalog.Ingredient{Name: "iron", Amount: 1},
		catalog.Ingredient{Name: "copper", Amount: 3},
	)
	tests := []struct {
		name    string
		sources []factory.Source
		want    []string
	}{
		{"no sources", nil, []string{"iron", "copper"}},
		{"iron sourced", []factory.Source{{Item: "iron"}}, []string{"copper"}},
		{"own product only", []factory.Source{{Item: "circuit"}}, []string{"iron", "copper"}},
		{"both sourced", []factory.Source{{Item: "copper"}, {Item: "iron"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &factory.Unit{ID: "x_circuit_1", Recipe: circuit, Amount: 2}
			plan := NewPlanner(nil).Plan([]*factory.Unit{c}, tt.sources)

			if len(plan.Unsatisfied) != len(tt.want) {
				t.Fatalf("Unsatisfied = %+v, want items %v", plan.Unsatisfied, tt.want)
			}
			for i, item := range tt.want {
				if plan.Unsatisfied[i].Item != item {
					t.Errorf("Unsatisfied[%d] = %s, want %s", i, plan.Unsatisfied[i].Item, item)
				}
			}
		})
	}
}

func TestPlanSourcesAlongsideProducers(t *testing.T) {
	gear := recipe("gear", 0.5, 1)
	belt := recipe("belt", 1, 1, catalog.Ingredient{Name: "gear", Amount: 1})

	g := &factory.Unit{ID: "x_gear_1", Recipe: gear, Amount: 1}
	b := &factory.Unit{ID: "x_belt_1", Recipe: belt, Amount: 1}
	sources := []factory.Source{{Item: "gear", At: factory.Coord{X: 0, Y: 0}}}

	plan := NewPlanner(nil).Plan([]*factory.Unit{g, b}, sources)

	// The producer covers the belt's need, the source edge is still emitted.
	if len(plan.ProducerEdges()) != 1 || len(plan.SourceEdges()) != 1 {
		t.Errorf("producer edges = %d, source edges = %d, want 1 and 1",
			len(plan.ProducerEdges()), len(plan.SourceEdges()))
	}
	if len(plan.Unsatisfied) != 0 {
		t.Errorf("Unsatisfied = %+v, want none", plan.Unsatisfied)
	}
}
