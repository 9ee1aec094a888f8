package blueprint

import (
	"strings"
	"testing"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

func placements() []factory.Placement {
	gear := &catalog.Recipe{
		Name: "gear", Energy: 0.5,
		Ingredients: catalog.List[catalog.Ingredient]{{Name: "iron", Amount: 2}},
		MainProduct: &catalog.Product{Name: "gear", Amount: 1},
	}
	belt := &catalog.Recipe{
		Name: "belt", Energy: 0.5,
		Ingredients: catalog.List[catalog.Ingredient]{
			{Name: "gear", Amount: 1},
			{Name: "iron", Amount: 1},
		},
		MainProduct: &catalog.Product{Name: "belt", Amount: 2},
	}
	return []factory.Placement{
		factory.NewPlacement(&factory.Unit{ID: "x_gear_1", Recipe: gear, Amount: 1}, factory.Coord{X: 1, Y: 1}),
		factory.NewPlacement(&factory.Unit{ID: "x_belt_1", Recipe: belt, Amount: 1}, factory.Coord{X: 2, Y: 1}),
		factory.NewPlacement(&factory.Unit{ID: "x_gear_2", Recipe: gear, Amount: 1}, factory.Coord{X: 2, Y: 2}),
	}
}

func TestBuildTiles(t *testing.T) {
	bp := Build(placements(), WithLabel("belts"))

	if got, want := len(bp.Entities), 3*entitiesPerTile; got != want {
		t.Fatalf("entities = %d, want %d", got, want)
	}
	if bp.Label != "belts" || bp.Version != Version {
		t.Errorf("label/version = %q/%d", bp.Label, bp.Version)
	}
	if got := bp.Icons[0].Signal.Name; got != "gear" {
		t.Errorf("icon = %q, want last product gear", got)
	}

	for i, e := range bp.Entities {
		if e.Number != i+1 {
			t.Errorf("entity %d numbered %d", i, e.Number)
		}
	}

	// second placement sits at solver (2,1): tile origin (5,0)
	asm := bp.Entities[entitiesPerTile]
	if asm.Name != EntityAssembler || asm.Recipe != "belt" {
		t.Fatalf("entity = %+v, want belt assembler", asm)
	}
	if asm.Position != (Position{X: 6.5, Y: 1.5}) {
		t.Errorf("assembler at %+v, want (6.5, 1.5)", asm.Position)
	}

	req := bp.Entities[entitiesPerTile+1]
	want := []RequestFilter{{Index: 1, Name: "gear", Count: 8}, {Index: 2, Name: "iron", Count: 8}}
	if len(req.RequestFilters) != len(want) {
		t.Fatalf("filters = %+v", req.RequestFilters)
	}
	for i := range want {
		if req.RequestFilters[i] != want[i] {
			t.Errorf("filter %d = %+v, want %+v", i, req.RequestFilters[i], want[i])
		}
	}
	if !req.RequestFromBuffers {
		t.Error("requester should request from buffers")
	}
}

func TestPoleNeighbours(t *testing.T) {
	bp := Build(placements())

	tests := []struct {
		tile int
		want []int
	}{
		{0, nil},
		{1, []int{6}},  // left of (2,1) is (1,1)
		{2, []int{12}}, // above (2,2) is (2,1)
	}
	for _, tt := range tests {
		pole := bp.Entities[tt.tile*entitiesPerTile+5]
		if pole.Name != EntityPole {
			t.Fatalf("tile %d: entity %q is not a pole", tt.tile, pole.Name)
		}
		if len(pole.Neighbours) != len(tt.want) {
			t.Fatalf("tile %d: neighbours = %v, want %v", tt.tile, pole.Neighbours, tt.want)
		}
		for i := range tt.want {
			if pole.Neighbours[i] != tt.want[i] {
				t.Errorf("tile %d: neighbours = %v, want %v", tt.tile, pole.Neighbours, tt.want)
			}
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	s, err := String(placements(), WithIcon("belt"))
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if !strings.HasPrefix(s, "0") {
		t.Fatalf("string %q lacks version prefix", s[:8])
	}

	bp, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(bp.Entities) != 3*entitiesPerTile {
		t.Errorf("decoded %d entities", len(bp.Entities))
	}
	if bp.Icons[0].Signal.Name != "belt" {
		t.Errorf("icon = %q", bp.Icons[0].Signal.Name)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong version", "1eJyrVkrLz1eyUkpKLFKqBQAdegQ0"},
		{"bad base64", "0!!!"},
		{"not zlib", "0aGVsbG8="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	bp := Build(nil)
	if len(bp.Entities) != 0 {
		t.Errorf("entities = %d", len(bp.Entities))
	}
	if bp.Icons[0].Signal.Name != DefaultIcon {
		t.Errorf("icon = %q", bp.Icons[0].Signal.Name)
	}
}
