package archive

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/decode"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

func snapshot(objective int64) *decode.Snapshot {
	gear := &catalog.Recipe{
		Name: "gear", Energy: 0.5,
		MainProduct: &catalog.Product{Name: "gear", Amount: 1},
	}
	bounds := factory.GridFor(1)
	u := &factory.Unit{ID: "x_gear_1", Recipe: gear, Amount: 1, Bounds: bounds}
	return &decode.Snapshot{
		Index:      1,
		Objective:  objective,
		Elapsed:    2500 * time.Millisecond,
		Time:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600)),
		Bounds:     bounds,
		Placements: []factory.Placement{factory.NewPlacement(u, factory.Coord{X: 2, Y: 1})},
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord("run", "gears", snapshot(42))

	if r.Objective != 42 || r.ElapsedMS != 2500 || r.Index != 1 {
		t.Errorf("record = %+v", r)
	}
	if r.RecordedAt.Location() != time.UTC {
		t.Errorf("recorded at %v, want UTC", r.RecordedAt)
	}
	if len(r.Layout.Units) != 1 || r.Layout.Units[0].X != 2 {
		t.Errorf("layout = %+v", r.Layout)
	}
}

func TestOpenRequiresURI(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Error("expected error for empty uri")
	}
}

// TestArchiveMongo runs against a live server when FACTORYGRID_TEST_MONGO_URI
// is set.
func TestArchiveMongo(t *testing.T) {
	uri := os.Getenv("FACTORYGRID_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FACTORYGRID_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	a, err := Open(ctx, Config{URI: uri, Collection: "solutions_test"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close(ctx)

	run := uuid.NewString()
	sink := a.Sink(run, "gears")
	for _, obj := range []int64{30, 12, 20} {
		if err := sink.WriteSnapshot(snapshot(obj)); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}

	best, err := a.Best(ctx, run)
	if err != nil {
		t.Fatalf("Best: %v", err)
	}
	if best.Objective != 12 {
		t.Errorf("best objective = %d, want 12", best.Objective)
	}

	if _, err := a.Best(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Best of unknown run = %v, want ErrNotFound", err)
	}
}
