package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/factorygrid/pkg/decode"
)

func open(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", FileName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndPoints(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := db.StartRun(ctx, "run-1", "gears", start); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	sink := db.Sink("run-1")
	for i, obj := range []int64{900, 400, 250} {
		s := &decode.Snapshot{
			Index:     i + 1,
			Objective: obj,
			Elapsed:   time.Duration(i+1) * 1500 * time.Millisecond,
			Time:      start.Add(time.Duration(i+1) * time.Second),
		}
		if err := sink.WriteSnapshot(s); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}

	pts, err := db.Points(ctx, "run-1")
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("points = %d, want 3", len(pts))
	}
	if pts[2].Objective != 250 || pts[2].Elapsed != 4500*time.Millisecond {
		t.Errorf("last point = %+v", pts[2])
	}
	if !pts[0].At.Equal(start.Add(time.Second)) {
		t.Errorf("first point at %v", pts[0].At)
	}
}

func TestRuns(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	db.StartRun(ctx, "old", "first", start)
	db.StartRun(ctx, "new", "second", start.Add(time.Hour))
	db.Record(ctx, "old", Point{Index: 1, Objective: 50, At: start})
	db.Record(ctx, "old", Point{Index: 2, Objective: 20, At: start})

	runs, err := db.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != "new" || runs[0].Points != 0 {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].Points != 2 || runs[1].Best != 20 {
		t.Errorf("old run = %+v", runs[1])
	}

	limited, err := db.Runs(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Runs(1) = %v, %v", limited, err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}
