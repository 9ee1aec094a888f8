// Package decode turns solver solutions into layout snapshots and hands them
// to sinks.
//
// A Decoder is the solver callback. The solver invokes it synchronously, one
// improving solution at a time, so the decoder owns its best-so-far state
// without locking. Each solution becomes an immutable Snapshot that is
// rendered as a text table and passed to every Sink in order. A failing sink
// is logged and skipped; it never stops the search.
//
// Sinks run on the solver's goroutine and slow the search down. Set
// Options.DisableIO to log progress without touching any sink.
package decode

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/cp"
	"github.com/matzehuels/factorygrid/pkg/factory"
	"github.com/matzehuels/factorygrid/pkg/placement"
)

// CellWidth is the width of one table cell in characters.
const CellWidth = 20

// Snapshot is one decoded solution. It is never modified after creation.
type Snapshot struct {
	// Index is the 1-based solution number within the search.
	Index     int
	Objective int64

	// Improvement is previous/current - 1, zero for the first solution and
	// +Inf when the objective reaches zero.
	Improvement float64
	Initial     bool

	Elapsed time.Duration
	Time    time.Time

	Bounds     factory.Bounds
	Placements []factory.Placement
	Table      string
}

// Coords returns the snapshot's unit coordinates keyed by unit ID.
func (s *Snapshot) Coords() map[string]factory.Coord {
	out := make(map[string]factory.Coord, len(s.Placements))
	for _, p := range s.Placements {
		out[p.Unit.ID] = p.At
	}
	return out
}

// Sink receives snapshots.
type Sink interface {
	WriteSnapshot(s *Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *Snapshot) error

// WriteSnapshot implements Sink.
func (f SinkFunc) WriteSnapshot(s *Snapshot) error { return f(s) }

// Options controls decoder behaviour.
type Options struct {
	// TimeBudget stops the search once a solution arrives after this much
	// wall time. Zero disables the budget.
	TimeBudget time.Duration
	// SolutionLimit stops the search after this many solutions. Zero
	// disables the limit.
	SolutionLimit int
	// DisableIO skips every sink.
	DisableIO bool
}

// Decoder is a cp.Callback that emits layout snapshots.
type Decoder struct {
	model  *placement.Model
	sinks  []Sink
	opts   Options
	logger *log.Logger
	now    func() time.Time

	count int
	prev  int64
	best  *Snapshot
}

var _ cp.Callback = (*Decoder)(nil)

// New creates a decoder for a built placement model. A nil logger discards
// progress lines.
func New(m *placement.Model, logger *log.Logger, opts Options, sinks ...Sink) *Decoder {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Decoder{
		model:  m,
		sinks:  sinks,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// OnSolution implements cp.Callback.
func (d *Decoder) OnSolution(sol *cp.Solution) {
	d.count++
	obj := sol.ObjectiveValue()
	placements := d.model.Placements(sol.Values())

	snap := &Snapshot{
		Index:      d.count,
		Objective:  obj,
		Initial:    d.count == 1,
		Elapsed:    sol.WallTime(),
		Time:       d.now(),
		Bounds:     d.model.Bounds,
		Placements: placements,
		Table:      RenderTable(d.model.Bounds, placements),
	}
	if !snap.Initial {
		snap.Improvement = improvement(d.prev, obj)
	}
	d.prev = obj
	d.best = snap

	if snap.Initial {
		d.logger.Infof("Initial: %d cost", obj)
	} else {
		d.logger.Infof("Improved: %d cost (↓%.2f%%)", obj, snap.Improvement*100)
	}
	d.logger.Debug("solution", "index", snap.Index, "elapsed", snap.Elapsed.Round(time.Millisecond))

	if !d.opts.DisableIO {
		for _, s := range d.sinks {
			if err := s.WriteSnapshot(snap); err != nil {
				d.logger.Warn("sink failed", "sink", fmt.Sprintf("%T", s), "solution", snap.Index, "err", err)
			}
		}
	}

	if d.opts.SolutionLimit > 0 && d.count >= d.opts.SolutionLimit {
		d.logger.Debug("solution limit reached", "limit", d.opts.SolutionLimit)
		sol.StopSearch()
	}
	if d.opts.TimeBudget > 0 && sol.WallTime() >= d.opts.TimeBudget {
		d.logger.Debug("time budget exhausted", "budget", d.opts.TimeBudget)
		sol.StopSearch()
	}
}

func improvement(prev, cur int64) float64 {
	if cur == 0 {
		if prev == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(prev)/float64(cur) - 1
}

// Best returns the latest snapshot, or nil before the first solution.
func (d *Decoder) Best() *Snapshot { return d.best }

// Solutions returns the number of solutions seen.
func (d *Decoder) Solutions() int { return d.count }

const (
	tableHeader = "-------------------- LAYOUT --------------------"
	tableFooter = "------------------------------------------------"
)

// RenderTable draws placements as a text grid: one row per y, one column
// per x, each cell holding the product name of the unit placed there.
func RenderTable(b factory.Bounds, placements []factory.Placement) string {
	at := make(map[factory.Coord]string, len(placements))
	for _, p := range placements {
		if _, taken := at[p.At]; !taken {
			at[p.At] = p.Unit.Product()
		}
	}

	var sb strings.Builder
	sb.WriteString(tableHeader)
	sb.WriteByte('\n')
	cells := make([]string, 0, b.Width())
	for y := b.LY; y <= b.UY; y++ {
		cells = cells[:0]
		for x := b.LX; x <= b.UX; x++ {
			cells = append(cells, fit(at[factory.Coord{X: x, Y: y}], CellWidth))
		}
		sb.WriteString("| ")
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString(" |\n")
	}
	sb.WriteString(tableFooter)
	sb.WriteByte('\n')
	return sb.String()
}

// fit pads or truncates s to exactly n runes.
func fit(s string, n int) string {
	r := []rune(s)
	if len(r) >= n {
		return string(r[:n])
	}
	return s + strings.Repeat(" ", n-len(r))
}
