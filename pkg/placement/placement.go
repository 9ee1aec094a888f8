// Package placement turns units and their allocated flow into an integer
// constraint model whose optimum is the layout with the least weighted
// material-flow distance.
//
// Every unit gets an (x, y) position variable. Distinct units may not share
// a cell. Each producer edge contributes
//
//	cost = (|x_c - x_p| + |y_c - y_p|) * round(amount * scale)
//
// and each source edge contributes the distance to the nearest source of
// its group, weighted by round(amount * scale * force). The objective is the
// sum of all costs.
//
// Variable bounds are derived from the grid and the flow amounts and are
// loose enough never to cut off the optimum.
package placement

import (
	"context"
	"fmt"
	"math"

	"github.com/matzehuels/factorygrid/pkg/alloc"
	"github.com/matzehuels/factorygrid/pkg/cp"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

const (
	// DefaultScale converts fractional flow amounts to integer weights.
	DefaultScale = 1000

	// DefaultSourceOffset is the slack added to source distance bounds for
	// sources that sit outside the grid.
	DefaultSourceOffset = 25
)

// Options tunes model construction.
type Options struct {
	Scale        int64 `json:"scale,omitempty"`
	SourceOffset int64 `json:"source_offset,omitempty"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	if o.SourceOffset == 0 {
		o.SourceOffset = DefaultSourceOffset
	}
	return o
}

// Distance returns the Manhattan distance between a and b.
func Distance(a, b factory.Coord) int64 {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// position holds a unit's coordinate variables.
type position struct {
	x, y *cp.IntVar
}

// EdgeCost links a flow edge to its model variables.
type EdgeCost struct {
	Edge alloc.FlowEdge
	// Distance is the edge's distance variable; for source edges the
	// distance to the nearest source.
	Distance *cp.IntVar
	Cost     *cp.IntVar
	// Weight is the integer coefficient applied to Distance.
	Weight int64
}

// Model is a built placement model.
type Model struct {
	CP     *cp.Model
	Bounds factory.Bounds
	Units  []*factory.Unit
	Edges  []EdgeCost
	Total  *cp.IntVar

	// Offset is the source offset actually used after widening.
	Offset int64

	opts  Options
	pos   []position
	index map[string]int
}

// Build constructs the placement model.
//
// maxX and maxY, the per-axis distance bounds, are the grid's width and
// height, one more than the largest in-grid difference on each axis. The source offset is widened when a declared source sits further
// outside the grid than the configured offset allows.
func Build(units []*factory.Unit, sources []factory.Source, plan *alloc.Plan, bounds factory.Bounds, opts Options) (*Model, error) {
	opts = opts.WithDefaults()
	if opts.Scale < 0 || opts.SourceOffset < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "scale and source offset must not be negative")
	}
	if plan == nil {
		plan = &alloc.Plan{}
	}

	m := &Model{
		CP:     cp.NewModel(),
		Bounds: bounds,
		Units:  units,
		opts:   opts,
		pos:    make([]position, len(units)),
		index:  make(map[string]int, len(units)),
	}

	for i, u := range units {
		if _, dup := m.index[u.ID]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate unit id %s", u.ID)
		}
		m.index[u.ID] = i
		m.pos[i] = position{
			x: m.CP.NewIntVar(u.Bounds.LX, u.Bounds.UX, "x_"+u.ID),
			y: m.CP.NewIntVar(u.Bounds.LY, u.Bounds.UY, "y_"+u.ID),
		}
	}

	m.addNonOverlap()

	maxX, maxY := bounds.Width(), bounds.Height()
	m.Offset = widenOffset(opts.SourceOffset, bounds, sources, plan)

	var costs []cp.LinearExpr
	var total int64
	for _, e := range plan.Edges {
		var (
			ec  EdgeCost
			ub  int64
			err error
		)
		if e.IsSource() {
			ec, ub, err = m.addSourceEdge(e, maxX, maxY)
		} else {
			ec, ub, err = m.addProducerEdge(e, maxX, maxY)
		}
		if err != nil {
			return nil, err
		}
		m.Edges = append(m.Edges, ec)
		costs = append(costs, ec.Cost.Expr())
		total += ub
	}

	m.Total = m.CP.NewIntVar(0, min(total, cp.MaxDomain), "total_distance")
	m.CP.AddEquality(m.Total.Expr(), cp.Sum(costs...))
	m.CP.Minimize(m.Total.Expr())
	return m, nil
}

// addNonOverlap forbids two units in one cell: for every unordered pair at
// least one axis differs.
func (m *Model) addNonOverlap() {
	for i := 0; i < len(m.Units); i++ {
		for j := i + 1; j < len(m.Units); j++ {
			a, b := m.Units[i].ID, m.Units[j].ID
			bx := m.CP.NewBoolVar(fmt.Sprintf("bx_%s_%s", a, b))
			by := m.CP.NewBoolVar(fmt.Sprintf("by_%s_%s", a, b))
			m.CP.AddDifferent(m.pos[i].x.Expr(), m.pos[j].x.Expr()).OnlyEnforceIf(bx)
			m.CP.AddDifferent(m.pos[i].y.Expr(), m.pos[j].y.Expr()).OnlyEnforceIf(by)
			m.CP.AddBoolOr(bx, by)
		}
	}
}

func (m *Model) unit(u *factory.Unit) (position, error) {
	i, ok := m.index[u.ID]
	if !ok {
		return position{}, errors.New(errors.ErrCodeInvalidInput, "flow edge references unknown unit %s", u.ID)
	}
	return m.pos[i], nil
}

func (m *Model) addProducerEdge(e alloc.FlowEdge, maxX, maxY int64) (EdgeCost, int64, error) {
	c, err := m.unit(e.Consumer)
	if err != nil {
		return EdgeCost{}, 0, err
	}
	p, err := m.unit(e.Producer)
	if err != nil {
		return EdgeCost{}, 0, err
	}
	tag := e.Consumer.ID + "_" + e.Producer.ID

	dx := m.CP.NewIntVar(0, maxX, "dist_x_"+tag)
	dy := m.CP.NewIntVar(0, maxY, "dist_y_"+tag)
	d := m.CP.NewIntVar(0, maxX+maxY, "dist_"+tag)
	m.CP.AddAbsEquality(dx, c.x.Expr().Minus(p.x.Expr()))
	m.CP.AddAbsEquality(dy, c.y.Expr().Minus(p.y.Expr()))
	m.CP.AddEquality(d.Expr(), cp.Sum(dx.Expr(), dy.Expr()))

	weight := int64(math.Round(e.Amount * float64(m.opts.Scale)))
	ub := (maxX + maxY) * m.opts.Scale * ceil(e.Amount)
	cost := m.CP.NewIntVar(0, ub, "dist_weighted_"+tag)
	m.CP.AddEquality(cost.Expr(), cp.Term(d, weight))

	return EdgeCost{Edge: e, Distance: d, Cost: cost, Weight: weight}, ub, nil
}

func (m *Model) addSourceEdge(e alloc.FlowEdge, maxX, maxY int64) (EdgeCost, int64, error) {
	c, err := m.unit(e.Consumer)
	if err != nil {
		return EdgeCost{}, 0, err
	}
	if len(e.Sources) == 0 {
		return EdgeCost{}, 0, errors.New(errors.ErrCodeInvalidInput, "source edge for %s has no sources", e.Item)
	}
	off := m.Offset
	cid := e.Consumer.ID

	dists := make([]*cp.IntVar, 0, len(e.Sources))
	for _, s := range e.Sources {
		tag := fmt.Sprintf("%s_%s_%d_%d", cid, s.Item, s.At.X, s.At.Y)
		d := m.CP.NewIntVar(0, maxX+maxY+2*off, "dist_src_"+tag)
		dx := m.CP.NewIntVar(0, maxX+off, "dist_x_src_"+tag)
		dy := m.CP.NewIntVar(0, maxY+off, "dist_y_src_"+tag)
		m.CP.AddAbsEquality(dx, cp.Sum(c.x.Expr(), cp.Constant(-s.At.X)))
		m.CP.AddAbsEquality(dy, cp.Sum(c.y.Expr(), cp.Constant(-s.At.Y)))
		m.CP.AddEquality(d.Expr(), cp.Sum(dx.Expr(), dy.Expr()))
		dists = append(dists, d)
	}

	nearest := m.CP.NewIntVar(0, max(maxX+maxY+off*off, maxX+maxY+2*off), "min_dist_src_"+cid+"_"+e.Item)
	m.CP.AddMinEquality(nearest, dists...)

	force := e.Force
	if force == 0 {
		force = factory.DefaultForce
	}
	weight := int64(math.Round(e.Amount * float64(m.opts.Scale) * force))
	ub := (maxX + maxY + 2*off) * m.opts.Scale * ceil(e.Amount) * ceil(force)
	cost := m.CP.NewIntVar(0, ub, "min_dist_weighted_src_"+cid+"_"+e.Item)
	m.CP.AddEquality(cost.Expr(), cp.Term(nearest, weight))

	return EdgeCost{Edge: e, Distance: nearest, Cost: cost, Weight: weight}, ub, nil
}

// widenOffset returns the smallest offset >= configured that keeps every
// per-axis source distance within [0, max + offset].
func widenOffset(configured int64, b factory.Bounds, sources []factory.Source, plan *alloc.Plan) int64 {
	off := configured
	maxX, maxY := b.Width(), b.Height()
	widen := func(s factory.Source) {
		dx := max(abs(b.UX-s.At.X), abs(b.LX-s.At.X)) - maxX
		dy := max(abs(b.UY-s.At.Y), abs(b.LY-s.At.Y)) - maxY
		off = max(off, dx, dy)
	}
	for _, s := range sources {
		widen(s)
	}
	for _, e := range plan.Edges {
		for _, s := range e.Sources {
			widen(s)
		}
	}
	return off
}

func ceil(x float64) int64 {
	return int64(math.Ceil(x))
}

// Solve submits the model. A solution-less outcome is an
// errors.ErrCodeInfeasible error.
func (m *Model) Solve(ctx context.Context, solver cp.Solver, cb cp.Callback) (cp.Status, error) {
	status, err := solver.Solve(ctx, m.CP, cb)
	switch {
	case status == cp.ModelInvalid:
		return status, errors.Wrap(errors.ErrCodeInternal, err, "placement model invalid")
	case status.HasSolution():
		return status, nil
	case err != nil && ctx.Err() != nil:
		return status, errors.Wrap(errors.ErrCodeCanceled, err, "solve canceled before a layout was found")
	}
	return status, errors.New(errors.ErrCodeInfeasible, "no layout: solver status %s", status)
}

// Coord returns the coordinate of unit i under a full assignment.
func (m *Model) Coord(values []int64, i int) factory.Coord {
	p := m.pos[i]
	return factory.Coord{X: values[p.x.Index()], Y: values[p.y.Index()]}
}

// Placements decodes a full assignment into unit placements, in unit order.
func (m *Model) Placements(values []int64) []factory.Placement {
	out := make([]factory.Placement, len(m.Units))
	for i, u := range m.Units {
		out[i] = factory.NewPlacement(u, m.Coord(values, i))
	}
	return out
}

// Coords decodes a full assignment into unit coordinates keyed by unit ID.
func (m *Model) Coords(values []int64) map[string]factory.Coord {
	out := make(map[string]factory.Coord, len(m.Units))
	for i, u := range m.Units {
		out[u.ID] = m.Coord(values, i)
	}
	return out
}

// Hint seeds the solver with known coordinates keyed by unit ID. Unknown
// IDs and coordinates outside a unit's bounds are ignored. It returns the
// number of units hinted.
func (m *Model) Hint(coords map[string]factory.Coord) int {
	n := 0
	for id, c := range coords {
		i, ok := m.index[id]
		if !ok || !m.Units[i].Bounds.Contains(c) {
			continue
		}
		m.CP.AddHint(m.pos[i].x, c.X)
		m.CP.AddHint(m.pos[i].y, c.Y)
		n++
	}
	return n
}

// Cost evaluates the objective of a set of placements without solving.
// It mirrors the model's cost terms exactly.
func (m *Model) Cost(coords map[string]factory.Coord) int64 {
	var total int64
	for _, ec := range m.Edges {
		e := ec.Edge
		c := coords[e.Consumer.ID]
		if !e.IsSource() {
			total += Distance(c, coords[e.Producer.ID]) * ec.Weight
			continue
		}
		nearest := int64(math.MaxInt64)
		for _, s := range e.Sources {
			nearest = min(nearest, Distance(c, s.At))
		}
		total += nearest * ec.Weight
	}
	return total
}
