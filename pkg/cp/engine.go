package cp

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTimeLimit caps an Engine search when no limit is configured.
const DefaultTimeLimit = 60 * time.Second

// checkEvery is the node interval between deadline and context checks.
const checkEvery = 256

// Engine is a depth-first branch and bound solver.
//
// Variables are branched in declaration order. For each variable the hinted
// value is tried first, then the remaining values in ascending order. Every
// decision is followed by bounds propagation to a fixpoint. After each
// solution the objective is constrained to be strictly smaller, so every
// reported solution improves on the previous one.
type Engine struct {
	// TimeLimit bounds the search wall time. Zero means DefaultTimeLimit,
	// a negative value means no limit.
	TimeLimit time.Duration
	Logger    *log.Logger
}

// NewEngine creates an engine. A nil logger discards diagnostics.
func NewEngine(limit time.Duration, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Engine{TimeLimit: limit, Logger: logger}
}

// Stats summarises a finished search.
type Stats struct {
	Nodes     int64
	Failures  int64
	Solutions int
	Wall      time.Duration
}

// Solve implements Solver.
func (e *Engine) Solve(ctx context.Context, m *Model, cb Callback) (Status, error) {
	status, _, err := e.SolveStats(ctx, m, cb)
	return status, err
}

// SolveStats is Solve returning search statistics as well.
func (e *Engine) SolveStats(ctx context.Context, m *Model, cb Callback) (Status, Stats, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if err := m.Validate(); err != nil {
		return ModelInvalid, Stats{}, err
	}

	limit := e.TimeLimit
	if limit == 0 {
		limit = DefaultTimeLimit
	}

	s := newSearch(ctx, m, cb, limit)
	logger.Debug("search started", "vars", m.NumVars(), "constraints", m.NumConstraints(), "limit", limit)

	var complete bool
	if s.propagateAll() {
		complete = s.dfs()
	} else {
		complete = !s.interrupted
	}

	stats := Stats{
		Nodes:     s.nodes,
		Failures:  s.failures,
		Solutions: s.solutions,
		Wall:      time.Since(s.start),
	}

	var status Status
	switch {
	case s.solutions > 0 && (complete || !m.HasObjective()):
		status = Optimal
	case s.solutions > 0:
		status = Feasible
	case complete:
		status = Infeasible
	default:
		status = Unknown
	}
	logger.Debug("search finished", "status", status, "nodes", stats.Nodes, "failures", stats.Failures,
		"solutions", stats.Solutions, "wall", stats.Wall)

	if status == Unknown && ctx.Err() != nil {
		return status, stats, ctx.Err()
	}
	return status, stats, nil
}

type bounds struct{ lo, hi int64 }

type trailEntry struct {
	v   int
	old bounds
}

// search is the mutable state of one Engine.Solve call.
type search struct {
	ctx      context.Context
	model    *Model
	cb       Callback
	start    time.Time
	deadline time.Time

	dom      []bounds
	trail    []trailEntry
	watchers [][]int
	cons     []*Constraint
	queue    []int
	head     int
	queued   []bool

	// cut is the index of the objective cut constraint, -1 without objective.
	cut int

	nodes       int64
	failures    int64
	solutions   int
	stop        bool
	interrupted bool
}

func newSearch(ctx context.Context, m *Model, cb Callback, limit time.Duration) *search {
	s := &search{
		ctx:      ctx,
		model:    m,
		cb:       cb,
		start:    time.Now(),
		dom:      make([]bounds, len(m.vars)),
		watchers: make([][]int, len(m.vars)),
		cut:      -1,
	}
	if limit > 0 {
		s.deadline = s.start.Add(limit)
	}
	for i, v := range m.vars {
		s.dom[i] = bounds{v.lb, v.ub}
	}

	s.cons = append(s.cons, m.constraints...)
	if m.objective != nil {
		s.cut = len(s.cons)
		s.cons = append(s.cons, &Constraint{kind: kindLinear, expr: *m.objective, lo: math.MinInt64, hi: math.MaxInt64})
	}

	for ci, c := range s.cons {
		seen := map[int]bool{}
		watch := func(v *IntVar) {
			if !seen[v.index] {
				seen[v.index] = true
				s.watchers[v.index] = append(s.watchers[v.index], ci)
			}
		}
		for _, t := range c.expr.terms {
			watch(t.v)
		}
		if c.target != nil {
			watch(c.target)
		}
		for _, v := range c.vars {
			watch(v)
		}
		for _, l := range c.lits {
			watch(l)
		}
	}

	s.queued = make([]bool, len(s.cons))
	for ci := range s.cons {
		s.enqueue(ci)
	}
	return s
}

// dfs explores the subtree below the current node. It reports whether the
// subtree was exhausted without interruption.
func (s *search) dfs() bool {
	if s.stop || s.checkLimits() {
		return false
	}
	s.nodes++

	v := s.nextUnfixed()
	if v < 0 {
		s.record()
		return !s.stop
	}

	mark := len(s.trail)
	lo, hi := s.dom[v].lo, s.dom[v].hi
	hint, hinted := s.model.hints[v]
	hinted = hinted && hint >= lo && hint <= hi

	try := func(val int64) bool {
		if s.assign(v, val) && s.propagateAll() {
			if !s.dfs() {
				s.undo(mark)
				return false
			}
		} else {
			s.failures++
		}
		s.undo(mark)
		return true
	}

	if hinted && !try(hint) {
		return false
	}
	for val := lo; val <= hi; val++ {
		if hinted && val == hint {
			continue
		}
		if !try(val) {
			return false
		}
	}
	return true
}

func (s *search) checkLimits() bool {
	if s.nodes%checkEvery != 0 {
		return s.interrupted
	}
	if s.ctx.Err() != nil || (!s.deadline.IsZero() && time.Now().After(s.deadline)) {
		s.interrupted = true
	}
	return s.interrupted
}

func (s *search) nextUnfixed() int {
	for i, d := range s.dom {
		if d.lo != d.hi {
			return i
		}
	}
	return -1
}

// record reports the current fully fixed assignment.
func (s *search) record() {
	values := make([]int64, len(s.dom))
	for i, d := range s.dom {
		values[i] = d.lo
	}
	var obj int64
	if s.model.objective != nil {
		obj = s.model.objective.Eval(values)
		s.cons[s.cut].hi = obj - 1
	}
	s.solutions++

	if s.cb != nil {
		s.cb.OnSolution(&Solution{
			values:    values,
			objective: obj,
			index:     s.solutions,
			wall:      time.Since(s.start),
			stop:      &s.stop,
		})
	}
	if s.model.objective == nil {
		s.stop = true
	}
}

func (s *search) assign(v int, val int64) bool {
	if s.cut >= 0 && s.solutions > 0 {
		s.enqueue(s.cut)
	}
	return s.setLo(v, val) && s.setHi(v, val)
}

func (s *search) undo(mark int) {
	for i := len(s.trail) - 1; i >= mark; i-- {
		e := s.trail[i]
		s.dom[e.v] = e.old
	}
	s.trail = s.trail[:mark]
}

func (s *search) enqueue(ci int) {
	if s.queued[ci] {
		return
	}
	s.queued[ci] = true
	s.queue = append(s.queue, ci)
}

func (s *search) changed(v int) {
	for _, ci := range s.watchers[v] {
		s.enqueue(ci)
	}
}

func (s *search) setLo(v int, lo int64) bool {
	d := s.dom[v]
	if lo <= d.lo {
		return true
	}
	if lo > d.hi {
		return false
	}
	s.trail = append(s.trail, trailEntry{v: v, old: d})
	s.dom[v].lo = lo
	s.changed(v)
	return true
}

func (s *search) setHi(v int, hi int64) bool {
	d := s.dom[v]
	if hi >= d.hi {
		return true
	}
	if hi < d.lo {
		return false
	}
	s.trail = append(s.trail, trailEntry{v: v, old: d})
	s.dom[v].hi = hi
	s.changed(v)
	return true
}

func (s *search) fixed(v int) bool { return s.dom[v].lo == s.dom[v].hi }

// propagateAll runs queued propagators to a fixpoint.
func (s *search) propagateAll() bool {
	defer func() {
		s.queue = s.queue[:0]
		s.head = 0
	}()
	for s.head < len(s.queue) {
		ci := s.queue[s.head]
		s.head++
		s.queued[ci] = false
		if !s.propagate(s.cons[ci]) {
			for _, q := range s.queue[s.head:] {
				s.queued[q] = false
			}
			return false
		}
	}
	return true
}

func (s *search) propagate(c *Constraint) bool {
	switch c.kind {
	case kindLinear:
		return s.propLinear(c)
	case kindDifferent:
		return s.propDifferent(c)
	case kindAbs:
		return s.propAbs(c)
	case kindMin:
		return s.propMin(c)
	case kindBoolOr:
		return s.propBoolOr(c)
	}
	return true
}

type enforcement int

const (
	enforceActive enforcement = iota
	enforceInactive
	enforceOneFree
	enforceUndecided
)

// enforcement classifies a constraint's literals. free is the only unfixed
// literal when the result is enforceOneFree.
func (s *search) enforcement(lits []*IntVar) (enforcement, int) {
	free := -1
	unfixed := 0
	for _, l := range lits {
		d := s.dom[l.index]
		switch {
		case d.hi == 0:
			return enforceInactive, -1
		case d.lo == 0:
			unfixed++
			free = l.index
		}
	}
	switch unfixed {
	case 0:
		return enforceActive, -1
	case 1:
		return enforceOneFree, free
	}
	return enforceUndecided, -1
}

// exprBounds returns the range of e under the current domains.
func (s *search) exprBounds(e LinearExpr) (lo, hi int64) {
	lo, hi = e.offset, e.offset
	for _, t := range e.terms {
		tl, th := s.termBounds(t)
		lo = addSat(lo, tl)
		hi = addSat(hi, th)
	}
	return lo, hi
}

func (s *search) termBounds(t term) (lo, hi int64) {
	d := s.dom[t.v.index]
	a, b := mulSat(t.coef, d.lo), mulSat(t.coef, d.hi)
	if a > b {
		a, b = b, a
	}
	return a, b
}

// boundExpr narrows the variables of e so that lo <= e <= hi can hold.
func (s *search) boundExpr(e LinearExpr, lo, hi int64) bool {
	minSum, maxSum := s.exprBounds(e)
	if minSum > hi || maxSum < lo {
		return false
	}
	for _, t := range e.terms {
		if t.coef == 0 {
			continue
		}
		tl, th := s.termBounds(t)
		minRest := subSat(minSum, tl)
		maxRest := subSat(maxSum, th)
		// coef*x in [lo - maxRest, hi - minRest]
		clo := subSat(lo, maxRest)
		chi := subSat(hi, minRest)
		var xlo, xhi int64
		if t.coef > 0 {
			xlo, xhi = ceilDiv(clo, t.coef), floorDiv(chi, t.coef)
		} else {
			xlo, xhi = ceilDiv(chi, t.coef), floorDiv(clo, t.coef)
		}
		if !s.setLo(t.v.index, xlo) || !s.setHi(t.v.index, xhi) {
			return false
		}
	}
	return true
}

func (s *search) propLinear(c *Constraint) bool {
	switch st, free := s.enforcement(c.lits); st {
	case enforceInactive, enforceUndecided:
		return true
	case enforceOneFree:
		lo, hi := s.exprBounds(c.expr)
		if lo > c.hi || hi < c.lo {
			return s.setHi(free, 0)
		}
		return true
	}
	return s.boundExpr(c.expr, c.lo, c.hi)
}

func (s *search) propDifferent(c *Constraint) bool {
	st, free := s.enforcement(c.lits)
	switch st {
	case enforceInactive, enforceUndecided:
		return true
	case enforceOneFree:
		lo, hi := s.exprBounds(c.expr)
		if lo == 0 && hi == 0 {
			return s.setHi(free, 0)
		}
		return true
	}

	// Active: with one free variable, remove the value that makes e zero
	// when it sits on a bound.
	rest := c.expr.offset
	var open *term
	for i := range c.expr.terms {
		t := &c.expr.terms[i]
		if s.fixed(t.v.index) {
			rest += t.coef * s.dom[t.v.index].lo
			continue
		}
		if open != nil && open.v != t.v {
			return true
		}
		if open != nil {
			// Same variable twice; fold coefficients.
			merged := term{v: t.v, coef: open.coef + t.coef}
			open = &merged
			continue
		}
		open = t
	}
	if open == nil || open.coef == 0 {
		return rest != 0
	}
	if (-rest)%open.coef != 0 {
		return true
	}
	forbidden := -rest / open.coef
	d := s.dom[open.v.index]
	switch forbidden {
	case d.lo:
		return s.setLo(open.v.index, d.lo+1)
	case d.hi:
		return s.setHi(open.v.index, d.hi-1)
	}
	return true
}

func (s *search) propAbs(c *Constraint) bool {
	t := c.target.index
	elo, ehi := s.exprBounds(c.expr)

	var tlo, thi int64
	switch {
	case elo >= 0:
		tlo, thi = elo, ehi
	case ehi <= 0:
		tlo, thi = -ehi, -elo
	default:
		tlo, thi = 0, max(-elo, ehi)
	}
	if !s.setLo(t, tlo) || !s.setHi(t, thi) {
		return false
	}

	d := s.dom[t]
	lo, hi := -d.hi, d.hi
	if d.lo > 0 {
		if elo > -d.lo {
			lo = max(lo, d.lo)
		}
		if ehi < d.lo {
			hi = min(hi, -d.lo)
		}
	}
	return s.boundExpr(c.expr, lo, hi)
}

func (s *search) propMin(c *Constraint) bool {
	t := c.target.index
	minLo, minHi := int64(math.MaxInt64), int64(math.MaxInt64)
	for _, v := range c.vars {
		d := s.dom[v.index]
		minLo = min(minLo, d.lo)
		minHi = min(minHi, d.hi)
	}
	if !s.setLo(t, minLo) || !s.setHi(t, minHi) {
		return false
	}

	d := s.dom[t]
	var support *IntVar
	count := 0
	for _, v := range c.vars {
		if !s.setLo(v.index, d.lo) {
			return false
		}
		if s.dom[v.index].lo <= d.hi {
			support = v
			count++
		}
	}
	switch count {
	case 0:
		return false
	case 1:
		return s.setHi(support.index, d.hi)
	}
	return true
}

func (s *search) propBoolOr(c *Constraint) bool {
	free := -1
	unfixed := 0
	for _, l := range c.vars {
		d := s.dom[l.index]
		if d.lo >= 1 {
			return true
		}
		if d.hi >= 1 {
			unfixed++
			free = l.index
		}
	}
	switch unfixed {
	case 0:
		return false
	case 1:
		return s.setLo(free, 1)
	}
	return true
}

const satMax = math.MaxInt64 / 2

func clampSat(x int64) int64 {
	return max(-satMax, min(satMax, x))
}

func addSat(a, b int64) int64 {
	a, b = clampSat(a), clampSat(b)
	return clampSat(a + b)
}

func subSat(a, b int64) int64 {
	a, b = clampSat(a), clampSat(b)
	return clampSat(a - b)
}

func mulSat(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	a, b = clampSat(a), clampSat(b)
	p := a * b
	if p/b != a {
		if (a > 0) == (b > 0) {
			return satMax
		}
		return -satMax
	}
	return clampSat(p)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}
