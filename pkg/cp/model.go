// Package cp is a small integer constraint programming toolkit.
//
// A Model holds bounded integer variables, constraints over linear
// expressions and an optional minimisation objective. A Solver searches the
// model and reports every improving solution to a Callback; the callback can
// stop the search at any time.
//
// The constraint vocabulary is deliberately narrow. It covers what grid
// placement models need:
//
//   - linear ranges, equalities and inequalities, optionally enforced by
//     boolean literals
//   - disequality (expr != 0), optionally enforced
//   - absolute value: target == |expr|
//   - minimum: target == min(vars...)
//   - boolean disjunction
//
// # Usage
//
//	m := cp.NewModel()
//	x := m.NewIntVar(0, 10, "x")
//	y := m.NewIntVar(0, 10, "y")
//	m.AddDifferent(x.Expr(), y.Expr())
//	m.Minimize(cp.Sum(x.Expr(), y.Expr()))
//
//	status, err := cp.NewEngine(time.Second, nil).Solve(ctx, m, cp.CallbackFunc(func(s *cp.Solution) {
//	    fmt.Println(s.ObjectiveValue())
//	}))
package cp

import (
	"errors"
	"fmt"
	"math"
)

// MaxDomain bounds the absolute value of every variable bound. It keeps
// bound arithmetic clear of int64 overflow.
const MaxDomain = int64(1) << 40

// ErrModelInvalid wraps every model validation failure.
var ErrModelInvalid = errors.New("model invalid")

// IntVar is a bounded integer decision variable.
type IntVar struct {
	model *Model
	index int
	name  string
	lb    int64
	ub    int64
}

// Name returns the variable name.
func (v *IntVar) Name() string { return v.name }

// Index returns the declaration index of the variable.
func (v *IntVar) Index() int { return v.index }

// Bounds returns the declared domain.
func (v *IntVar) Bounds() (lb, ub int64) { return v.lb, v.ub }

// Expr returns the expression 1*v.
func (v *IntVar) Expr() LinearExpr { return Term(v, 1) }

func (v *IntVar) String() string { return v.name }

// term is coef*var.
type term struct {
	v    *IntVar
	coef int64
}

// LinearExpr is a sum of weighted variables plus a constant.
type LinearExpr struct {
	terms  []term
	offset int64
}

// Term returns coef*v.
func Term(v *IntVar, coef int64) LinearExpr {
	return LinearExpr{terms: []term{{v: v, coef: coef}}}
}

// Constant returns the constant expression c.
func Constant(c int64) LinearExpr {
	return LinearExpr{offset: c}
}

// Sum adds expressions.
func Sum(exprs ...LinearExpr) LinearExpr {
	var out LinearExpr
	for _, e := range exprs {
		out.terms = append(out.terms, e.terms...)
		out.offset += e.offset
	}
	return out
}

// Neg returns -e.
func (e LinearExpr) Neg() LinearExpr {
	out := LinearExpr{terms: make([]term, len(e.terms)), offset: -e.offset}
	for i, t := range e.terms {
		out.terms[i] = term{v: t.v, coef: -t.coef}
	}
	return out
}

// Minus returns e - o.
func (e LinearExpr) Minus(o LinearExpr) LinearExpr {
	return Sum(e, o.Neg())
}

// Eval evaluates the expression against a full assignment indexed by
// variable declaration order.
func (e LinearExpr) Eval(values []int64) int64 {
	s := e.offset
	for _, t := range e.terms {
		s += t.coef * values[t.v.index]
	}
	return s
}

type kind int

const (
	kindLinear kind = iota
	kindDifferent
	kindAbs
	kindMin
	kindBoolOr
)

func (k kind) String() string {
	switch k {
	case kindLinear:
		return "linear"
	case kindDifferent:
		return "different"
	case kindAbs:
		return "abs"
	case kindMin:
		return "min"
	case kindBoolOr:
		return "bool_or"
	}
	return "unknown"
}

// Constraint is a posted constraint. Linear and disequality constraints may
// be made conditional with OnlyEnforceIf.
type Constraint struct {
	kind   kind
	expr   LinearExpr
	lo, hi int64
	target *IntVar
	vars   []*IntVar
	lits   []*IntVar
}

// OnlyEnforceIf makes the constraint hold only when every literal is true.
// Literals must be boolean variables.
func (c *Constraint) OnlyEnforceIf(lits ...*IntVar) *Constraint {
	c.lits = append(c.lits, lits...)
	return c
}

// Model is a constraint model under construction.
type Model struct {
	vars        []*IntVar
	constraints []*Constraint
	objective   *LinearExpr
	hints       map[int]int64
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{hints: map[int]int64{}}
}

// NewIntVar declares a variable with domain [lb, ub].
func (m *Model) NewIntVar(lb, ub int64, name string) *IntVar {
	v := &IntVar{model: m, index: len(m.vars), name: name, lb: lb, ub: ub}
	m.vars = append(m.vars, v)
	return v
}

// NewBoolVar declares a 0/1 variable.
func (m *Model) NewBoolVar(name string) *IntVar {
	return m.NewIntVar(0, 1, name)
}

// NewConstant declares a variable fixed to c.
func (m *Model) NewConstant(c int64) *IntVar {
	return m.NewIntVar(c, c, fmt.Sprintf("const_%d", c))
}

// Vars returns the declared variables in declaration order.
func (m *Model) Vars() []*IntVar { return m.vars }

// NumVars returns the number of declared variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the number of posted constraints.
func (m *Model) NumConstraints() int { return len(m.constraints) }

func (m *Model) add(c *Constraint) *Constraint {
	m.constraints = append(m.constraints, c)
	return c
}

// AddLinear posts lo <= expr <= hi.
func (m *Model) AddLinear(expr LinearExpr, lo, hi int64) *Constraint {
	return m.add(&Constraint{kind: kindLinear, expr: expr, lo: lo, hi: hi})
}

// AddEquality posts a == b.
func (m *Model) AddEquality(a, b LinearExpr) *Constraint {
	return m.AddLinear(a.Minus(b), 0, 0)
}

// AddLessOrEqual posts a <= b.
func (m *Model) AddLessOrEqual(a, b LinearExpr) *Constraint {
	return m.AddLinear(a.Minus(b), math.MinInt64, 0)
}

// AddDifferent posts a != b.
func (m *Model) AddDifferent(a, b LinearExpr) *Constraint {
	return m.add(&Constraint{kind: kindDifferent, expr: a.Minus(b)})
}

// AddAbsEquality posts target == |expr|.
func (m *Model) AddAbsEquality(target *IntVar, expr LinearExpr) *Constraint {
	return m.add(&Constraint{kind: kindAbs, target: target, expr: expr})
}

// AddMinEquality posts target == min(vars...).
func (m *Model) AddMinEquality(target *IntVar, vars ...*IntVar) *Constraint {
	return m.add(&Constraint{kind: kindMin, target: target, vars: vars})
}

// AddBoolOr posts that at least one literal is true.
func (m *Model) AddBoolOr(lits ...*IntVar) *Constraint {
	return m.add(&Constraint{kind: kindBoolOr, vars: lits})
}

// Minimize sets the objective. A later call replaces an earlier one.
func (m *Model) Minimize(expr LinearExpr) {
	m.objective = &expr
}

// HasObjective reports whether Minimize was called.
func (m *Model) HasObjective() bool { return m.objective != nil }

// Objective returns the objective expression, if any.
func (m *Model) Objective() (LinearExpr, bool) {
	if m.objective == nil {
		return LinearExpr{}, false
	}
	return *m.objective, true
}

// AddHint suggests a value for v. Solvers try hinted values first.
func (m *Model) AddHint(v *IntVar, value int64) {
	m.hints[v.index] = value
}

// ClearHints drops all hints.
func (m *Model) ClearHints() {
	m.hints = map[int]int64{}
}

// Hint returns the hinted value of v.
func (m *Model) Hint(v *IntVar) (int64, bool) {
	h, ok := m.hints[v.index]
	return h, ok
}

// Validate checks that the model is well formed.
func (m *Model) Validate() error {
	for _, v := range m.vars {
		if v.lb > v.ub {
			return fmt.Errorf("%w: variable %s has empty domain [%d, %d]", ErrModelInvalid, v.name, v.lb, v.ub)
		}
		if v.lb < -MaxDomain || v.ub > MaxDomain {
			return fmt.Errorf("%w: variable %s domain [%d, %d] exceeds ±%d", ErrModelInvalid, v.name, v.lb, v.ub, MaxDomain)
		}
	}
	for i, c := range m.constraints {
		if err := m.validateConstraint(c); err != nil {
			return fmt.Errorf("%w: constraint %d (%s): %v", ErrModelInvalid, i, c.kind, err)
		}
	}
	if m.objective != nil {
		if err := m.checkExpr(*m.objective); err != nil {
			return fmt.Errorf("%w: objective: %v", ErrModelInvalid, err)
		}
	}
	return nil
}

func (m *Model) validateConstraint(c *Constraint) error {
	if len(c.lits) > 0 && c.kind != kindLinear && c.kind != kindDifferent {
		return errors.New("enforcement literals are only supported on linear and different constraints")
	}
	for _, l := range c.lits {
		if err := m.checkBool(l); err != nil {
			return err
		}
	}
	switch c.kind {
	case kindLinear:
		if c.lo > c.hi {
			return fmt.Errorf("empty range [%d, %d]", c.lo, c.hi)
		}
		return m.checkExpr(c.expr)
	case kindDifferent:
		return m.checkExpr(c.expr)
	case kindAbs:
		if err := m.checkVar(c.target); err != nil {
			return err
		}
		return m.checkExpr(c.expr)
	case kindMin:
		if len(c.vars) == 0 {
			return errors.New("min over no variables")
		}
		if err := m.checkVar(c.target); err != nil {
			return err
		}
		for _, v := range c.vars {
			if err := m.checkVar(v); err != nil {
				return err
			}
		}
	case kindBoolOr:
		for _, v := range c.vars {
			if err := m.checkBool(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Model) checkVar(v *IntVar) error {
	if v == nil {
		return errors.New("nil variable")
	}
	if v.model != m {
		return fmt.Errorf("variable %s belongs to another model", v.name)
	}
	return nil
}

func (m *Model) checkBool(v *IntVar) error {
	if err := m.checkVar(v); err != nil {
		return err
	}
	if v.lb < 0 || v.ub > 1 {
		return fmt.Errorf("literal %s is not boolean", v.name)
	}
	return nil
}

func (m *Model) checkExpr(e LinearExpr) error {
	for _, t := range e.terms {
		if err := m.checkVar(t.v); err != nil {
			return err
		}
		if t.coef > MaxDomain || t.coef < -MaxDomain {
			return fmt.Errorf("coefficient %d on %s out of range", t.coef, t.v.name)
		}
	}
	return nil
}

// Check reports the first constraint violated by a full assignment, or nil.
func (m *Model) Check(values []int64) error {
	if len(values) != len(m.vars) {
		return fmt.Errorf("assignment has %d values, model has %d variables", len(values), len(m.vars))
	}
	for _, v := range m.vars {
		if x := values[v.index]; x < v.lb || x > v.ub {
			return fmt.Errorf("%s = %d outside [%d, %d]", v.name, x, v.lb, v.ub)
		}
	}
	for i, c := range m.constraints {
		if !c.enforced(values) {
			continue
		}
		if !c.satisfied(values) {
			return fmt.Errorf("constraint %d (%s) violated", i, c.kind)
		}
	}
	return nil
}

func (c *Constraint) enforced(values []int64) bool {
	for _, l := range c.lits {
		if values[l.index] == 0 {
			return false
		}
	}
	return true
}

func (c *Constraint) satisfied(values []int64) bool {
	switch c.kind {
	case kindLinear:
		s := c.expr.Eval(values)
		return s >= c.lo && s <= c.hi
	case kindDifferent:
		return c.expr.Eval(values) != 0
	case kindAbs:
		s := c.expr.Eval(values)
		if s < 0 {
			s = -s
		}
		return values[c.target.index] == s
	case kindMin:
		best := values[c.vars[0].index]
		for _, v := range c.vars[1:] {
			best = min(best, values[v.index])
		}
		return values[c.target.index] == best
	case kindBoolOr:
		for _, v := range c.vars {
			if values[v.index] != 0 {
				return true
			}
		}
		return false
	}
	return false
}
