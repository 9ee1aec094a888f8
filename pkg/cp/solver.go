package cp

import (
	"context"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	// Unknown means the search stopped before finding a solution or
	// proving there is none.
	Unknown Status = iota
	// ModelInvalid means the model failed validation.
	ModelInvalid
	// Feasible means a solution was found but not proven optimal.
	Feasible
	// Infeasible means the search proved there is no solution.
	Infeasible
	// Optimal means the best solution was found and the search completed.
	Optimal
)

func (s Status) String() string {
	switch s {
	case ModelInvalid:
		return "MODEL_INVALID"
	case Feasible:
		return "FEASIBLE"
	case Infeasible:
		return "INFEASIBLE"
	case Optimal:
		return "OPTIMAL"
	}
	return "UNKNOWN"
}

// HasSolution reports whether the status carries a usable assignment.
func (s Status) HasSolution() bool {
	return s == Feasible || s == Optimal
}

// Solver searches a model.
type Solver interface {
	// Solve searches m and calls cb once per improving solution, on the
	// calling goroutine. It returns when the search completes, ctx is
	// canceled, the solver's limits are hit or cb requests a stop.
	Solve(ctx context.Context, m *Model, cb Callback) (Status, error)
}

// Callback receives improving solutions.
type Callback interface {
	OnSolution(s *Solution)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(s *Solution)

// OnSolution implements Callback.
func (f CallbackFunc) OnSolution(s *Solution) { f(s) }

// Solution is a read-only view of one solution. It is only valid for the
// duration of the callback; use Values to keep a copy.
type Solution struct {
	values    []int64
	objective int64
	index     int
	wall      time.Duration
	stop      *bool
}

// Value returns the value assigned to v.
func (s *Solution) Value(v *IntVar) int64 { return s.values[v.index] }

// ObjectiveValue returns the objective value, or 0 without an objective.
func (s *Solution) ObjectiveValue() int64 { return s.objective }

// Index returns the 1-based number of this solution within the search.
func (s *Solution) Index() int { return s.index }

// WallTime returns the time elapsed since the search started.
func (s *Solution) WallTime() time.Duration { return s.wall }

// Values returns a copy of the full assignment in declaration order.
func (s *Solution) Values() []int64 {
	out := make([]int64, len(s.values))
	copy(out, s.values)
	return out
}

// StopSearch asks the solver to return after the callback.
func (s *Solution) StopSearch() { *s.stop = true }
