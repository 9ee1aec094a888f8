package pipeline

import (
	"time"

	"github.com/matzehuels/factorygrid/pkg/alloc"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

// Plan is the outcome of the plan stage: the units to place and the flows
// between them.
type Plan struct {
	Requirements *demand.Requirements
	Units        []*factory.Unit
	Bounds       factory.Bounds
	Allocation   *alloc.Plan

	ResolveTime time.Duration
	PlanTime    time.Duration
}

// BuildPlan instantiates units for the resolved requirements on the
// configured grid and allocates their flows. It fails with
// errors.ErrCodeInvalidInput when the unit count exceeds opts.MaxUnits.
func BuildPlan(req *demand.Requirements, opts Options) (*Plan, error) {
	var n int
	for _, d := range req.Recipes {
		n += d.Units()
	}
	if opts.MaxUnits > 0 && n > opts.MaxUnits {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"plan needs %d units, limit is %d: lower the requested rates", n, opts.MaxUnits)
	}
	bounds := factory.GridFor(n)
	if opts.Bounds != nil {
		bounds = *opts.Bounds
	}

	units := factory.Instantiate(req.Recipes, bounds)
	return &Plan{
		Requirements: req,
		Units:        units,
		Bounds:       bounds,
		Allocation:   alloc.NewPlanner(opts.Logger).Plan(units, opts.Sources),
	}, nil
}
