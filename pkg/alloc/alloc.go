// Package alloc assigns each unit's ingredient demand to suppliers before
// placement.
//
// Allocation is greedy and order-dependent. Consumers are visited in
// declaration order, their ingredients in recipe order, and candidate
// producers in declaration order; each producer gives up as much of its
// residual capacity as the consumer still needs. Sources are attached
// unconditionally, one edge per item group, so the placement model can
// always route demand to them.
//
// The resulting flow graph is fixed: placement only chooses coordinates.
package alloc

import (
	"io"
	"math"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/factory"
)

// FlowEdge is a committed flow of one item from a supplier to a consumer.
// Exactly one of Producer and Sources is set.
type FlowEdge struct {
	Consumer *factory.Unit
	Item     string
	Amount   float64

	// Producer is the supplying unit for in-network edges.
	Producer *factory.Unit

	// Sources holds every source of the item group for source edges; the
	// placement model charges the nearest one.
	Sources []factory.Source

	// Force weights a source edge's cost. It is the force of the group's
	// first source, or 1 for producer edges.
	Force float64
}

// IsSource reports whether the edge draws from external sources.
func (e FlowEdge) IsSource() bool { return e.Producer == nil }

// Unsatisfied records demand that neither producers nor a source group of
// the ingredient itself could cover.
type Unsatisfied struct {
	Consumer *factory.Unit
	Item     string
	Amount   float64
}

// Plan is the outcome of an allocation run.
type Plan struct {
	Edges       []FlowEdge
	Unsatisfied []Unsatisfied
}

// ProducerEdges returns the in-network edges.
func (p *Plan) ProducerEdges() []FlowEdge {
	var out []FlowEdge
	for _, e := range p.Edges {
		if !e.IsSource() {
			out = append(out, e)
		}
	}
	return out
}

// SourceEdges returns the edges drawing from sources.
func (p *Plan) SourceEdges() []FlowEdge {
	var out []FlowEdge
	for _, e := range p.Edges {
		if e.IsSource() {
			out = append(out, e)
		}
	}
	return out
}

// Planner runs the greedy allocation.
type Planner struct {
	Logger *log.Logger
}

// NewPlanner creates a planner. A nil logger discards diagnostics.
func NewPlanner(logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Planner{Logger: logger}
}

// Plan allocates ingredient demand for every unit and updates producer
// usage in place. Calling Plan twice on the same units allocates against
// the usage left by the first call.
func (p *Planner) Plan(units []*factory.Unit, sources []factory.Source) *Plan {
	logger := p.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	plan := &Plan{}
	for _, consumer := range units {
		for i, ing := range consumer.Recipe.Ingredients {
			total := consumer.Need(i)
			remaining := total

			for _, producer := range units {
				if producer.Product() != ing.Name {
					continue
				}
				satisfied := draw(producer, remaining)
				remaining = math.Max(0, remaining-satisfied)
				if satisfied > 0 {
					plan.Edges = append(plan.Edges, FlowEdge{
						Consumer: consumer,
						Producer: producer,
						Item:     ing.Name,
						Amount:   satisfied,
						Force:    factory.DefaultForce,
					})
				}
			}

			srcEdges := sourceEdges(consumer, ing.Name, total, sources)
			plan.Edges = append(plan.Edges, srcEdges...)

			if remaining > 0 && suppliesItem(srcEdges, ing.Name) {
				logger.Debug("covered by sources", "consumer", consumer.ID, "item", ing.Name, "remaining", remaining)
				continue
			}
			if remaining > 0 {
				logger.Debug("unsatisfied by producers", "consumer", consumer.ID, "item", ing.Name, "remaining", remaining)
				plan.Unsatisfied = append(plan.Unsatisfied, Unsatisfied{
					Consumer: consumer,
					Item:     ing.Name,
					Amount:   remaining,
				})
			}
		}
	}

	logger.Debug("allocated flow", "edges", len(plan.Edges), "unsatisfied", len(plan.Unsatisfied))
	return plan
}

// epsilon absorbs floating-point residue left on a fully used producer.
const epsilon = 1e-9

// draw claims up to need items per second from producer and returns the
// amount claimed. Usage never exceeds 1.
func draw(producer *factory.Unit, need float64) float64 {
	rate := producer.Rate()
	if rate <= 0 || need <= 0 {
		return 0
	}
	capacity := math.Max(0, 1-producer.Usage) * rate
	if capacity < epsilon {
		return 0
	}
	satisfied := math.Min(capacity, need)
	producer.Usage = math.Min(1, producer.Usage+satisfied/rate)
	return satisfied
}

// suppliesItem reports whether one of the source edges delivers item. A
// group of the consumer's own product does not count.
func suppliesItem(edges []FlowEdge, item string) bool {
	for _, e := range edges {
		if e.Item == item {
			return true
		}
	}
	return false
}

// sourceEdges groups the sources matching the ingredient or the consumer's
// own product by item and emits one edge per group.
func sourceEdges(consumer *factory.Unit, ingredient string, total float64, sources []factory.Source) []FlowEdge {
	var order []string
	groups := map[string][]factory.Source{}
	for _, s := range sources {
		if s.Item != ingredient && s.Item != consumer.Product() {
			continue
		}
		if _, ok := groups[s.Item]; !ok {
			order = append(order, s.Item)
		}
		groups[s.Item] = append(groups[s.Item], s)
	}

	edges := make([]FlowEdge, 0, len(order))
	for _, item := range order {
		g := groups[item]
		edges = append(edges, FlowEdge{
			Consumer: consumer,
			Item:     item,
			Amount:   total,
			Sources:  g,
			Force:    g[0].Weight(),
		})
	}
	return edges
}
