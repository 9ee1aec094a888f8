// Package demand flattens requested recipe outputs into aggregate per-recipe
// and per-item rates (bill-of-materials resolution).
//
// Rates are expressed in items per second of a recipe's main product. The
// resolver walks every ingredient of each requested recipe. Ingredients that
// are themselves craftable are recursed into; raw items become item demand;
// names the catalog does not know are logged and skipped.
//
// Resolution accumulates into maps keyed by recipe and item name and emits
// the merged result once, in first-seen order. Requesting the same recipe
// twice yields a single entry whose rate is the sum of both requests.
//
// The traversal has no cycle guard. A catalog in which a recipe (directly or
// transitively) consumes its own product does not terminate.
package demand

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/errors"
)

// Request asks for Rate items per second of a recipe's main product.
type Request struct {
	Recipe string  `json:"recipe" yaml:"recipe" toml:"recipe"`
	Rate   float64 `json:"rate" yaml:"rate" toml:"rate"`
}

// RecipeDemand is the merged main-product rate needed from one recipe.
type RecipeDemand struct {
	Recipe *catalog.Recipe
	Rate   float64
}

// Runs returns the craft runs per second needed to sustain Rate.
func (d RecipeDemand) Runs() float64 {
	return d.Rate / d.Recipe.MainAmount()
}

// Machines returns the fractional number of machines needed to sustain Rate.
func (d RecipeDemand) Machines() float64 {
	return d.Rate * d.Recipe.Energy / d.Recipe.MainAmount()
}

// Units returns the whole number of production units to place.
func (d RecipeDemand) Units() int {
	return int(math.Ceil(d.Machines()))
}

// ItemDemand is the merged consumption rate of a raw item.
type ItemDemand struct {
	Item *catalog.Item
	Rate float64
}

// Requirements is the flattened bill of materials.
type Requirements struct {
	Recipes []RecipeDemand
	Items   []ItemDemand

	// Unresolved lists ingredient names found in neither recipes nor items,
	// in first-seen order.
	Unresolved []string
}

// Recipe returns the merged demand for the named recipe.
func (r *Requirements) Recipe(name string) (RecipeDemand, bool) {
	for _, d := range r.Recipes {
		if d.Recipe.Name == name {
			return d, true
		}
	}
	return RecipeDemand{}, false
}

// Item returns the merged demand for the named item.
func (r *Requirements) Item(name string) (ItemDemand, bool) {
	for _, d := range r.Items {
		if d.Item.Name == name {
			return d, true
		}
	}
	return ItemDemand{}, false
}

// Machines returns the number of units needed for the named recipe, or 0 if
// the recipe is not part of the requirements.
func (r *Requirements) Machines(name string) int {
	d, ok := r.Recipe(name)
	if !ok {
		return 0
	}
	return d.Units()
}

// TotalUnits returns the number of production units across all recipes.
func (r *Requirements) TotalUnits() int {
	n := 0
	for _, d := range r.Recipes {
		n += d.Units()
	}
	return n
}

// Summary renders the requirements as human-readable lines.
func (r *Requirements) Summary() string {
	var b strings.Builder
	var runs float64
	for _, d := range r.Recipes {
		runs += d.Rate
	}
	fmt.Fprintf(&b, "total recipes: %d (Σ rate: %.2f/s)\n", len(r.Recipes), runs)
	for _, d := range r.Recipes {
		fmt.Fprintf(&b, "(assemblers: %.2fx) (amount: %.2f/s) -- %s\n", d.Machines(), d.Rate, d.Recipe.Name)
	}

	var items float64
	for _, d := range r.Items {
		items += d.Rate
	}
	fmt.Fprintf(&b, "\ntotal items: %d (Σ rate: %.2f/s)\n", len(r.Items), items)
	for _, d := range r.Items {
		fmt.Fprintf(&b, "%s: %.2f/s\n", d.Item.Name, d.Rate)
	}
	return b.String()
}

// Resolver flattens requests against a catalog.
type Resolver struct {
	Catalog *catalog.Catalog
	Logger  *log.Logger
}

// NewResolver creates a resolver. A nil logger discards diagnostics.
func NewResolver(c *catalog.Catalog, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Resolver{Catalog: c, Logger: logger}
}

// Resolve flattens the requests into merged recipe and item demand.
//
// A request naming an unknown recipe or carrying a non-positive rate is an
// input error. Unknown ingredient names deeper in the tree are not: they are
// logged, listed in Requirements.Unresolved and their contribution dropped.
func (r *Resolver) Resolve(requests []Request) (*Requirements, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	acc := newAccumulator()
	top := make([]RecipeDemand, 0, len(requests))
	for _, req := range requests {
		recipe, ok := r.Catalog.Recipe(req.Recipe)
		if !ok {
			return nil, errors.New(errors.ErrCodeRecipeNotFound, "unknown recipe: %s", req.Recipe)
		}
		if err := errors.ValidateRate(req.Rate); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "request %s", req.Recipe)
		}
		r.visit(recipe, req.Rate/recipe.MainAmount(), acc, logger)
		top = append(top, RecipeDemand{Recipe: recipe, Rate: req.Rate})
	}

	// Top-level requests are demanded in their own right on top of whatever
	// the other requests consume of them.
	for _, d := range top {
		acc.addRecipe(d.Recipe, d.Rate)
	}

	out := acc.result()
	logger.Debug("resolved demand", "recipes", len(out.Recipes), "items", len(out.Items), "unresolved", len(out.Unresolved))
	return out, nil
}

// visit records the demand generated by runs craft runs per second of recipe.
func (r *Resolver) visit(recipe *catalog.Recipe, runs float64, acc *accumulator, logger *log.Logger) {
	for _, ing := range recipe.Ingredients {
		need := ing.Amount * runs
		if sub, ok := r.Catalog.Recipe(ing.Name); ok {
			acc.addRecipe(sub, need)
			r.visit(sub, need/sub.MainAmount(), acc, logger)
			continue
		}
		if item, ok := r.Catalog.Item(ing.Name); ok {
			acc.addItem(item, need)
			continue
		}
		logger.Warnf("couldn't find %s", ing.Name)
		acc.unresolved(ing.Name)
	}
}

type accumulator struct {
	recipeIdx map[string]int
	recipes   []RecipeDemand
	itemIdx   map[string]int
	items     []ItemDemand
	missing   map[string]bool
	missed    []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		recipeIdx: map[string]int{},
		itemIdx:   map[string]int{},
		missing:   map[string]bool{},
	}
}

func (a *accumulator) addRecipe(r *catalog.Recipe, rate float64) {
	if i, ok := a.recipeIdx[r.Name]; ok {
		a.recipes[i].Rate += rate
		return
	}
	a.recipeIdx[r.Name] = len(a.recipes)
	a.recipes = append(a.recipes, RecipeDemand{Recipe: r, Rate: rate})
}

func (a *accumulator) addItem(it *catalog.Item, rate float64) {
	if i, ok := a.itemIdx[it.Name]; ok {
		a.items[i].Rate += rate
		return
	}
	a.itemIdx[it.Name] = len(a.items)
	a.items = append(a.items, ItemDemand{Item: it, Rate: rate})
}

func (a *accumulator) unresolved(name string) {
	if a.missing[name] {
		return
	}
	a.missing[name] = true
	a.missed = append(a.missed, name)
}

func (a *accumulator) result() *Requirements {
	return &Requirements{Recipes: a.recipes, Items: a.items, Unresolved: a.missed}
}
