// Package catalog loads the recipe and item database that drives demand
// resolution.
//
// A catalog is a read-only, name-keyed view over recipes, items, fluids and
// entities. Lookups that miss return false rather than an error: the demand
// resolver treats an unknown ingredient as a recoverable condition.
//
// # Loading
//
//	cat, err := catalog.LoadFile("recipes.json")
//	if err != nil {
//	    return err
//	}
//	cat = cat.Filter(catalog.DefaultCategories)
//	gear, ok := cat.Recipe("iron-gear-wheel")
package catalog

import (
	"errors"
	"sort"
)

// ErrInvalidRecipe is returned when a recipe violates a catalog invariant
// (missing main product, non-positive main product amount or energy).
var ErrInvalidRecipe = errors.New("invalid recipe")

// ErrUnknownEntity is returned when an entity carries a type discriminator
// that has no registered variant.
var ErrUnknownEntity = errors.New("unknown entity type")

// DefaultCategories are the crafting categories an assembling machine can
// handle. Recipes outside these categories are dropped by Filter.
var DefaultCategories = []string{
	"crafting",
	"pressing",
	"intermediate-products",
	"electronics",
	"crafting-with-fluid",
	"advanced-crafting",
	"electronics-with-fluid",
}

// Catalog is the name-keyed recipe and item database.
type Catalog struct {
	GameVersion string
	Recipes     map[string]*Recipe
	Items       map[string]*Item
	Fluids      map[string]*Fluid
	Entities    map[string]Entity

	// Skipped lists recipes dropped at load time because they violate a
	// recipe invariant, with the reason.
	Skipped []SkippedRecipe
}

// SkippedRecipe records a recipe rejected during loading.
type SkippedRecipe struct {
	Name   string
	Reason error
}

// Recipe returns the recipe with the given name.
func (c *Catalog) Recipe(name string) (*Recipe, bool) {
	r, ok := c.Recipes[name]
	return r, ok
}

// Item returns the item with the given name.
func (c *Catalog) Item(name string) (*Item, bool) {
	it, ok := c.Items[name]
	return it, ok
}

// RecipeNames returns all recipe names in sorted order.
func (c *Catalog) RecipeNames() []string {
	names := make([]string, 0, len(c.Recipes))
	for name := range c.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter returns a shallow copy of the catalog keeping only recipes whose
// category is listed. An empty list keeps every recipe. Items, fluids and
// entities are shared with the receiver.
func (c *Catalog) Filter(categories []string) *Catalog {
	out := *c
	if len(categories) == 0 {
		return &out
	}
	allowed := make(map[string]bool, len(categories))
	for _, cat := range categories {
		allowed[cat] = true
	}
	out.Recipes = make(map[string]*Recipe, len(c.Recipes))
	for name, r := range c.Recipes {
		if allowed[r.Category] {
			out.Recipes[name] = r
		}
	}
	return &out
}

// Categories returns the distinct recipe categories in sorted order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	for _, r := range c.Recipes {
		seen[r.Category] = true
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Recipe is a crafting recipe.
type Recipe struct {
	Name           string           `json:"name"`
	Category       string           `json:"category"`
	Ingredients    List[Ingredient] `json:"ingredients"`
	Products       List[Product]    `json:"products"`
	MainProduct    *Product         `json:"main_product,omitempty"`
	Energy         float64          `json:"energy"`
	Order          string           `json:"order,omitempty"`
	Group          string           `json:"group,omitempty"`
	Subgroup       string           `json:"subgroup,omitempty"`
	Enabled        bool             `json:"enabled,omitempty"`
	TranslatedName string           `json:"translated_name,omitempty"`
}

// MainAmount returns the amount of the main product produced per craft.
func (r *Recipe) MainAmount() float64 {
	if r.MainProduct == nil {
		return 0
	}
	return r.MainProduct.Amount
}

// MainName returns the name of the main product.
func (r *Recipe) MainName() string {
	if r.MainProduct == nil {
		return ""
	}
	return r.MainProduct.Name
}

// Rate returns the main product output of one machine in items per second.
func (r *Recipe) Rate() float64 {
	return r.MainAmount() / r.Energy
}

// Validate checks the recipe invariants.
func (r *Recipe) Validate() error {
	switch {
	case r.MainProduct == nil:
		return errorf(r.Name, "no main product")
	case r.MainProduct.Amount <= 0:
		return errorf(r.Name, "main product amount must be positive (got %g)", r.MainProduct.Amount)
	case r.Energy <= 0:
		return errorf(r.Name, "energy must be positive (got %g)", r.Energy)
	}
	return nil
}

// Ingredient is one input of a recipe, per craft.
type Ingredient struct {
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`

	// Item is linked by name after loading; nil for fluids and unknown names.
	Item *Item `json:"-"`
}

// Product is one output of a recipe, per craft.
type Product struct {
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	Probability float64 `json:"probability,omitempty"`

	Item *Item `json:"-"`
}

// Item is a solid item. Identity is by name.
type Item struct {
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Order          string       `json:"order,omitempty"`
	Group          string       `json:"group,omitempty"`
	Subgroup       string       `json:"subgroup,omitempty"`
	StackSize      int          `json:"stack_size"`
	Weight         float64      `json:"weight,omitempty"`
	FuelValue      int64        `json:"fuel_value,omitempty"`
	FuelCategory   string       `json:"fuel_category,omitempty"`
	Flags          List[string] `json:"flags,omitempty"`
	TranslatedName string       `json:"translated_name,omitempty"`
}

// Fluid is a fluid. Fluids are never placed; they only appear as
// ingredients.
type Fluid struct {
	Name           string `json:"name"`
	Order          string `json:"order,omitempty"`
	Group          string `json:"group,omitempty"`
	Subgroup       string `json:"subgroup,omitempty"`
	FuelValue      int64  `json:"fuel_value,omitempty"`
	TranslatedName string `json:"translated_name,omitempty"`
}

// New returns an empty catalog for building recipes in code.
func New() *Catalog {
	return &Catalog{
		Recipes:  map[string]*Recipe{},
		Items:    map[string]*Item{},
		Fluids:   map[string]*Fluid{},
		Entities: map[string]Entity{},
	}
}

// AddItem registers an item and returns it.
func (c *Catalog) AddItem(name string, stackSize int) *Item {
	it := &Item{Name: name, Type: "item", StackSize: stackSize}
	c.Items[name] = it
	return it
}

// AddRecipe validates r and registers it, linking its ingredients and
// products to already registered items.
func (c *Catalog) AddRecipe(r *Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	c.Recipes[r.Name] = r
	c.interlink()
	return nil
}
