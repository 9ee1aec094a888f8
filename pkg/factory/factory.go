// Package factory holds the placed building blocks of a layout: production
// units, fixed source nodes and the grid they live on.
package factory

import (
	"fmt"
	"math"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/demand"
)

// UnitTag prefixes generated unit IDs.
const UnitTag = "x"

// DefaultForce is the source weight used when none is given.
const DefaultForce = 1.0

// Coord is an integer grid coordinate.
type Coord struct {
	X int64 `json:"x" toml:"x" yaml:"x"`
	Y int64 `json:"y" toml:"y" yaml:"y"`
}

func (c Coord) String() string { return fmt.Sprintf("(%d, %d)", c.X, c.Y) }

// Bounds is the inclusive rectangle [LX..UX] x [LY..UY].
type Bounds struct {
	LX int64 `json:"lx" toml:"lx" yaml:"lx"`
	UX int64 `json:"ux" toml:"ux" yaml:"ux"`
	LY int64 `json:"ly" toml:"ly" yaml:"ly"`
	UY int64 `json:"uy" toml:"uy" yaml:"uy"`
}

// GridFor returns a square grid with room for n units. The side is
// ceil(sqrt(n)) + 1, anchored at (1, 1).
func GridFor(n int) Bounds {
	side := int64(math.Ceil(math.Sqrt(float64(n)))) + 1
	return Bounds{LX: 1, UX: side, LY: 1, UY: side}
}

// Width returns the number of columns.
func (b Bounds) Width() int64 { return b.UX - b.LX + 1 }

// Height returns the number of rows.
func (b Bounds) Height() int64 { return b.UY - b.LY + 1 }

// Cells returns the number of grid cells.
func (b Bounds) Cells() int64 { return b.Width() * b.Height() }

// Contains reports whether c lies within the bounds.
func (b Bounds) Contains(c Coord) bool {
	return c.X >= b.LX && c.X <= b.UX && c.Y >= b.LY && c.Y <= b.UY
}

func (b Bounds) String() string {
	return fmt.Sprintf("bounds(lx=%d, ux=%d, ly=%d, uy=%d)", b.LX, b.UX, b.LY, b.UY)
}

// Unit is one placed instance of a recipe.
//
// Amount is this unit's equal share of its recipe's craft runs per second,
// so ingredient.Amount * Amount is the unit's consumption of that
// ingredient in items per second. Usage is the fraction of the unit's
// output already claimed by consumers; only the allocation planner
// changes it.
type Unit struct {
	ID     string
	Recipe *catalog.Recipe
	Amount float64
	Usage  float64
	Bounds Bounds
}

// Product returns the name of the unit's main product.
func (u *Unit) Product() string { return u.Recipe.MainName() }

// Rate returns the unit's full main-product throughput in items per second.
func (u *Unit) Rate() float64 { return u.Recipe.Rate() }

// Need returns the unit's consumption rate of ingredient i.
func (u *Unit) Need(i int) float64 {
	return u.Recipe.Ingredients[i].Amount * u.Amount
}

func (u *Unit) String() string { return u.ID }

// Instantiate replicates each recipe demand into ceil(machines) units,
// splitting the recipe's runs evenly between them. Units are returned in
// demand order; IDs are "<tag>_<recipe>_<n>" with n counting from 1.
func Instantiate(recipes []demand.RecipeDemand, bounds Bounds) []*Unit {
	var units []*Unit
	for _, d := range recipes {
		n := d.Units()
		if n == 0 {
			continue
		}
		share := d.Runs() / float64(n)
		for i := 1; i <= n; i++ {
			units = append(units, &Unit{
				ID:     fmt.Sprintf("%s_%s_%d", UnitTag, d.Recipe.Name, i),
				Recipe: d.Recipe,
				Amount: share,
				Bounds: bounds,
			})
		}
	}
	return units
}

// Source is a fixed external feed point for one item.
type Source struct {
	Item  string  `json:"item" toml:"item" yaml:"item"`
	At    Coord   `json:"at" toml:"at" yaml:"at"`
	Force float64 `json:"force,omitempty" toml:"force" yaml:"force"`
}

// Weight returns the source force, substituting DefaultForce for zero.
func (s Source) Weight() float64 {
	if s.Force == 0 {
		return DefaultForce
	}
	return s.Force
}

// IngredientDemand is one ingredient consumption rate of a placed unit.
type IngredientDemand struct {
	Item string  `json:"item"`
	Rate float64 `json:"rate"`
}

// Placement is a unit at a solved grid position.
type Placement struct {
	Unit   *Unit
	At     Coord
	Demand []IngredientDemand
}

// NewPlacement places u at c and records its per-ingredient demand.
func NewPlacement(u *Unit, c Coord) Placement {
	p := Placement{Unit: u, At: c}
	for i, ing := range u.Recipe.Ingredients {
		p.Demand = append(p.Demand, IngredientDemand{Item: ing.Name, Rate: u.Need(i)})
	}
	return p
}
