package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

// ReadJSON decodes a layout document from r. It does not close r.
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &doc, nil
}

// ImportJSON reads a layout document from the file at path.
func ImportJSON(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Placements rebuilds the units and their positions.
func (d *Document) Placements() ([]factory.Placement, error) {
	recipes := make(map[string]*catalog.Recipe, len(d.Recipes))
	for _, r := range d.Recipes {
		rec := &catalog.Recipe{
			Name:        r.Name,
			Category:    r.Category,
			Energy:      r.Energy,
			MainProduct: &catalog.Product{Type: "item", Name: r.Product.Name, Amount: r.Product.Amount},
		}
		rec.Products = catalog.List[catalog.Product]{*rec.MainProduct}
		for _, ing := range r.Ingredients {
			rec.Ingredients = append(rec.Ingredients, catalog.Ingredient{Type: "item", Name: ing.Name, Amount: ing.Amount})
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		recipes[r.Name] = rec
	}

	ids := make(map[string]bool, len(d.Units))
	cells := make(map[factory.Coord]string, len(d.Units))
	out := make([]factory.Placement, 0, len(d.Units))
	for _, u := range d.Units {
		rec, ok := recipes[u.Recipe]
		if !ok {
			return nil, fmt.Errorf("unit %s: unknown recipe %q", u.ID, u.Recipe)
		}
		if ids[u.ID] {
			return nil, fmt.Errorf("unit %s: duplicate id", u.ID)
		}
		ids[u.ID] = true

		at := factory.Coord{X: u.X, Y: u.Y}
		if !d.Bounds.Contains(at) {
			return nil, fmt.Errorf("unit %s: %s outside %s", u.ID, at, d.Bounds)
		}
		if other, ok := cells[at]; ok {
			return nil, fmt.Errorf("unit %s: %s already taken by %s", u.ID, at, other)
		}
		cells[at] = u.ID

		unit := &factory.Unit{ID: u.ID, Recipe: rec, Amount: u.Amount, Bounds: d.Bounds}
		out = append(out, factory.NewPlacement(unit, at))
	}
	return out, nil
}
