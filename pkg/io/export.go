package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/factorygrid/pkg/factory"
)

// Document is the serialized form of a solved layout.
type Document struct {
	Objective int64          `json:"objective" bson:"objective"`
	Bounds    factory.Bounds `json:"bounds" bson:"bounds"`
	Recipes   []Recipe       `json:"recipes" bson:"recipes"`
	Units     []Unit         `json:"units" bson:"units"`
}

// Recipe is the part of a catalog recipe a layout needs.
type Recipe struct {
	Name        string   `json:"name" bson:"name"`
	Category    string   `json:"category,omitempty" bson:"category,omitempty"`
	Energy      float64  `json:"energy" bson:"energy"`
	Ingredients []Amount `json:"ingredients" bson:"ingredients"`
	Product     Amount   `json:"product" bson:"product"`
}

// Amount is an item name with a per-craft quantity.
type Amount struct {
	Name   string  `json:"name" bson:"name"`
	Amount float64 `json:"amount" bson:"amount"`
}

// Unit is one placed unit.
type Unit struct {
	ID     string  `json:"id" bson:"id"`
	Recipe string  `json:"recipe" bson:"recipe"`
	Amount float64 `json:"amount" bson:"amount"`
	X      int64   `json:"x" bson:"x"`
	Y      int64   `json:"y" bson:"y"`
}

// NewDocument captures placements. Recipes are listed once each, in order
// of first use.
func NewDocument(objective int64, bounds factory.Bounds, placements []factory.Placement) *Document {
	doc := &Document{Objective: objective, Bounds: bounds}
	seen := make(map[string]bool)
	for _, p := range placements {
		r := p.Unit.Recipe
		if !seen[r.Name] {
			seen[r.Name] = true
			rec := Recipe{
				Name:     r.Name,
				Category: r.Category,
				Energy:   r.Energy,
				Product:  Amount{Name: r.MainName(), Amount: r.MainAmount()},
			}
			for _, ing := range r.Ingredients {
				rec.Ingredients = append(rec.Ingredients, Amount{Name: ing.Name, Amount: ing.Amount})
			}
			doc.Recipes = append(doc.Recipes, rec)
		}
		doc.Units = append(doc.Units, Unit{
			ID:     p.Unit.ID,
			Recipe: r.Name,
			Amount: p.Unit.Amount,
			X:      p.At.X,
			Y:      p.At.Y,
		})
	}
	return doc
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(doc *Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes doc to a JSON file at path.
func ExportJSON(doc *Document, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteJSON(doc, f)
}
