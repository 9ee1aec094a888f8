package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed catalog.schema.json
var schemaSource string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("catalog.schema.json", schemaSource)
	})
	return schema, schemaErr
}

// document mirrors the on-disk layout of a catalog dump.
type document struct {
	GameVersion string                     `json:"game_version"`
	Recipes     map[string]*Recipe         `json:"recipes"`
	Items       map[string]*Item           `json:"items"`
	Fluids      map[string]*Fluid          `json:"fluids"`
	Entities    map[string]json.RawMessage `json:"entities"`
}

// Validate checks raw catalog JSON against the catalog schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// Load reads and validates a catalog from r. Recipes that violate a recipe
// invariant are left out and reported in Catalog.Skipped; structural errors
// fail the whole load.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a catalog from a JSON file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Parse decodes catalog JSON already held in memory.
func Parse(data []byte) (*Catalog, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	c := &Catalog{
		GameVersion: doc.GameVersion,
		Recipes:     make(map[string]*Recipe, len(doc.Recipes)),
		Items:       doc.Items,
		Fluids:      doc.Fluids,
		Entities:    make(map[string]Entity, len(doc.Entities)),
	}
	if c.Items == nil {
		c.Items = map[string]*Item{}
	}
	if c.Fluids == nil {
		c.Fluids = map[string]*Fluid{}
	}

	for name, raw := range doc.Entities {
		e, err := decodeEntity(raw)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		c.Entities[name] = e
	}

	for key, r := range doc.Recipes {
		if r.Name == "" {
			r.Name = key
		}
		if r.MainProduct == nil && len(r.Products) == 1 {
			p := r.Products[0]
			r.MainProduct = &p
		}
		if err := r.Validate(); err != nil {
			c.Skipped = append(c.Skipped, SkippedRecipe{Name: r.Name, Reason: err})
			continue
		}
		c.Recipes[r.Name] = r
	}
	sort.Slice(c.Skipped, func(i, j int) bool { return c.Skipped[i].Name < c.Skipped[j].Name })

	c.interlink()
	return c, nil
}

// interlink resolves product and ingredient names to item records.
func (c *Catalog) interlink() {
	for _, r := range c.Recipes {
		for i := range r.Products {
			r.Products[i].Item = c.Items[r.Products[i].Name]
		}
		for i := range r.Ingredients {
			r.Ingredients[i].Item = c.Items[r.Ingredients[i].Name]
		}
		if r.MainProduct != nil {
			r.MainProduct.Item = c.Items[r.MainProduct.Name]
		}
	}
}

type recipeError struct {
	recipe string
	msg    string
}

func (e *recipeError) Error() string {
	return fmt.Sprintf("recipe %s: %s", e.recipe, e.msg)
}

func (e *recipeError) Unwrap() error { return ErrInvalidRecipe }

func errorf(recipe, format string, args ...any) error {
	return &recipeError{recipe: recipe, msg: fmt.Sprintf(format, args...)}
}

// Summary returns a one-line description of the catalog contents.
func (c *Catalog) Summary() string {
	var b strings.Builder
	if c.GameVersion != "" {
		fmt.Fprintf(&b, "game %s: ", c.GameVersion)
	}
	fmt.Fprintf(&b, "%d recipes, %d items, %d fluids, %d entities",
		len(c.Recipes), len(c.Items), len(c.Fluids), len(c.Entities))
	return b.String()
}
