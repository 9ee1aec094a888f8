// Package blueprint encodes solved layouts as importable blueprint strings.
//
// Every placed unit becomes a fixed tile of TileWidth x TileHeight cells: an
// assembling machine set to the unit's recipe, a requester chest asking for
// the recipe's ingredients, a passive provider chest for the output, two fast
// inserters and a medium electric pole. Poles are wired to the poles of the
// tiles directly left of and above them on the solver grid.
//
// A blueprint string is the version byte "0" followed by the base64 encoding
// of the zlib-compressed blueprint JSON.
package blueprint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/matzehuels/factorygrid/pkg/factory"
)

const (
	// TileWidth and TileHeight are the footprint of one unit in game cells.
	TileWidth  = 5
	TileHeight = 4

	// Version is the game map version stamped into generated blueprints.
	Version int64 = 281479276658688

	// DefaultLabel is used when no label option is given.
	DefaultLabel = "factorygrid layout"

	// DefaultIcon is used when no icon option is given and no placement
	// exists to derive one from.
	DefaultIcon = "assembling-machine-2"

	stringVersion = "0"
)

// Entity names used in generated tiles.
const (
	EntityAssembler = "assembling-machine-2"
	EntityRequester = "logistic-chest-requester"
	EntityProvider  = "logistic-chest-passive-provider"
	EntityInserter  = "fast-inserter"
	EntityPole      = "medium-electric-pole"
)

// Document is the outer JSON object of a blueprint string.
type Document struct {
	Blueprint Blueprint `json:"blueprint"`
}

// Blueprint is the decoded content of a blueprint string.
type Blueprint struct {
	Icons    []Icon   `json:"icons"`
	Entities []Entity `json:"entities"`
	Item     string   `json:"item"`
	Label    string   `json:"label,omitempty"`
	Version  int64    `json:"version"`
}

// Icon is one of the blueprint's preview icons.
type Icon struct {
	Signal Signal `json:"signal"`
	Index  int    `json:"index"`
}

// Signal names an item shown as an icon.
type Signal struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Entity is one placed game entity.
type Entity struct {
	Number             int             `json:"entity_number"`
	Name               string          `json:"name"`
	Position           Position        `json:"position"`
	Direction          int             `json:"direction"`
	Recipe             string          `json:"recipe,omitempty"`
	RequestFromBuffers bool            `json:"request_from_buffers,omitempty"`
	RequestFilters     []RequestFilter `json:"request_filters,omitempty"`
	Neighbours         []int           `json:"neighbours,omitempty"`
}

// Position is an entity center in game cells.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RequestFilter is one slot of a requester chest.
type RequestFilter struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Option configures [Build].
type Option func(*builder)

type builder struct {
	label string
	icon  string
}

// WithLabel sets the blueprint label.
func WithLabel(label string) Option { return func(b *builder) { b.label = label } }

// WithIcon sets the item shown as the blueprint icon. Without it the main
// product of the last placement is used.
func WithIcon(item string) Option { return func(b *builder) { b.icon = item } }

// entitiesPerTile is the number of entities emitted for each placement.
const entitiesPerTile = 6

// Build lays out one tile per placement. Solver coordinates are 1-based;
// the tile of a unit at (x, y) starts at ((x-1)*TileWidth, (y-1)*TileHeight).
func Build(placements []factory.Placement, opts ...Option) *Blueprint {
	b := builder{label: DefaultLabel}
	for _, opt := range opts {
		opt(&b)
	}
	if b.icon == "" {
		b.icon = DefaultIcon
		if n := len(placements); n > 0 {
			b.icon = placements[n-1].Unit.Product()
		}
	}

	poles := make(map[factory.Coord]int, len(placements))
	for i, p := range placements {
		poles[p.At] = i*entitiesPerTile + entitiesPerTile
	}

	bp := &Blueprint{
		Icons:   []Icon{{Signal: Signal{Type: "item", Name: b.icon}, Index: 1}},
		Item:    "blueprint",
		Label:   b.label,
		Version: Version,
	}
	for i, p := range placements {
		bp.Entities = append(bp.Entities, tile(p, i*entitiesPerTile+1, neighbours(p.At, poles))...)
	}
	return bp
}

func neighbours(at factory.Coord, poles map[factory.Coord]int) []int {
	var out []int
	for _, c := range []factory.Coord{{X: at.X - 1, Y: at.Y}, {X: at.X, Y: at.Y - 1}} {
		if n, ok := poles[c]; ok {
			out = append(out, n)
		}
	}
	return out
}

// tile returns the entities of one placement, numbered from first.
func tile(p factory.Placement, first int, wires []int) []Entity {
	bx := float64((p.At.X - 1) * TileWidth)
	by := float64((p.At.Y - 1) * TileHeight)
	at := func(dx, dy float64) Position { return Position{X: bx + dx, Y: by + dy} }

	r := p.Unit.Recipe
	var filters []RequestFilter
	for i, ing := range r.Ingredients {
		filters = append(filters, RequestFilter{
			Index: i + 1,
			Name:  ing.Name,
			Count: requestCount(ing.Amount, r.Energy),
		})
	}

	return []Entity{
		{Number: first, Name: EntityAssembler, Position: at(1.5, 1.5), Direction: 1, Recipe: r.Name},
		{Number: first + 1, Name: EntityRequester, Position: at(4.5, 0.5), Direction: 2, RequestFromBuffers: true, RequestFilters: filters},
		{Number: first + 2, Name: EntityProvider, Position: at(4.5, 1.5), Direction: 2},
		{Number: first + 3, Name: EntityInserter, Position: at(3.5, 0.5), Direction: 2},
		{Number: first + 4, Name: EntityInserter, Position: at(3.5, 1.5), Direction: 6},
		{Number: first + 5, Name: EntityPole, Position: at(3.5, 2.5), Direction: 2, Neighbours: wires},
	}
}

// requestCount is the number of items a requester keeps stocked: four
// seconds of consumption at full crafting speed.
func requestCount(amount, energy float64) int {
	if energy <= 0 {
		return int(math.Ceil(amount * 4))
	}
	return int(math.Ceil(amount / energy * 4))
}

// Encode serializes bp as a blueprint string.
func Encode(bp *Blueprint) (string, error) {
	data, err := json.Marshal(Document{Blueprint: *bp})
	if err != nil {
		return "", fmt.Errorf("marshal blueprint: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compress blueprint: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress blueprint: %w", err)
	}
	return stringVersion + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a blueprint string produced by [Encode] or the game.
func Decode(s string) (*Blueprint, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, stringVersion) {
		return nil, fmt.Errorf("unsupported blueprint string version")
	}
	raw, err := base64.StdEncoding.DecodeString(s[len(stringVersion):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress blueprint: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal blueprint: %w", err)
	}
	return &doc.Blueprint, nil
}

// String builds and encodes a blueprint for placements in one step.
func String(placements []factory.Placement, opts ...Option) (string, error) {
	return Encode(Build(placements, opts...))
}
