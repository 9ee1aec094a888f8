package cache

import (
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/factory"
)

// Keyer derives cache keys from problem descriptions.
type Keyer interface {
	// PlacementKey identifies the best known layout of one planning problem.
	PlacementKey(opts PlacementKeyOpts) string

	// ResolveKey identifies a resolved bill of materials.
	ResolveKey(catalogHash string, requests []demand.Request) string
}

// PlacementKeyOpts holds everything that changes the placement model.
// Solver limits are left out on purpose: a longer run of the same problem
// should reuse the layout of a shorter one.
type PlacementKeyOpts struct {
	CatalogHash  string           `json:"catalog"`
	Categories   []string         `json:"categories,omitempty"`
	Requests     []demand.Request `json:"requests"`
	Sources      []factory.Source `json:"sources,omitempty"`
	Bounds       factory.Bounds   `json:"bounds"`
	Scale        int64            `json:"scale"`
	SourceOffset int64            `json:"source_offset"`
}

// DefaultKeyer hashes key material with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// PlacementKey returns "placement:<hash>".
func (DefaultKeyer) PlacementKey(opts PlacementKeyOpts) string {
	return hashKey("placement", opts)
}

// ResolveKey returns "resolve:<hash>".
func (DefaultKeyer) ResolveKey(catalogHash string, requests []demand.Request) string {
	return hashKey("resolve", catalogHash, requests)
}

var _ Keyer = DefaultKeyer{}
