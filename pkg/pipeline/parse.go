package pipeline

import (
	"os"

	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/catalog"
	"github.com/matzehuels/factorygrid/pkg/errors"
)

// LoadCatalog reads and validates a catalog file. It also returns the
// content hash used in cache keys.
func LoadCatalog(path string) (*catalog.Catalog, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.Wrap(errors.ErrCodeNotFound, err, "catalog %s", path)
		}
		return nil, "", errors.Wrap(errors.ErrCodeStorage, err, "read catalog %s", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog is LoadCatalog for catalog bytes already in memory.
func ParseCatalog(data []byte) (*catalog.Catalog, string, error) {
	cat, err := catalog.Parse(data)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrCodeInvalidCatalog, err, "invalid catalog")
	}
	return cat, cache.Hash(data), nil
}
