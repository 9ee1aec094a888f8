package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/factorygrid/pkg/archive"
	"github.com/matzehuels/factorygrid/pkg/history"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// Defaults for unset values.
const (
	DefaultServerAddr     = "127.0.0.1:8080"
	DefaultMaxTimeLimit   = 30 * time.Second
	DefaultMaxUnits       = 200
	DefaultReadTimeout    = 15 * time.Second
	DefaultRedisPrefix    = "factorygrid:"
	DefaultArchiveTimeout = 10 * time.Second
)

// SetDefaults fills zero values.
func SetDefaults(cfg *Config) {
	if cfg.Paths.CacheDir == "" {
		cfg.Paths.CacheDir = CacheDir()
	}
	if cfg.Paths.RunsDir == "" {
		cfg.Paths.RunsDir = filepath.Join(DataDir(), "solves")
	}
	if cfg.Paths.History == "" {
		cfg.Paths.History = filepath.Join(DataDir(), history.FileName)
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheFile
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = DefaultRedisPrefix
	}

	if cfg.Archive.Database == "" {
		cfg.Archive.Database = archive.DefaultDatabase
	}
	if cfg.Archive.Collection == "" {
		cfg.Archive.Collection = archive.DefaultCollection
	}
	if cfg.Archive.Timeout == 0 {
		cfg.Archive.Timeout = DefaultArchiveTimeout
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Server.MaxTimeLimit == 0 {
		cfg.Server.MaxTimeLimit = DefaultMaxTimeLimit
	}
	if cfg.Server.MaxUnits == 0 {
		cfg.Server.MaxUnits = DefaultMaxUnits
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		// room for the longest solve plus rendering
		cfg.Server.WriteTimeout = cfg.Server.MaxTimeLimit + DefaultReadTimeout
	}

	if cfg.Solver.TimeLimit == 0 {
		cfg.Solver.TimeLimit = pipeline.DefaultTimeLimit
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// CacheDir returns the XDG cache directory (~/.cache/factorygrid/).
func CacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}
	return filepath.Join(home, ".cache", appName)
}

// DataDir returns the XDG data directory (~/.local/share/factorygrid/).
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "data")
	}
	return filepath.Join(home, ".local", "share", appName)
}
