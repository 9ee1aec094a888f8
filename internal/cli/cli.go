// Package cli implements the factorygrid command-line interface.
package cli

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/config"
	"github.com/matzehuels/factorygrid/pkg/buildinfo"
	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/demand"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "factorygrid"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. Debug also routes observability
// events to the logger.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.verbose = level <= log.DebugLevel
	if c.verbose {
		registerDebugHooks(c.Logger)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "factorygrid lays out self-contained factory blocks",
		Long: `factorygrid turns target production rates into a placed grid of production
units: it resolves the bill of materials from a recipe catalog, allocates
ingredient flows between units, and searches for the placement with the
shortest weighted transport distance. The best layout is exported as an
importable blueprint string.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./factorygrid.yaml)")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.blueprintCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration
// =============================================================================

// config loads the tool configuration once. The configured log level
// applies unless --verbose already lowered it.
func (c *CLI) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if !c.verbose {
		if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
			c.Logger.SetLevel(level)
		}
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(c.newCache(ctx, cfg, noCache), nil, c.Logger), nil
}

// newCache opens the configured hint cache. An unreachable backend
// disables caching rather than failing the command.
func (c *CLI) newCache(ctx context.Context, cfg *config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			c.Logger.Warn("redis cache unavailable, caching disabled", "addr", cfg.Cache.Redis.Addr, "err", err)
			return cache.NewNullCache()
		}
		return rc
	case config.CacheFile:
		fc, err := cache.NewFileCache(cfg.Paths.CacheDir)
		if err != nil {
			c.Logger.Warn("file cache unavailable, caching disabled", "dir", cfg.Paths.CacheDir, "err", err)
			return cache.NewNullCache()
		}
		return fc
	}
	return cache.NewNullCache()
}

// =============================================================================
// Flag Helpers
// =============================================================================

// parseRequests parses "recipe=rate" flag values.
func parseRequests(values []string) ([]demand.Request, error) {
	requests := make([]demand.Request, 0, len(values))
	for _, v := range values {
		name, rateStr, ok := strings.Cut(v, "=")
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid request %q (want recipe=rate)", v)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(rateStr), 64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid rate in %q", v)
		}
		requests = append(requests, demand.Request{Recipe: strings.TrimSpace(name), Rate: rate})
	}
	return requests, nil
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// formatRate prints an items-per-second rate with at most three decimals.
func formatRate(r float64) string {
	return strconv.FormatFloat(math.Round(r*1000)/1000, 'f', -1, 64) + "/s"
}
