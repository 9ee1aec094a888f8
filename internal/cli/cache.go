package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/config"
	"github.com/matzehuels/factorygrid/pkg/cache"
	"github.com/matzehuels/factorygrid/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the solver hint cache",
		Long: `Manage the solver hint cache.

The cache keeps the best layout of every solved problem so the next run of
the same plan starts from it. Only the file backend can be cleared from
here; Redis entries expire on their own.`,
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached layouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Cache.Backend != config.CacheFile {
				printWarning("cache backend %q cannot be cleared from the CLI", cfg.Cache.Backend)
				return nil
			}

			fc, err := cache.NewFileCache(cfg.Paths.CacheDir)
			if err != nil {
				return errors.Wrap(errors.ErrCodeStorage, err, "open cache %s", cfg.Paths.CacheDir)
			}
			count, err := fc.Clear()
			if err != nil {
				return errors.Wrap(errors.ErrCodeStorage, err, "clear cache")
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}

			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", fc.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			fmt.Println(cfg.Paths.CacheDir)
			return nil
		},
	}
}
