package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/server"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
)

// serveFlags holds overrides for the server configuration.
type serveFlags struct {
	addr         string
	maxTimeLimit time.Duration
	maxUnits     int
	noCache      bool
}

// serveCommand creates the serve command that runs the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve [recipes.json]",
		Short: "Serve the resolve and plan API over HTTP",
		Long: `Serve the resolve and plan API over HTTP for one recipe catalog.

Routes:
  GET  /healthz
  POST /v1/resolve   {"requests": [{"recipe": "...", "rate": 1.5}]}
  POST /v1/plan      resolve, allocate and place; returns the blueprint

Plan requests never write run directories and their solver time limit is
capped by server.max_time_limit. Stop the server with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&flags.maxTimeLimit, "max-time-limit", 0, "cap on the solver time of one request")
	cmd.Flags().IntVar(&flags.maxUnits, "max-units", 0, "cap on the units one request may place (default from config)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the hint and resolve cache")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, catalogPath string, flags serveFlags) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	srvCfg := cfg.Server
	if flags.addr != "" {
		srvCfg.Addr = flags.addr
	}
	if flags.maxTimeLimit > 0 {
		srvCfg.MaxTimeLimit = flags.maxTimeLimit
		srvCfg.WriteTimeout = flags.maxTimeLimit + srvCfg.ReadTimeout
	}
	if flags.maxUnits > 0 {
		srvCfg.MaxUnits = flags.maxUnits
	}

	cat, hash, err := pipeline.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := server.New(server.Config{
		Catalog:      cat,
		CatalogHash:  hash,
		Runner:       runner,
		Logger:       c.Logger,
		MaxTimeLimit: srvCfg.MaxTimeLimit,
		MaxUnits:     srvCfg.MaxUnits,
	})

	printSuccess("Serving %s recipes on %s", StyleNumber.Render(fmt.Sprint(len(cat.Recipes))), StyleLink.Render("http://"+srvCfg.Addr))
	printDetail("Catalog: %s", catalogPath)
	printDetail("Cache: %s", cfg.Cache.Backend)

	return srv.ListenAndServe(ctx, srvCfg.Addr, srvCfg.ReadTimeout, srvCfg.WriteTimeout)
}
