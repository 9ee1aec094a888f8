package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/factorygrid/pkg/observability"
)

// debugHooks logs observability events at debug level.
type debugHooks struct {
	logger *log.Logger
}

func registerDebugHooks(l *log.Logger) {
	h := debugHooks{logger: l}
	observability.SetPipelineHooks(h)
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}

func (h debugHooks) OnResolveStart(_ context.Context, requests int) {
	h.logger.Debug("resolve started", "requests", requests)
}

func (h debugHooks) OnResolveComplete(_ context.Context, recipes, items int, d time.Duration, err error) {
	h.logger.Debug("resolve complete", "recipes", recipes, "items", items, "duration", d, "err", err)
}

func (h debugHooks) OnPlanComplete(_ context.Context, units, edges, unsatisfied int) {
	h.logger.Debug("plan complete", "units", units, "edges", edges, "unsatisfied", unsatisfied)
}

func (h debugHooks) OnSolveStart(_ context.Context, vars, constraints int) {
	h.logger.Debug("solve started", "vars", vars, "constraints", constraints)
}

func (h debugHooks) OnSolution(_ context.Context, index int, objective int64, elapsed time.Duration) {
	h.logger.Debug("solution", "index", index, "objective", objective, "elapsed", elapsed.Round(time.Millisecond))
}

func (h debugHooks) OnSolveComplete(_ context.Context, status string, d time.Duration, err error) {
	h.logger.Debug("solve complete", "status", status, "duration", d.Round(time.Millisecond), "err", err)
}

func (h debugHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h debugHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h debugHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "size", size)
}

func (h debugHooks) OnRequest(_ context.Context, method, route string) {
	h.logger.Debug("http request", "method", method, "route", route)
}

func (h debugHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "route", route, "status", status, "duration", d)
}

var (
	_ observability.PipelineHooks = debugHooks{}
	_ observability.CacheHooks    = debugHooks{}
	_ observability.HTTPHooks     = debugHooks{}
)
