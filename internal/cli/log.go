// Package cli implements the factorygrid command-line interface.
//
// Commands are thin wrappers around pkg/pipeline: each one loads its inputs,
// builds pipeline options from flags and plan files, runs the stages it
// needs and prints the result with lipgloss styles.
//
// # Commands
//
//   - resolve: bill of materials for target rates
//   - plan: full pipeline, streams improving layouts into a run directory
//   - graph: flow graph of a plan as DOT or SVG
//   - blueprint: re-encode a saved layout as a blueprint string
//   - history, runs: score history and past run directories
//   - serve: HTTP API
//   - cache: manage the solver hint cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// logs pipeline and cache events through the observability hooks. The plan
// command additionally copies its log into the run directory.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// logTimeFormat renders timestamps as "HH:MM:SS.ms" (e.g., "14:32:01.45").
const logTimeFormat = "15:04:05.00"

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      logTimeFormat,
		Level:           level,
	})
}

// teeLogger returns a logger with l's level that writes to l's output and
// to extra. The combined output is uncolored.
func teeLogger(l *log.Logger, w io.Writer, extra io.Writer) *log.Logger {
	return newLogger(io.MultiWriter(w, extra), l.GetLevel())
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Resolved 12 recipes (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
