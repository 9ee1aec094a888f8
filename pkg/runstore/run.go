package runstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/matzehuels/factorygrid/pkg/blueprint"
	"github.com/matzehuels/factorygrid/pkg/decode"
	fgio "github.com/matzehuels/factorygrid/pkg/io"
)

// Run is one planning run's directory.
type Run struct {
	mu       sync.Mutex
	dir      string
	log      *os.File
	now      func() time.Time
	bpOpts   []blueprint.Option
	manifest Manifest
}

// RunOption configures a run at creation.
type RunOption func(*Run)

// WithBlueprint sets the options used to encode each solution.
func WithBlueprint(opts ...blueprint.Option) RunOption {
	return func(r *Run) { r.bpOpts = opts }
}

// WithSolver records the solver name in the manifest.
func WithSolver(name string) RunOption {
	return func(r *Run) { r.manifest.Solver = name }
}

// ID returns the run ID.
func (r *Run) ID() string { return r.manifest.ID }

// Dir returns the run directory.
func (r *Run) Dir() string { return r.dir }

// Log returns the run's log file for use as a logger output.
func (r *Run) Log() io.Writer { return r.log }

// Manifest returns a copy of the current manifest.
func (r *Run) Manifest() Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifest
}

// WriteSnapshot records one solution. It implements decode.Sink.
func (r *Run) WriteSnapshot(s *decode.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	str, err := blueprint.String(s.Placements, r.bpOpts...)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s - output_string_%d.txt", s.Time.Format(TimeFormat), s.Index)
	if err := writeFile(filepath.Join(r.dir, SolvesDir, name), str); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(r.dir, BestStringFile), str); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(r.dir, BestTableFile), s.Table); err != nil {
		return err
	}
	doc := fgio.NewDocument(s.Objective, s.Bounds, s.Placements)
	if err := fgio.ExportJSON(doc, filepath.Join(r.dir, BestLayoutFile)); err != nil {
		return err
	}

	r.manifest.Solutions = s.Index
	r.manifest.Best = s.Objective
	return r.writeManifest()
}

// Close marks the run finished, or failed when runErr is non-nil, and
// closes the log file.
func (r *Run) Close(runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manifest.Finished = r.now()
	r.manifest.Status = StatusFinished
	if runErr != nil {
		r.manifest.Status = StatusFailed
		r.manifest.Error = runErr.Error()
	}
	werr := r.writeManifest()
	if err := r.log.Close(); err != nil && werr == nil {
		werr = fmt.Errorf("close run log: %w", err)
	}
	return werr
}

func (r *Run) writeManifest() error {
	data, err := json.MarshalIndent(r.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFile(filepath.Join(r.dir, ManifestFile), string(data))
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

var _ decode.Sink = (*Run)(nil)
