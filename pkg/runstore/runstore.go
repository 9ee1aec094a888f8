// Package runstore keeps the on-disk record of planning runs.
//
// Every run gets its own directory under the store's base directory:
//
//	<base>/<timestamp> - solve/
//	    run.json                  manifest (id, status, best objective)
//	    log.txt                   the run's log output
//	    best_output_string.txt    blueprint string of the best layout
//	    best_layout.txt           text table of the best layout
//	    best_layout.json          layout document (see pkg/io)
//	    allSolves/
//	        <timestamp> - output_string_<n>.txt
//
// A [Run] is a decode.Sink: it rewrites the best files on every improving
// solution and adds one file per solution under allSolves.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no run matches an ID.
var ErrNotFound = errors.New("run not found")

// TimeFormat names run directories and per-solution files.
const TimeFormat = "2006-01-02 15.04.05"

// File names inside a run directory.
const (
	ManifestFile   = "run.json"
	LogFile        = "log.txt"
	BestStringFile = "best_output_string.txt"
	BestTableFile  = "best_layout.txt"
	BestLayoutFile = "best_layout.json"
	SolvesDir      = "allSolves"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Manifest describes a run.
type Manifest struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	Status    Status    `json:"status"`
	Solver    string    `json:"solver,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitzero"`
	Solutions int       `json:"solutions"`
	Best      int64     `json:"best_objective"`
	Error     string    `json:"error,omitempty"`
}

// Store creates and lists runs under a base directory.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	now     func() time.Time
}

// NewStore creates a store. An empty baseDir defaults to
// ~/.local/share/factorygrid/solves.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "factorygrid", "solves")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create solves dir: %w", err)
	}
	return &Store{baseDir: baseDir, now: time.Now}, nil
}

// Path returns the base directory.
func (s *Store) Path() string { return s.baseDir }

// Create starts a new run directory and opens its log file.
func (s *Store) Create(ctx context.Context, name string, opts ...RunOption) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	id := uuid.NewString()
	dirName := started.Format(TimeFormat) + " - solve"
	if _, err := os.Stat(filepath.Join(s.baseDir, dirName)); err == nil {
		dirName += " " + id[:8]
	}
	dir := filepath.Join(s.baseDir, dirName)
	if err := os.MkdirAll(filepath.Join(dir, SolvesDir), 0755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	logFile, err := os.Create(filepath.Join(dir, LogFile))
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	r := &Run{
		dir: dir,
		log: logFile,
		now: s.now,
		manifest: Manifest{
			ID:      id,
			Name:    name,
			Dir:     dir,
			Status:  StatusRunning,
			Started: started,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.writeManifest(); err != nil {
		logFile.Close()
		return nil, err
	}
	return r, nil
}

// List returns the manifests of all runs, newest first. Directories
// without a readable manifest are skipped.
func (s *Store) List(ctx context.Context) ([]Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read solves dir: %w", err)
	}

	var out []Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := readManifest(filepath.Join(s.baseDir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out, nil
}

// Get returns the manifest of the run whose ID starts with id.
func (s *Store) Get(ctx context.Context, id string) (*Manifest, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	runs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the most recently started run.
func (s *Store) Latest(ctx context.Context) (*Manifest, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// ReadBest returns the best blueprint string recorded for a run.
func ReadBest(m *Manifest) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir, BestStringFile))
	if err != nil {
		return "", fmt.Errorf("read best string: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.Dir = dir
	return &m, nil
}
