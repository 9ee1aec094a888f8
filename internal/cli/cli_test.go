package cli

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/factorygrid/internal/config"
	"github.com/matzehuels/factorygrid/pkg/errors"
	"github.com/matzehuels/factorygrid/pkg/pipeline"
	"github.com/matzehuels/factorygrid/pkg/planfile"
	"github.com/matzehuels/factorygrid/pkg/runstore"
)

func TestParseRequests(t *testing.T) {
	got, err := parseRequests([]string{"electronic-circuit=1.5", " gear = 2 "})
	if err != nil {
		t.Fatalf("parseRequests: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d requests", len(got))
	}
	if got[0].Recipe != "electronic-circuit" || got[0].Rate != 1.5 {
		t.Errorf("request 0 = %+v", got[0])
	}
	if got[1].Recipe != "gear" || got[1].Rate != 2 {
		t.Errorf("request 1 = %+v", got[1])
	}
}

func TestParseRequestsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no separator", "gear"},
		{"bad rate", "gear=fast"},
		{"empty rate", "gear="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRequests([]string{tt.in})
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"blueprint", []string{"blueprint"}},
		{"blueprint, table,json", []string{"blueprint", "table", "json"}},
	}
	for _, tt := range tests {
		if got := parseFormats(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("parseFormats(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1/s"},
		{1.5, "1.5/s"},
		{2.0 / 3, "0.667/s"},
		{0.0004, "0/s"},
	}
	for _, tt := range tests {
		if got := formatRate(tt.in); got != tt.want {
			t.Errorf("formatRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteFormats(t *testing.T) {
	complete := completeFormats(pipeline.FormatDOT, pipeline.FormatSVG)

	got, directive := complete(&cobra.Command{}, nil, "")
	if !slices.Equal(got, []cobra.Completion{"dot", "svg"}) {
		t.Errorf("completions = %v", got)
	}
	if directive&cobra.ShellCompDirectiveNoFileComp == 0 {
		t.Error("format completion should not complete files")
	}

	got, _ = complete(&cobra.Command{}, nil, "dot,")
	if !slices.Equal(got, []cobra.Completion{"dot,svg"}) {
		t.Errorf("completions after dot = %v", got)
	}

	all, _ := completeFormats()(&cobra.Command{}, nil, "")
	if len(all) != len(pipeline.ValidFormats) {
		t.Errorf("got %d formats, want %d", len(all), len(pipeline.ValidFormats))
	}
}

func TestPlanOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "circuits.toml")
	plan := `catalog = "recipes.json"

[[request]]
recipe = "electronic-circuit"
rate = 1

[solver]
time_limit = "20s"
`
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := planfile.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := config.Default()

	opts, err := planOptions(f, planFlags{}, cfg)
	if err != nil {
		t.Fatalf("planOptions: %v", err)
	}
	if opts.TimeLimit != 20*time.Second {
		t.Errorf("time limit = %v, want plan file value", opts.TimeLimit)
	}
	if opts.Label != "circuits" {
		t.Errorf("label = %q, want file stem", opts.Label)
	}

	opts, err = planOptions(f, planFlags{timeLimit: 5 * time.Second, formats: "json,svg", noIO: true, refresh: true}, cfg)
	if err != nil {
		t.Fatalf("planOptions: %v", err)
	}
	if opts.TimeLimit != 5*time.Second {
		t.Errorf("time limit = %v, want flag value", opts.TimeLimit)
	}
	if !slices.Equal(opts.Formats, []string{"json", "svg"}) {
		t.Errorf("formats = %v", opts.Formats)
	}
	if !opts.NoIO || !opts.Refresh {
		t.Errorf("NoIO/Refresh not applied: %+v", opts)
	}
}

func TestLayoutPath(t *testing.T) {
	dir := t.TempDir()
	if got, want := layoutPath(dir), filepath.Join(dir, runstore.BestLayoutFile); got != want {
		t.Errorf("layoutPath(dir) = %q, want %q", got, want)
	}
	file := filepath.Join(dir, "layout.json")
	if got := layoutPath(file); got != file {
		t.Errorf("layoutPath(file) = %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

func TestRootCommand(t *testing.T) {
	root := New(os.Stderr, LogInfo).RootCommand()
	want := []string{"blueprint", "cache", "completion", "graph", "history", "plan", "resolve", "runs", "serve"}
	var got []string
	for _, cmd := range root.Commands() {
		got = append(got, cmd.Name())
	}
	for _, name := range want {
		if !slices.Contains(got, name) {
			t.Errorf("missing command %q in %v", name, got)
		}
	}
}
