package nbembed

// Notes:
// - Asset provisioning failures are covered in internal/assets.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-nbembed/internal/assets"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/logging"
	"github.com/alnah/go-nbembed/internal/manifest"
)

func newTestBuilder(t *testing.T, cfg *config.Config, runner CommandRunner) *Builder {
	t.Helper()
	resolver, err := assets.NewAssetResolver("")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBuilder(cfg, newTestConverter(t, runner), resolver, 2, logging.Discard())
	if err != nil {
		t.Fatalf("NewBuilder() unexpected error: %v", err)
	}
	return b
}

// writeNotebooks creates marimo sources under the notebook dir.
func writeNotebooks(t *testing.T, cfg *config.Config, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		writeFile(t, filepath.Join(cfg.NotebookPath(), filepath.FromSlash(rel)), generatedNotebook)
	}
}

// ---------------------------------------------------------------------------
// TestBuilder_Build
// ---------------------------------------------------------------------------

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	writeNotebooks(t, cfg, "intro.py", "tutorials/basics.py")
	writeFile(t, filepath.Join(cfg.NotebookPath(), ".ipynb_checkpoints", "intro.py"), "x")
	writeFile(t, filepath.Join(cfg.NotebookPath(), "README.md"), "docs")

	b := newTestBuilder(t, cfg, newFakeMarimo())
	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if report.Exported != 2 || report.Placeholders != 0 {
		t.Errorf("report = %+v", report)
	}
	for _, name := range []string{"intro", "tutorials_basics"} {
		if !fileutil.FileExists(filepath.Join(b.ArtifactDir(), name+".html")) {
			t.Errorf("artifact %s missing", name)
		}
	}

	m, err := manifest.ReadDirect(b.ManifestPath())
	if err != nil {
		t.Fatalf("ReadDirect() unexpected error: %v", err)
	}
	if m.Version != manifest.Version || m.BuildID == "" || m.GeneratedAt.IsZero() {
		t.Errorf("manifest header = %+v", m)
	}
	e, ok := m.Lookup("tutorials_basics")
	if !ok || e.Path != "tutorials/basics.py" || e.Output != "notebooks/tutorials_basics.html" || e.Placeholder {
		t.Errorf("entry = %+v, ok = %v", e, ok)
	}
	if len(m.Notebooks) != 2 {
		t.Errorf("manifest has %d entries, want 2", len(m.Notebooks))
	}

	for _, f := range []string{assets.StyleFile, assets.LoaderFile} {
		if !fileutil.FileExists(filepath.Join(cfg.StaticPath(), f)) {
			t.Errorf("asset %s not provisioned", f)
		}
	}
	if fileutil.FileExists(filepath.Join(cfg.StaticPath(), assets.RuntimeDir, assets.RuntimeFile)) {
		t.Error("runtime placeholder written without placeholders")
	}
}

func TestBuilder_BuildDuplicateNames(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	writeNotebooks(t, cfg, "a/b.py", "a_b.py")

	b := newTestBuilder(t, cfg, newFakeMarimo())
	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if report.Exported != 1 || report.Placeholders != 0 || len(report.Failures) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if f := report.Failures[0]; f.Source != "a_b.py" || !errors.Is(f.Err, ErrDuplicateName) {
		t.Errorf("failure = %+v", f)
	}

	m, err := manifest.ReadDirect(b.ManifestPath())
	if err != nil {
		t.Fatalf("ReadDirect() unexpected error: %v", err)
	}
	if e, ok := m.Lookup("a_b"); !ok || e.Path != "a/b.py" || len(m.Notebooks) != 1 {
		t.Errorf("manifest = %+v", m.Notebooks)
	}
}

func TestBuilder_BuildWithoutMarimo(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Marimo.PlaceholderOnFailure = false // missing tool still gets placeholders
	writeNotebooks(t, cfg, "intro.py", "sub/plot.py")

	runner := newFakeMarimo()
	runner.missing = true
	b := newTestBuilder(t, cfg, runner)

	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if report.Placeholders != 2 || report.Exported != 0 || len(report.Failures) != 2 {
		t.Errorf("report = %+v", report)
	}

	page := readFile(t, filepath.Join(b.ArtifactDir(), "sub_plot.html"))
	for _, want := range []string{"<!DOCTYPE html>", "Marimo Notebook", "sub/plot.py", "pip install marimo", "marimo is not installed", "chroma"} {
		if !strings.Contains(page, want) {
			t.Errorf("placeholder missing %q", want)
		}
	}

	runtime := readFile(t, filepath.Join(cfg.StaticPath(), assets.RuntimeDir, assets.RuntimeFile))
	if !strings.Contains(runtime, "window.MarimoRuntime") || !strings.Contains(runtime, "init: function") {
		t.Errorf("runtime placeholder = %q", runtime)
	}

	m, err := manifest.ReadDirect(b.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Notebooks) != 2 {
		t.Fatalf("manifest has %d entries, want 2", len(m.Notebooks))
	}
	for _, e := range m.Notebooks {
		if !e.Placeholder {
			t.Errorf("entry %s not marked as placeholder", e.Name)
		}
	}
}

func TestBuilder_BuildExportFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		placeholder   bool
		wantEntries   int
		wantPlacehold int
	}{
		{"placeholder on failure", true, 2, 1},
		{"omitted on failure", false, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			cfg.Marimo.PlaceholderOnFailure = tt.placeholder
			writeNotebooks(t, cfg, "good.py", "bad.py")

			runner := newFakeMarimo()
			runner.fail("bad")
			report, err := newTestBuilder(t, cfg, runner).Build(context.Background())
			if err != nil {
				t.Fatalf("Build() unexpected error: %v", err)
			}
			if len(report.Manifest.Notebooks) != tt.wantEntries || report.Placeholders != tt.wantPlacehold {
				t.Errorf("entries = %d, placeholders = %d, want %d, %d",
					len(report.Manifest.Notebooks), report.Placeholders, tt.wantEntries, tt.wantPlacehold)
			}
			if len(report.Failures) != 1 || report.Failures[0].Name != "bad" {
				t.Errorf("Failures = %v", report.Failures)
			}
		})
	}
}

func TestBuilder_BuildMissingNotebookDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	b := newTestBuilder(t, cfg, newFakeMarimo())

	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if len(report.Manifest.Notebooks) != 0 {
		t.Errorf("entries = %v, want none", report.Manifest.Notebooks)
	}
	if !fileutil.FileExists(b.ManifestPath()) {
		t.Error("empty manifest not written")
	}
}

func TestPlaceholderReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", ErrToolNotFound, "marimo is not installed"},
		{"timeout", ErrToolTimeout, "export timed out"},
		{"stderr", &ToolError{Stderr: "trace\nValueError: x\n"}, "ValueError: x"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		if got := placeholderReason(tt.err); got != tt.want {
			t.Errorf("%s: placeholderReason() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
