package main

// Notes:
// - serve is not exercised end to end here: it blocks until interrupt and
//   its router is covered by internal/server tests.
// - publish is only tested up to credential and destination validation;
//   uploads need a storage endpoint and are covered by internal/publish.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	nbembed "github.com/alnah/go-nbembed"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/manifest"
	"github.com/alnah/go-nbembed/internal/notebook"
	"github.com/alnah/go-nbembed/internal/publish"
)

const marimoSource = `import marimo

app = marimo.App()


@app.cell
def __():
    x = 1
    return (x,)


@app.cell
def __():
    import marimo as mo
    return (mo,)


if __name__ == "__main__":
    app.run()
`

// fakeMarimo writes the files marimo would produce.
type fakeMarimo struct {
	mu      sync.Mutex
	missing bool
	calls   int
}

func (f *fakeMarimo) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.missing {
		return "", "", exec.ErrNotFound
	}
	if len(args) > 0 && args[len(args)-1] == "--version" {
		return "0.9.14\n", "", nil
	}

	var in, out string
	for i, a := range args {
		if a == "-o" && i > 0 && i+1 < len(args) {
			in, out = args[i-1], args[i+1]
		}
	}
	var content string
	switch args[0] {
	case "convert":
		content = marimoSource
	case "export":
		src, err := os.ReadFile(in)
		if err != nil {
			return "", err.Error(), errors.New("exit status 1")
		}
		content = "<html><body><pre>" + string(src) + "</pre></body></html>"
	default:
		return "", "unknown command", fmt.Errorf("%s: exit status 2", name)
	}
	if err := os.WriteFile(out, []byte(content), 0o600); err != nil {
		return "", err.Error(), errors.New("exit status 1")
	}
	return "", "", nil
}

// project is a temporary documentation tree with a config file.
type project struct {
	dir    string
	outdir string
	config string
}

func newProject(t *testing.T, extra string) *project {
	t.Helper()
	dir := t.TempDir()
	p := &project{
		dir:    dir,
		outdir: filepath.Join(dir, "_build", "html"),
		config: filepath.Join(dir, "nbembed.yaml"),
	}
	content := fmt.Sprintf("srcdir: %q\noutdir: %q\nmarimo:\n  cache_dir: %q\n%s",
		dir, p.outdir, filepath.Join(dir, "cache"), extra)
	writeFile(t, p.config, content)
	writeFile(t, filepath.Join(dir, "notebooks", "intro.py"), marimoSource)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// invoke runs the CLI with a fake marimo and returns exit code and output.
func invoke(t *testing.T, runner nbembed.CommandRunner, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := &Environment{
		Stdout:   &stdout,
		Stderr:   &stderr,
		Runner:   runner,
		LookPath: func() (string, bool) { return "", false },
	}
	code := run(context.Background(), args, env)
	return code, stdout.String(), stderr.String()
}

// ---------------------------------------------------------------------------
// TestExitCodeFor
// ---------------------------------------------------------------------------

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"tool not found wrapping ErrNotExist", fmt.Errorf("%w: %w", nbembed.ErrToolNotFound, os.ErrNotExist), ExitTool},
		{"tool timeout", nbembed.ErrToolTimeout, ExitTool},
		{"browser", fmt.Errorf("thumb: %w", nbembed.ErrBrowserConnect), ExitTool},
		{"usage", fmt.Errorf("%w: accepts 1 arg(s)", errUsage), ExitUsage},
		{"config", config.ErrInvalidValue, ExitUsage},
		{"directive option", embed.ErrInvalidOption, ExitUsage},
		{"credentials", publish.ErrMissingCredentials, ExitUsage},
		{"missing source", nbembed.ErrSourceNotFound, ExitIO},
		{"notebook read", notebook.ErrReadNotebook, ExitIO},
		{"manifest write", manifest.ErrManifestWrite, ExitIO},
		{"permission", os.ErrPermission, ExitIO},
		{"other", errors.New("boom"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestRun - Commands
// ---------------------------------------------------------------------------

func TestRun_Version(t *testing.T) {
	t.Parallel()

	code, out, _ := invoke(t, nil, "version")
	if code != ExitSuccess || !strings.HasPrefix(out, "nbembed "+Version) {
		t.Errorf("version = %d %q", code, out)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"build", "--nope", "-c", p.config}},
		{"missing argument", []string{"embed", "-c", p.config}},
		{"too many arguments", []string{"publish", "a", "b", "-c", p.config}},
		{"missing explicit config", []string{"build", "-c", filepath.Join(p.dir, "missing.yaml")}},
		{"no publish destination", []string{"publish", "-c", p.config}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, _, stderr := invoke(t, &fakeMarimo{}, tt.args...)
			if code != ExitUsage {
				t.Errorf("exit = %d, want %d (stderr %q)", code, ExitUsage, stderr)
			}
			if !strings.Contains(stderr, "Error:") {
				t.Errorf("stderr = %q, want an error line", stderr)
			}
		})
	}
}

func TestRun_Build(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")
	runner := &fakeMarimo{}

	code, out, stderr := invoke(t, runner, "build", "-q", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("build exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(out, "notebooks: 1 exported, 0 failed (0 placeholders)") {
		t.Errorf("stdout = %q", out)
	}

	m, err := manifest.ReadDirect(filepath.Join(p.outdir, "_static", "marimo", manifest.DirectFile))
	if err != nil {
		t.Fatalf("ReadDirect() unexpected error: %v", err)
	}
	if _, ok := m.Lookup("intro"); !ok {
		t.Errorf("manifest = %+v, want intro", m)
	}

	t.Run("cache stats after build", func(t *testing.T) {
		code, out, stderr := invoke(t, nil, "cache", "stats", "-c", p.config)
		if code != ExitSuccess {
			t.Fatalf("cache stats exit = %d, stderr %q", code, stderr)
		}
		if !strings.Contains(out, "entries: 1") {
			t.Errorf("stats = %q, want one entry", out)
		}
	})

	t.Run("cache clear", func(t *testing.T) {
		if code, _, stderr := invoke(t, nil, "cache", "clear", "-c", p.config); code != ExitSuccess {
			t.Fatalf("cache clear exit = %d, stderr %q", code, stderr)
		}
		_, out, _ := invoke(t, nil, "cache", "stats", "-c", p.config)
		if !strings.Contains(out, "entries: 0") {
			t.Errorf("stats after clear = %q", out)
		}
	})
}

func TestRun_BuildWithoutMarimo(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")

	code, out, stderr := invoke(t, &fakeMarimo{missing: true}, "build", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("build exit = %d, want success with placeholders (stderr %q)", code, stderr)
	}
	if !strings.Contains(out, "1 failed (1 placeholders)") {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(stderr, "pip install marimo") {
		t.Errorf("stderr = %q, want install hint in the summary", stderr)
	}
}

func TestRun_BuildGallery(t *testing.T) {
	t.Parallel()

	p := newProject(t, "extensions: [sphinx_gallery.gen_gallery]\nsphinx_gallery_conf:\n  gallery_dirs: auto_examples\n")
	writeFile(t, filepath.Join(p.outdir, "_downloads", "a1", "plot_sine.ipynb"), "{}")
	page := filepath.Join(p.outdir, "auto_examples", "plot_sine.html")
	writeFile(t, page, `<html><body><div role="main"><h1>Sine</h1></div></body></html>`)

	code, out, stderr := invoke(t, &fakeMarimo{}, "build", "-q", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("build exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(out, "gallery:   1 converted, 0 failed, 1 pages updated") {
		t.Errorf("stdout = %q", out)
	}

	code, out, stderr = invoke(t, nil, "info", "auto_examples/plot_sine", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("info exit = %d, stderr %q", code, stderr)
	}
	var info notebookInfoJSON
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("info output %q: %v", out, err)
	}
	if info.Name != "plot_sine" || info.URL != "/_static/marimo/gallery/plot_sine.html" {
		t.Errorf("info = %+v", info)
	}

	if code, _, _ := invoke(t, nil, "info", "index", "-c", p.config); code != ExitGeneral {
		t.Errorf("info(index) exit = %d, want %d", code, ExitGeneral)
	}
}

func TestRun_Convert(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")
	src := filepath.Join(p.dir, "plot_sine.ipynb")
	writeFile(t, src, "{}")
	outDir := filepath.Join(p.dir, "converted")

	code, out, stderr := invoke(t, &fakeMarimo{}, "convert", src, "-o", outDir, "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("convert exit = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(out) != filepath.Join(outDir, "plot_sine.html") {
		t.Errorf("stdout = %q", out)
	}

	code, _, _ = invoke(t, &fakeMarimo{}, "convert", filepath.Join(p.dir, "missing.ipynb"), "-o", outDir, "-c", p.config)
	if code != ExitIO {
		t.Errorf("convert(missing) exit = %d, want %d", code, ExitIO)
	}
}

func TestRun_ConvertToolMissing(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")
	src := filepath.Join(p.dir, "plot.ipynb")
	writeFile(t, src, "{}")

	code, _, stderr := invoke(t, &fakeMarimo{missing: true}, "convert", src, "-o", p.dir, "-c", p.config)
	if code != ExitTool {
		t.Errorf("exit = %d, want %d (stderr %q)", code, ExitTool, stderr)
	}
}

func TestRun_Transform(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")
	src := filepath.Join(p.dir, "notebooks", "intro.py")
	dst := filepath.Join(p.dir, "out.py")

	code, out, stderr := invoke(t, nil, "transform", src, "-o", dst, "--move-imports-to-top", "--prepend-markdown", "# Banner", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("transform exit = %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(out) != dst {
		t.Errorf("stdout = %q, want %q", out, dst)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	text := string(got)
	banner := strings.Index(text, "# Banner")
	imports := strings.Index(text, "import marimo as mo")
	assign := strings.Index(text, "x = 1")
	if banner < 0 || imports < 0 || assign < 0 || !(banner < imports && imports < assign) {
		t.Errorf("unexpected order (banner %d, imports %d, x %d):\n%s", banner, imports, assign, text)
	}

	t.Run("nothing to do", func(t *testing.T) {
		code, _, _ := invoke(t, nil, "transform", src, "-c", p.config)
		if code != ExitUsage {
			t.Errorf("exit = %d, want %d", code, ExitUsage)
		}
	})
}

func TestRun_Embed(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")

	code, out, stderr := invoke(t, nil, "embed", "intro", "--height", "400px", "-c", p.config)
	if code != ExitSuccess {
		t.Fatalf("embed exit = %d, stderr %q", code, stderr)
	}
	for _, want := range []string{`id="marimo-intro-1"`, "height: 400px", "/_static/marimo/notebooks/intro.html"} {
		if !strings.Contains(out, want) {
			t.Errorf("embed output missing %q:\n%s", want, out)
		}
	}

	code, _, _ = invoke(t, nil, "embed", "intro", "--theme", "neon", "-c", p.config)
	if code != ExitUsage {
		t.Errorf("embed --theme neon exit = %d, want %d", code, ExitUsage)
	}
}

func TestRun_PublishInvalidDestination(t *testing.T) {
	t.Parallel()

	p := newProject(t, "")
	code, _, stderr := invoke(t, nil, "publish", "ftp://host/bucket", "-c", p.config)
	if code != ExitUsage || !strings.Contains(stderr, "s3+http") {
		t.Errorf("publish exit = %d, stderr %q", code, stderr)
	}
}

func TestRun_PublishMissingCredentials(t *testing.T) {
	p := newProject(t, "")
	t.Setenv(publish.EnvAccessKey, "")
	t.Setenv(publish.EnvSecretKey, "")

	code, _, stderr := invoke(t, nil, "publish", "s3+http://localhost:9000/docs", "-c", p.config)
	if code != ExitUsage || !strings.Contains(stderr, "AWS_ACCESS_KEY_ID") {
		t.Errorf("publish exit = %d, stderr %q", code, stderr)
	}
}

// ---------------------------------------------------------------------------
// TestDoctor
// ---------------------------------------------------------------------------

func TestRun_Doctor(t *testing.T) {
	t.Parallel()

	t.Run("marimo found, chrome optional", func(t *testing.T) {
		t.Parallel()

		p := newProject(t, "")
		code, out, stderr := invoke(t, &fakeMarimo{}, "doctor", "--json", "-c", p.config)
		if code != ExitSuccess {
			t.Fatalf("doctor exit = %d, stderr %q", code, stderr)
		}
		var r doctorResult
		if err := json.Unmarshal([]byte(out), &r); err != nil {
			t.Fatalf("doctor output %q: %v", out, err)
		}
		if !r.Marimo.Found || r.Marimo.Version != "0.9.14" || r.Marimo.Binary != "marimo" {
			t.Errorf("marimo = %+v", r.Marimo)
		}
		if r.Status != statusWarnings || r.Chrome.Required {
			t.Errorf("status = %q chrome = %+v, want a warning for the optional browser", r.Status, r.Chrome)
		}
		if !r.System.OutputWritable {
			t.Error("output directory reported not writable")
		}
	})

	t.Run("marimo missing", func(t *testing.T) {
		t.Parallel()

		p := newProject(t, "")
		code, out, _ := invoke(t, &fakeMarimo{missing: true}, "doctor", "-c", p.config)
		if code != ExitGeneral {
			t.Errorf("doctor exit = %d, want %d", code, ExitGeneral)
		}
		if !strings.Contains(out, "Status: Not ready") || !strings.Contains(out, "pip install marimo") {
			t.Errorf("doctor output = %q", out)
		}
	})

	t.Run("chrome required for thumbnails", func(t *testing.T) {
		t.Parallel()

		p := newProject(t, "  thumbnails: true\n")
		code, out, _ := invoke(t, &fakeMarimo{}, "doctor", "--json", "-c", p.config)
		if code != ExitGeneral {
			t.Errorf("doctor exit = %d, want %d", code, ExitGeneral)
		}
		var r doctorResult
		if err := json.Unmarshal([]byte(out), &r); err != nil {
			t.Fatalf("doctor output %q: %v", out, err)
		}
		if !r.Chrome.Required || r.Status != statusErrors {
			t.Errorf("doctor = %+v", r)
		}
	})
}
