package nbembed

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/logging"
)

// generatedNotebook is what the fake "marimo convert" writes.
const generatedNotebook = `import marimo

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

// fakeMarimo emulates the marimo CLI by writing the files it would produce.
type fakeMarimo struct {
	mu      sync.Mutex
	calls   [][]string
	missing bool                // every call fails with exec.ErrNotFound
	block   bool                // every call waits for ctx
	failOn  map[string]struct{} // input stems whose conversion fails
}

func newFakeMarimo() *fakeMarimo {
	return &fakeMarimo{failOn: map[string]struct{}{}}
}

func (f *fakeMarimo) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.missing {
		return "", "", exec.ErrNotFound
	}
	if len(args) > 0 && args[len(args)-1] == "--version" {
		return "0.9.14\n", "", nil
	}
	if f.block {
		<-ctx.Done()
		return "", "", ctx.Err()
	}

	in, out := ioArgs(args)
	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	if _, ok := f.failOn[stem]; ok {
		return "marimo: reading " + stem + "\n", "Traceback (most recent call last):\nValueError: bad notebook " + stem, errors.New("exit status 1")
	}

	var content []byte
	switch args[0] {
	case "convert":
		content = []byte(generatedNotebook)
	case "export":
		src, err := os.ReadFile(in)
		if err != nil {
			return "", err.Error(), errors.New("exit status 1")
		}
		content = []byte("<html><body><pre>" + string(src) + "</pre></body></html>")
	default:
		return "", "unknown command " + args[0], errors.New("exit status 2")
	}
	if err := os.WriteFile(out, content, 0o600); err != nil {
		return "", err.Error(), errors.New("exit status 1")
	}
	return "ok\n", "", nil
}

// ioArgs extracts the input (last positional before -o) and output paths.
func ioArgs(args []string) (string, string) {
	for i, a := range args {
		if a == "-o" && i > 0 && i+1 < len(args) {
			return args[i-1], args[i+1]
		}
	}
	return "", ""
}

// count returns how many calls ran the given subcommand.
func (f *fakeMarimo) count(subcommand string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > 1 && c[1] == subcommand {
			n++
		}
	}
	return n
}

func (f *fakeMarimo) fail(stems ...string) {
	for _, s := range stems {
		f.failOn[s] = struct{}{}
	}
}

// writeFile creates path with content, including parents.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// readFile returns the content of path or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

// testConfig returns a default configuration rooted in a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SourceDir = dir
	cfg.OutputDir = filepath.Join(dir, "_build", "html")
	cfg.Marimo.CacheDir = filepath.Join(dir, "cache")
	return cfg
}

// newTestConverter builds a converter over runner with the given options.
func newTestConverter(t *testing.T, runner CommandRunner, opts ...ConverterOption) *Converter {
	t.Helper()
	tool, err := NewTool(runner, "", "", 0)
	if err != nil {
		t.Fatalf("NewTool() unexpected error: %v", err)
	}
	opts = append([]ConverterOption{WithConverterLogger(logging.Discard())}, opts...)
	conv, err := NewConverter(tool, opts...)
	if err != nil {
		t.Fatalf("NewConverter() unexpected error: %v", err)
	}
	return conv
}
