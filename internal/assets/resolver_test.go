package assets

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeCustom creates {dir}/{sub}/{name} with content.
func writeCustom(t *testing.T, dir, sub, name, content string) {
	t.Helper()
	p := filepath.Join(dir, sub, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestNewAssetResolver(t *testing.T) {
	t.Parallel()

	t.Run("empty path uses embedded only", func(t *testing.T) {
		t.Parallel()

		r, err := NewAssetResolver("")
		if err != nil {
			t.Fatalf("NewAssetResolver(\"\") error = %v", err)
		}
		if r.HasCustomLoader() {
			t.Error("expected no custom loader for empty path")
		}
	})

	t.Run("invalid custom path", func(t *testing.T) {
		t.Parallel()

		_, err := NewAssetResolver(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrInvalidBasePath) {
			t.Errorf("NewAssetResolver() error = %v, want ErrInvalidBasePath", err)
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		t.Parallel()

		f := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(f, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewAssetResolver(f); !errors.Is(err, ErrInvalidBasePath) {
			t.Errorf("NewAssetResolver(file) error = %v, want ErrInvalidBasePath", err)
		}
	})
}

func TestAssetResolver_CustomFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCustom(t, dir, "static", StyleFile, ".custom { color: red; }")
	writeCustom(t, dir, "templates", "launcher.html", "<a>{{.URL}}</a>")

	r, err := NewAssetResolver(dir)
	if err != nil {
		t.Fatal(err)
	}

	css, err := r.LoadStatic(StyleFile)
	if err != nil || !strings.Contains(css, ".custom") {
		t.Errorf("LoadStatic(style) = %q, %v; want custom content", css, err)
	}

	js, err := r.LoadStatic(LoaderFile)
	if err != nil || !strings.Contains(js, "createMarimoLoader") {
		t.Errorf("LoadStatic(loader) = %v; want embedded fallback", err)
	}

	tmpl, err := r.LoadTemplate(LauncherTemplate)
	if err != nil || tmpl != "<a>{{.URL}}</a>" {
		t.Errorf("LoadTemplate(launcher) = %q, %v; want custom", tmpl, err)
	}

	if _, err := r.LoadTemplate("nope"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("LoadTemplate(nope) error = %v, want %v", err, ErrTemplateNotFound)
	}
}

func TestFilesystemLoader_SymlinkEscape(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.css")
	if err := os.WriteFile(secret, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}

	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "static"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(base, "static", "leak.css")); err != nil {
		t.Fatal(err)
	}

	loader, err := NewFilesystemLoader(base)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loader.LoadStatic("leak.css"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("LoadStatic(symlink) error = %v, want %v", err, ErrPathTraversal)
	}

	// Validation errors are not masked by the embedded fallback.
	r, _ := NewAssetResolver(base)
	if _, err := r.LoadStatic("leak.css"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("resolver LoadStatic(symlink) error = %v, want %v", err, ErrPathTraversal)
	}
}
