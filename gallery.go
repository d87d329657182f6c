package nbembed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/logging"
	"github.com/alnah/go-nbembed/internal/manifest"
)

// Gallery directory names inside the output tree.
const (
	galleryDownloads = "_downloads"
	galleryStatic    = "_static"
	gallerySubdir    = "marimo/gallery"
)

// NotebookInfo locates the artifact of a gallery page.
type NotebookInfo struct {
	Name         string
	URL          string
	ThumbnailURL string
}

// Failure is a notebook that produced no artifact.
type Failure struct {
	Name   string
	Source string
	Err    error
}

// Gallery converts the notebooks produced by the gallery extension and
// answers per-page lookups. Detection is derived from configuration on
// every call.
type Gallery struct {
	cfg      *config.Config
	conv     *Converter
	workers  int
	logger   *slog.Logger
	prepared bool
	failures []Failure
}

// NewGallery creates the gallery integration.
func NewGallery(cfg *config.Config, conv *Converter, workers int, logger *slog.Logger) *Gallery {
	return &Gallery{cfg: cfg, conv: conv, workers: workers, logger: logging.OrDefault(logger)}
}

// Detect reports whether the gallery extension is enabled and configured.
func (g *Gallery) Detect() bool {
	return g.cfg.GalleryEnabled()
}

// NotebooksDir is where the gallery extension leaves its .ipynb downloads.
func (g *Gallery) NotebooksDir() string {
	return filepath.Join(g.cfg.OutputDir, galleryDownloads)
}

// OutputDir receives gallery artifacts and the gallery manifest.
func (g *Gallery) OutputDir() string {
	return filepath.Join(g.cfg.OutputDir, galleryStatic, filepath.FromSlash(gallerySubdir))
}

// ManifestPath returns the gallery manifest location.
func (g *Gallery) ManifestPath() string {
	return filepath.Join(g.OutputDir(), manifest.GalleryFile)
}

// staticRoot is the directory manifest paths are relative to.
func (g *Gallery) staticRoot() string {
	return filepath.Join(g.cfg.OutputDir, galleryStatic)
}

// SetupDirectories creates the gallery output directory.
func (g *Gallery) SetupDirectories() error {
	if !g.Detect() {
		return ErrGalleryNotDetected
	}
	if err := fileutil.EnsureDir(g.OutputDir()); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputDirectory, err)
	}
	g.prepared = true
	return nil
}

// ConvertNotebooks converts every downloaded gallery notebook, writes the
// manifest and returns it as stem -> path relative to _static. Failed
// notebooks are logged and left out. A missing downloads directory yields
// an empty manifest.
func (g *Gallery) ConvertNotebooks(ctx context.Context) (map[string]string, error) {
	if !g.prepared {
		if err := g.SetupDirectories(); err != nil {
			return nil, err
		}
	}
	g.failures = nil

	sources, err := g.findNotebooks()
	if err != nil {
		return nil, err
	}

	notebooks := make(map[string]string, len(sources))
	if len(sources) > 0 {
		g.logger.Info("converting gallery notebooks", "count", len(sources), "workers", g.workers)
	}
	for _, r := range g.conv.ConvertAll(ctx, sources, g.OutputDir(), g.workers) {
		if !r.OK() {
			g.failures = append(g.failures, Failure{Name: r.Job.Name, Source: r.Job.Source, Err: r.Err})
			continue
		}
		rel, err := fileutil.SlashRel(g.staticRoot(), r.Value.Artifact)
		if err != nil {
			g.logger.Warn("artifact outside static directory", "artifact", r.Value.Artifact, "error", err)
			continue
		}
		notebooks[r.Job.Name] = rel
	}

	if err := manifest.WriteGallery(g.ManifestPath(), manifest.NewGallery(notebooks)); err != nil {
		return notebooks, err
	}
	g.logger.Info("gallery manifest written", "path", g.ManifestPath(), "notebooks", len(notebooks), "failed", len(g.failures))
	return notebooks, nil
}

// Failures returns the notebooks that failed in the last ConvertNotebooks.
func (g *Gallery) Failures() []Failure {
	return g.failures
}

// findNotebooks lists **/*.ipynb under the downloads directory, sorted.
func (g *Gallery) findNotebooks() ([]string, error) {
	root := g.NotebooksDir()
	if !fileutil.DirExists(root) {
		g.logger.Warn("gallery downloads directory not found", "path", root)
		return nil, nil
	}

	var found []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".ipynb") {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

// ShouldInjectLauncher reports whether docname belongs to a gallery output
// directory.
func (g *Gallery) ShouldInjectLauncher(docname string) bool {
	if !g.Detect() {
		return false
	}
	docname = filepath.ToSlash(docname)
	for _, dir := range g.cfg.Gallery.Dirs() {
		prefix := strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(dir), "./"), "/")
		if prefix != "" && strings.HasPrefix(docname, prefix) {
			return true
		}
	}
	return false
}

// NotebookInfo returns the artifact of a gallery page. The manifest is
// read from disk on every call; a missing or unreadable manifest means no
// notebook.
func (g *Gallery) NotebookInfo(docname string) (*NotebookInfo, bool) {
	if !g.ShouldInjectLauncher(docname) {
		return nil, false
	}

	m, err := manifest.ReadGallery(g.ManifestPath())
	if err != nil {
		if errors.Is(err, manifest.ErrManifestNotFound) {
			g.logger.Debug("gallery manifest not found", "path", g.ManifestPath())
		} else {
			g.logger.Warn("gallery manifest unreadable", "path", g.ManifestPath(), "error", err)
		}
		return nil, false
	}

	name := path.Base(filepath.ToSlash(docname))
	rel, ok := m.Notebooks[name]
	if !ok {
		return nil, false
	}

	info := &NotebookInfo{Name: name, URL: "/" + galleryStatic + "/" + rel}
	thumb := strings.TrimSuffix(rel, path.Ext(rel)) + ".png"
	if fileutil.FileExists(filepath.Join(g.staticRoot(), filepath.FromSlash(thumb))) {
		info.ThumbnailURL = "/" + galleryStatic + "/" + thumb
	}
	return info, true
}
