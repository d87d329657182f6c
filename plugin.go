package nbembed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alnah/go-nbembed/internal/assets"
	"github.com/alnah/go-nbembed/internal/cache"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/hints"
	"github.com/alnah/go-nbembed/internal/logging"
	"github.com/alnah/go-nbembed/internal/pipeline"
)

// BuildReport summarizes BuilderInited.
type BuildReport struct {
	Direct          *DirectReport
	GalleryDetected bool
	Gallery         map[string]string // stem -> path relative to _static
	GalleryFailures []Failure
	Thumbnails      int
	Workers         int
	Duration        time.Duration
}

// Plugin binds the configuration to the build hooks and the rendering
// helpers. Create with New and release with Close.
type Plugin struct {
	cfg      *config.Config
	logger   *slog.Logger
	runner   CommandRunner
	timeout  *time.Duration
	tool     *Tool
	conv     *Converter
	store    *cache.Store
	resolver *assets.AssetResolver
	renderer *embed.Renderer
	builder  *Builder
	gallery  *Gallery
	thumbs   Thumbnailer
	workers  int
	serial   atomic.Int64
	summary  logging.Summary

	closeOnce sync.Once
	closeErr  error
}

// ConfigInited fills defaults and validates cfg once. A nil cfg yields the
// default configuration.
func ConfigInited(cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New creates a Plugin. Opening the cache is best effort: on failure the
// build runs uncached.
func New(cfg *config.Config, opts ...Option) (*Plugin, error) {
	cfg, err := ConfigInited(cfg)
	if err != nil {
		return nil, err
	}

	p := &Plugin{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrDefault(p.logger)

	timeout := cfg.ToolTimeout()
	if p.timeout != nil {
		timeout = *p.timeout
	}
	p.tool, err = NewTool(p.runner, cfg.Marimo.Tool.Convert, cfg.Marimo.Tool.Export, timeout)
	if err != nil {
		return nil, err
	}
	if err := p.tool.SetVersionCommand(cfg.Marimo.Tool.Version); err != nil {
		return nil, err
	}

	p.resolver, err = assets.NewAssetResolver(cfg.Marimo.AssetsDir)
	if err != nil {
		return nil, err
	}
	p.renderer, err = embed.NewRenderer(p.resolver)
	if err != nil {
		return nil, err
	}

	if cfg.Marimo.CacheNotebooks {
		store, err := cache.Open(cfg.CachePath())
		if err != nil {
			p.logger.Warn("cache disabled", "dir", cfg.CachePath(), "error", err)
		} else {
			p.store = store
		}
	}

	p.conv, err = NewConverter(p.tool,
		WithCache(p.store),
		WithConversionOptions(ConversionOptions{
			PrependMarkdown:  cfg.Marimo.PrependMarkdown,
			MoveImportsToTop: cfg.Marimo.MoveImportsToTop,
		}),
		WithBuildDir(cfg.BuildPath()),
		WithConverterLogger(p.logger),
	)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	p.workers = ResolveWorkers(cfg.Marimo.ParallelBuild, cfg.Marimo.NJobs)
	p.gallery = NewGallery(cfg, p.conv, p.workers, p.logger)
	p.builder, err = NewBuilder(cfg, p.conv, p.resolver, p.workers, p.logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	if p.thumbs == nil && cfg.Marimo.Thumbnails {
		p.thumbs = NewThumbnailer(0)
	}
	return p, nil
}

// Config returns the validated configuration.
func (p *Plugin) Config() *config.Config {
	return p.cfg
}

// Converter returns the notebook converter.
func (p *Plugin) Converter() *Converter {
	return p.conv
}

// Gallery returns the gallery integration.
func (p *Plugin) Gallery() *Gallery {
	return p.gallery
}

// Cache returns the conversion cache, nil when disabled.
func (p *Plugin) Cache() *cache.Store {
	return p.store
}

// Workers returns the resolved worker count.
func (p *Plugin) Workers() int {
	return p.workers
}

// BuilderInited runs the conversion pass before pages render: direct-mode
// export, gallery conversion and optional thumbnails. Notebook failures are
// logged and summarized; only unusable output directories fail the build.
func (p *Plugin) BuilderInited(ctx context.Context) (*BuildReport, error) {
	start := time.Now()
	report := &BuildReport{Workers: p.workers}

	if err := fileutil.EnsureDir(p.cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("%w: %v%s", ErrOutputDirectory, err, hints.ForOutputDirectory())
	}

	if p.store != nil {
		if v, err := p.tool.Version(ctx); err == nil {
			p.conv.toolVersion = v
		} else {
			p.logger.Debug("marimo version unavailable", "error", err)
		}
	}

	direct, err := p.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	report.Direct = direct
	p.summarize(direct.Failures)
	if hasToolNotFound(direct.Failures) {
		p.summary.Warn("marimo not found, placeholders written" + hints.ForToolNotFound(p.tool.Binary()))
	}

	report.GalleryDetected = p.gallery.Detect()
	if report.GalleryDetected {
		if err := p.gallery.SetupDirectories(); err != nil {
			return nil, err
		}
		notebooks, err := p.gallery.ConvertNotebooks(ctx)
		if err != nil {
			p.logger.Error("gallery conversion failed", "error", err)
		}
		report.Gallery = notebooks
		report.GalleryFailures = p.gallery.Failures()
		p.summarize(report.GalleryFailures)
	}

	if p.cfg.Marimo.Thumbnails && p.thumbs != nil {
		report.Thumbnails = GenerateThumbnails(ctx, p.thumbs, p.artifacts(report), p.logger)
	}

	report.Duration = time.Since(start)
	if p.summary.Len() > 0 {
		p.logger.Warn("build finished with failures", "count", p.summary.Len())
		p.summary.Flush(ctx, p.logger)
	}
	return report, nil
}

// summarize records notebook failures for the end-of-build summary.
func (p *Plugin) summarize(failures []Failure) {
	for _, f := range failures {
		msg := "notebook failed"
		if errors.Is(f.Err, ErrToolTimeout) {
			msg += hints.ForToolTimeout()
		}
		p.summary.Warn(msg, "notebook", f.Name, "source", f.Source, "error", f.Err)
	}
}

func hasToolNotFound(failures []Failure) bool {
	for _, f := range failures {
		if errors.Is(f.Err, ErrToolNotFound) {
			return true
		}
	}
	return false
}

// artifacts lists the real (non-placeholder) artifacts of a build.
func (p *Plugin) artifacts(report *BuildReport) []string {
	var out []string
	if report.Direct != nil {
		for _, e := range report.Direct.Manifest.Notebooks {
			if !e.Placeholder {
				out = append(out, filepath.Join(p.cfg.StaticPath(), filepath.FromSlash(e.Output)))
			}
		}
	}
	for _, rel := range report.Gallery {
		out = append(out, filepath.Join(p.cfg.OutputDir, galleryStatic, filepath.FromSlash(rel)))
	}
	return out
}

// EmbedDefaults returns the directive settings from configuration.
func (p *Plugin) EmbedDefaults() embed.Defaults {
	d := embed.DefaultDefaults()
	d.Height = p.cfg.Marimo.DefaultHeight
	d.Width = p.cfg.Marimo.DefaultWidth
	d.BaseURL = "/" + strings.Trim(filepath.ToSlash(p.cfg.Marimo.StaticDir), "/")
	return d
}

// Directive renders one embed. Every call gets a fresh container id.
func (p *Plugin) Directive(d embed.Directive) (string, error) {
	return p.renderer.Directive(d, p.EmbedDefaults(), int(p.serial.Add(1)))
}

// NotebookInfo returns the gallery artifact of a page.
func (p *Plugin) NotebookInfo(docname string) (*NotebookInfo, bool) {
	return p.gallery.NotebookInfo(docname)
}

// Launcher renders the launch button of a gallery page for a placement.
// Returns "" when the placement is disabled or the page has no notebook.
func (p *Plugin) Launcher(docname, placement string) (string, error) {
	if !p.placementEnabled(placement) {
		return "", nil
	}
	info, ok := p.gallery.NotebookInfo(docname)
	if !ok {
		return "", nil
	}
	return p.renderer.Launcher(embed.LauncherInfo(*info), placement)
}

func (p *Plugin) placementEnabled(placement string) bool {
	switch placement {
	case pipeline.PlacementFooter:
		return p.cfg.Marimo.ShowFooterButton
	case pipeline.PlacementSidebar:
		return p.cfg.Marimo.ShowSidebarButton
	}
	return false
}

// InjectPages adds launch buttons to the rendered HTML pages of the gallery
// directories. Returns the number of pages changed.
func (p *Plugin) InjectPages(ctx context.Context) (int, error) {
	if !p.gallery.Detect() {
		return 0, nil
	}

	changed := 0
	for _, dir := range p.cfg.Gallery.Dirs() {
		root := filepath.Join(p.cfg.OutputDir, filepath.FromSlash(dir))
		if !fileutil.DirExists(root) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(path) != ".html" {
				return nil
			}
			rel, err := fileutil.SlashRel(p.cfg.OutputDir, path)
			if err != nil {
				return err
			}
			ok, err := p.injectPage(path, strings.TrimSuffix(rel, ".html"))
			if err != nil {
				p.logger.Warn("launcher injection failed", "page", path, "error", err)
				return nil
			}
			if ok {
				changed++
			}
			return nil
		})
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// injectPage injects every enabled launcher into one page.
func (p *Plugin) injectPage(path, docname string) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- page found by walking the output dir
	if err != nil {
		return false, err
	}
	page := string(data)
	modified := false

	for _, placement := range []string{pipeline.PlacementFooter, pipeline.PlacementSidebar} {
		snippet, err := p.Launcher(docname, placement)
		if err != nil {
			return false, err
		}
		if snippet == "" {
			continue
		}
		out, ok, err := pipeline.InjectLauncher(page, snippet, placement)
		if err != nil {
			return false, err
		}
		if ok {
			page, modified = out, true
		}
	}

	if !modified {
		return false, nil
	}
	return true, fileutil.WriteFileAtomic(path, []byte(page), fileutil.FilePermissions)
}

// Close releases the cache and the browser. Safe to call more than once.
func (p *Plugin) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.store != nil {
			errs = append(errs, p.store.Close())
		}
		if p.thumbs != nil {
			errs = append(errs, p.thumbs.Close())
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
