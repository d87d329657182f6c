package nbembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alnah/go-nbembed/internal/assets"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/logging"
	"github.com/alnah/go-nbembed/internal/manifest"
	"github.com/alnah/go-nbembed/internal/pipeline"
)

// notebooksSubdir holds direct-mode artifacts inside the static directory.
const notebooksSubdir = "notebooks"

// DirectReport summarizes a direct-mode build.
type DirectReport struct {
	Manifest     manifest.Direct
	ManifestPath string
	Exported     int
	Placeholders int
	Failures     []Failure
	Assets       []string
}

// Builder exports the notebooks of the notebook directory (direct mode).
type Builder struct {
	cfg         *config.Config
	conv        *Converter
	resolver    *assets.AssetResolver
	source      *pipeline.SourceRenderer
	placeholder *template.Template
	workers     int
	logger      *slog.Logger
}

// NewBuilder creates a direct-mode builder. The placeholder template comes
// from resolver, so it can be overridden by a custom assets directory.
func NewBuilder(cfg *config.Config, conv *Converter, resolver *assets.AssetResolver, workers int, logger *slog.Logger) (*Builder, error) {
	src, err := resolver.LoadTemplate(assets.PlaceholderTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}
	tpl, err := template.New(assets.PlaceholderTemplate).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing template: %v", ErrPlaceholder, err)
	}
	return &Builder{
		cfg:         cfg,
		conv:        conv,
		resolver:    resolver,
		source:      pipeline.NewSourceRenderer(pipeline.DefaultCodeStyle),
		placeholder: tpl,
		workers:     workers,
		logger:      logging.OrDefault(logger),
	}, nil
}

// ArtifactDir is where direct-mode artifacts are written.
func (b *Builder) ArtifactDir() string {
	return filepath.Join(b.cfg.StaticPath(), notebooksSubdir)
}

// ManifestPath returns the direct manifest location.
func (b *Builder) ManifestPath() string {
	return filepath.Join(b.cfg.StaticPath(), manifest.DirectFile)
}

// Build exports every notebook, writes placeholders for failed exports,
// then writes the manifest and the static assets. Only output directory,
// manifest and asset errors are returned.
func (b *Builder) Build(ctx context.Context) (*DirectReport, error) {
	static := b.cfg.StaticPath()
	if err := fileutil.EnsureDir(static); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputDirectory, err)
	}

	sources, err := b.findNotebooks()
	if err != nil {
		return nil, err
	}

	root := b.cfg.NotebookPath()
	jobs := make([]Job, len(sources))
	for i, rel := range sources {
		src := filepath.Join(root, filepath.FromSlash(rel))
		out := filepath.Join(b.ArtifactDir(), embed.NotebookName(rel)+".html")
		jobs[i] = Job{
			Name:   embed.NotebookName(rel),
			Source: rel,
			Run: func(ctx context.Context) (ConvertResult, error) {
				return b.conv.Export(ctx, src, out)
			},
		}
	}

	report := &DirectReport{ManifestPath: b.ManifestPath()}
	entries := make([]manifest.Entry, 0, len(jobs))
	for _, r := range Collect(ctx, jobs, b.workers, b.logger) {
		entry := manifest.Entry{
			Name:   r.Job.Name,
			Path:   r.Job.Source,
			Output: notebooksSubdir + "/" + r.Job.Name + ".html",
		}
		if r.OK() {
			report.Exported++
			entries = append(entries, entry)
			continue
		}

		report.Failures = append(report.Failures, Failure{Name: r.Job.Name, Source: r.Job.Source, Err: r.Err})
		if errors.Is(r.Err, ErrDuplicateName) {
			continue
		}
		if !errors.Is(r.Err, ErrToolNotFound) && !b.cfg.Marimo.PlaceholderOnFailure {
			continue
		}
		if err := b.writePlaceholder(ctx, root, r); err != nil {
			b.logger.Warn("placeholder failed", "notebook", r.Job.Name, "error", err)
			continue
		}
		entry.Placeholder = true
		report.Placeholders++
		entries = append(entries, entry)
	}

	if report.Placeholders > 0 {
		if _, err := assets.ProvisionRuntime(static, b.resolver, b.logger); err != nil {
			return report, err
		}
	}

	report.Manifest = manifest.Direct{
		Notebooks:   entries,
		Version:     manifest.Version,
		BuildID:     uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
	}
	report.Manifest.Sort()
	if err := manifest.WriteDirect(report.ManifestPath, report.Manifest); err != nil {
		return report, err
	}

	written, err := assets.Provision(static, b.resolver, b.logger)
	report.Assets = written
	if err != nil {
		return report, err
	}

	b.logger.Info("direct build finished",
		"exported", report.Exported,
		"placeholders", report.Placeholders,
		"failed", len(report.Failures),
		"manifest", report.ManifestPath,
	)
	return report, nil
}

// findNotebooks lists *.py files under the notebook directory as slash
// paths relative to it, skipping hidden directories.
func (b *Builder) findNotebooks() ([]string, error) {
	root := b.cfg.NotebookPath()
	if !fileutil.DirExists(root) {
		b.logger.Warn("notebook directory not found", "path", root)
		return nil, nil
	}

	var found []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ".py" {
			return nil
		}
		rel, err := fileutil.SlashRel(root, p)
		if err != nil {
			return err
		}
		found = append(found, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

type placeholderData struct {
	Name    string
	Source  string
	Reason  string
	CodeCSS template.CSS
	Body    template.HTML
}

// writePlaceholder writes a static page showing the highlighted source and
// install instructions in place of the artifact.
func (b *Builder) writePlaceholder(ctx context.Context, root string, r Result) error {
	src := filepath.Join(root, filepath.FromSlash(r.Job.Source))
	code, err := os.ReadFile(src) // #nosec G304 -- notebook found by the directory walk
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}

	body, err := b.source.Render(ctx, string(code), "python")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}
	css, err := b.source.CSS()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}

	data := placeholderData{
		Name:    r.Job.Name,
		Source:  r.Job.Source,
		Reason:  placeholderReason(r.Err),
		CodeCSS: template.CSS(css),   // #nosec G203 -- generated by chroma
		Body:    template.HTML(body), // #nosec G203 -- rendered by goldmark without raw HTML
	}
	var buf bytes.Buffer
	if err := b.placeholder.Execute(&buf, data); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}

	out := filepath.Join(b.ArtifactDir(), r.Job.Name+".html")
	if err := fileutil.WriteFileAtomic(out, buf.Bytes(), fileutil.FilePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaceholder, err)
	}
	b.logger.Debug("placeholder written", "notebook", r.Job.Name, "path", out)
	return nil
}

// placeholderReason turns an export error into one line for the page.
func placeholderReason(err error) string {
	var toolErr *ToolError
	switch {
	case errors.Is(err, ErrToolNotFound):
		return "marimo is not installed"
	case errors.Is(err, ErrToolTimeout):
		return "export timed out"
	case errors.As(err, &toolErr) && strings.TrimSpace(toolErr.Stderr) != "":
		return lastLine(strings.TrimSpace(toolErr.Stderr))
	case err != nil:
		return lastLine(err.Error())
	}
	return ""
}
