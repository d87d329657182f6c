package nbembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aymerick/raymond"

	"github.com/alnah/go-nbembed/internal/cache"
	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/logging"
	"github.com/alnah/go-nbembed/internal/notebook"
)

// Cache operation names, part of every key.
const (
	opConvert = "convert"
	opExport  = "export"
)

// ConversionOptions are the source rewrites applied between convert and
// export. PrependMarkdown may use {{name}} and {{source}}.
type ConversionOptions struct {
	PrependMarkdown  string
	MoveImportsToTop bool
}

// IsZero reports whether no rewrite is requested.
func (o ConversionOptions) IsZero() bool {
	return o.PrependMarkdown == "" && !o.MoveImportsToTop
}

// ConvertResult describes the files produced for one notebook.
type ConvertResult struct {
	Source       string
	Artifact     string
	Intermediate string // empty when export ran on the source directly
	Cached       bool
}

// Converter turns notebooks into WASM HTML artifacts, one notebook per call.
// It is safe for concurrent use.
type Converter struct {
	tool        *Tool
	cache       *cache.Store
	opts        ConversionOptions
	prepend     *raymond.Template
	buildDir    string
	toolVersion string
	logger      *slog.Logger
}

// NewConverter creates a Converter around tool.
func NewConverter(tool *Tool, opts ...ConverterOption) (*Converter, error) {
	c := &Converter{tool: tool}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)

	if c.opts.PrependMarkdown != "" {
		tpl, err := raymond.Parse(c.opts.PrependMarkdown)
		if err != nil {
			return nil, fmt.Errorf("%w: prepend_markdown: %v", ErrInvalidTemplate, err)
		}
		c.prepend = tpl
	}
	return c, nil
}

// Tool returns the underlying tool.
func (c *Converter) Tool() *Tool {
	return c.tool
}

// Convert runs convert, the configured rewrites and export for one gallery
// notebook. It writes <stem>.py and <stem>.html into outputDir.
func (c *Converter) Convert(ctx context.Context, sourceFile, outputDir string) (ConvertResult, error) {
	stem := fileutil.Stem(sourceFile)
	res := ConvertResult{
		Source:       sourceFile,
		Intermediate: filepath.Join(outputDir, stem+".py"),
		Artifact:     filepath.Join(outputDir, stem+".html"),
	}

	return c.memoize(ctx, opConvert, res, func(ctx context.Context) error {
		if err := fileutil.EnsureDir(outputDir); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputDirectory, err)
		}
		if err := os.Remove(res.Intermediate); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale %s: %w", res.Intermediate, err)
		}
		if err := c.tool.Convert(ctx, sourceFile, res.Intermediate); err != nil {
			return err
		}
		if err := c.rewrite(res.Intermediate, "", sourceFile); err != nil {
			return err
		}
		return c.tool.Export(ctx, res.Intermediate, res.Artifact)
	})
}

// Export exports a marimo source directly. With rewrites configured, they
// are applied to a copy in the build directory; the source is never
// modified.
func (c *Converter) Export(ctx context.Context, sourcePy, outputHTML string) (ConvertResult, error) {
	res := ConvertResult{Source: sourcePy, Artifact: outputHTML}
	if !c.opts.IsZero() {
		dir := c.buildDir
		if dir == "" {
			dir = filepath.Dir(outputHTML)
		}
		res.Intermediate = filepath.Join(dir, fileutil.Stem(outputHTML)+".py")
	}

	return c.memoize(ctx, opExport, res, func(ctx context.Context) error {
		if err := fileutil.EnsureDir(filepath.Dir(outputHTML)); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputDirectory, err)
		}
		input := sourcePy
		if res.Intermediate != "" {
			if err := c.rewrite(sourcePy, res.Intermediate, sourcePy); err != nil {
				return err
			}
			input = res.Intermediate
		}
		return c.tool.Export(ctx, input, outputHTML)
	})
}

// rewrite applies the configured rewrites to path, writing to target
// (empty = in place). Nothing happens when no rewrite is configured.
func (c *Converter) rewrite(path, target, source string) error {
	if c.opts.IsZero() {
		return nil
	}
	markdown, err := c.renderPrepend(source)
	if err != nil {
		return err
	}
	_, err = notebook.Transform(path, notebook.TransformOptions{
		OutputPath:       target,
		PrependMarkdown:  markdown,
		MoveImportsToTop: c.opts.MoveImportsToTop,
	})
	return err
}

// renderPrepend renders the banner for one notebook.
func (c *Converter) renderPrepend(source string) (string, error) {
	if c.prepend == nil {
		return "", nil
	}
	out, err := c.prepend.Exec(map[string]any{
		"name":   raymond.SafeString(fileutil.Stem(source)),
		"source": raymond.SafeString(filepath.ToSlash(source)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: prepend_markdown: %v", ErrInvalidTemplate, err)
	}
	return out, nil
}

// cacheKey covers everything that changes the produced files.
func (c *Converter) cacheKey(op string, res ConvertResult) (string, error) {
	sum, err := cache.HashFile(res.Source)
	if err != nil {
		return "", err
	}
	return cache.NewKey(
		op,
		res.Source,
		sum,
		res.Intermediate,
		res.Artifact,
		c.opts.PrependMarkdown,
		strconv.FormatBool(c.opts.MoveImportsToTop),
		c.tool.Fingerprint(),
		c.toolVersion,
	), nil
}

// memoize runs produce unless the cache holds a result for the same inputs.
// Cache failures are logged and never fail the conversion.
func (c *Converter) memoize(ctx context.Context, op string, res ConvertResult, produce func(context.Context) error) (ConvertResult, error) {
	if !fileutil.FileExists(res.Source) {
		return res, fmt.Errorf("%w: %s", ErrSourceNotFound, res.Source)
	}
	if c.cache == nil {
		return res, produce(ctx)
	}

	key, err := c.cacheKey(op, res)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	entry, ok, err := c.cache.Get(key)
	switch {
	case err != nil:
		c.logger.Warn("cache lookup failed", "source", res.Source, "error", err)
	case ok:
		restored, err := entry.Restore()
		if err == nil {
			c.logger.Debug("cache hit", "source", res.Source, "restored", restored)
			res.Cached = true
			return res, nil
		}
		c.logger.Warn("cache restore failed", "source", res.Source, "error", err)
	}

	if err := produce(ctx); err != nil {
		return res, err
	}
	c.store(key, res)
	return res, nil
}

// store saves a successful result.
func (c *Converter) store(key string, res ConvertResult) {
	artifact, err := os.ReadFile(res.Artifact)
	if err != nil {
		c.logger.Warn("cache store skipped", "artifact", res.Artifact, "error", err)
		return
	}
	entry := &cache.Entry{
		Artifact:      res.Artifact,
		ArtifactBytes: artifact,
		ToolVersion:   c.toolVersion,
	}
	if res.Intermediate != "" {
		if data, err := os.ReadFile(res.Intermediate); err == nil {
			entry.Intermediate = res.Intermediate
			entry.IntermediateBytes = data
		}
	}
	if err := c.cache.Put(key, entry); err != nil {
		c.logger.Warn("cache store failed", "source", res.Source, "error", err)
	}
}

// ConvertAll converts sources into outputDir on workers goroutines and
// returns every result, failures included.
func (c *Converter) ConvertAll(ctx context.Context, sources []string, outputDir string, workers int) []Result {
	jobs := make([]Job, len(sources))
	for i, src := range sources {
		jobs[i] = Job{
			Name:   fileutil.Stem(src),
			Source: src,
			Run: func(ctx context.Context) (ConvertResult, error) {
				return c.Convert(ctx, src, outputDir)
			},
		}
	}
	return Collect(ctx, jobs, workers, c.logger)
}
