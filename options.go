package nbembed

import (
	"log/slog"
	"time"

	"github.com/alnah/go-nbembed/internal/cache"
)

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithCache memoizes conversions in store. A nil store disables caching.
func WithCache(store *cache.Store) ConverterOption {
	return func(c *Converter) {
		c.cache = store
	}
}

// WithConversionOptions sets the source rewrites applied to every notebook.
func WithConversionOptions(opts ConversionOptions) ConverterOption {
	return func(c *Converter) {
		c.opts = opts
	}
}

// WithBuildDir sets where Export writes rewritten copies of user sources.
// Defaults to the artifact's directory.
func WithBuildDir(dir string) ConverterOption {
	return func(c *Converter) {
		c.buildDir = dir
	}
}

// WithToolVersion records the marimo version in cache keys and entries.
func WithToolVersion(v string) ConverterOption {
	return func(c *Converter) {
		c.toolVersion = v
	}
}

// WithConverterLogger sets the converter logger.
func WithConverterLogger(l *slog.Logger) ConverterOption {
	return func(c *Converter) {
		c.logger = l
	}
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithRunner replaces the command runner (tests use a fake marimo).
func WithRunner(r CommandRunner) Option {
	return func(p *Plugin) {
		p.runner = r
	}
}

// WithLogger sets the plugin logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		p.logger = l
	}
}

// WithTimeout overrides the configured tool timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		p.timeout = &d
	}
}

// WithThumbnailer replaces the headless Chrome thumbnailer.
func WithThumbnailer(t Thumbnailer) Option {
	return func(p *Plugin) {
		p.thumbs = t
	}
}
