// Package config defines the nbembed configuration file, its defaults and
// its validation rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// DefaultName is the config name searched when none is given.
const DefaultName = "nbembed"

// GalleryExtension is the renderer extension that produces gallery notebooks.
const GalleryExtension = "sphinx_gallery.gen_gallery"

// Field length limits.
const (
	MaxPathLength     = 4096
	MaxSizeLength     = 20   // "600px", "100%", "calc(...)" is out of scope
	MaxClassLength    = 100  // CSS class list
	MaxMarkdownLength = 8192 // prepended banner
	MaxCommandLength  = 1024 // tool command template
)

// Config holds everything the renderer hooks and the CLI need.
type Config struct {
	SourceDir  string        `yaml:"srcdir"`
	OutputDir  string        `yaml:"outdir"`
	Extensions []string      `yaml:"extensions"`
	Marimo     MarimoConfig  `yaml:"marimo"`
	Gallery    GalleryConfig `yaml:"sphinx_gallery_conf"`
	Publish    PublishConfig `yaml:"publish"`
	Server     ServerConfig  `yaml:"server"`
}

// MarimoConfig mirrors the marimo_* options of the renderer configuration.
type MarimoConfig struct {
	NotebookDir          string     `yaml:"notebook_dir"`  // relative to srcdir
	BuildDir             string     `yaml:"build_dir"`     // relative to outdir
	StaticDir            string     `yaml:"output_dir"`    // relative to outdir
	DefaultHeight        string     `yaml:"default_height"`
	DefaultWidth         string     `yaml:"default_width"`
	ParallelBuild        bool       `yaml:"parallel_build"`
	NJobs                int        `yaml:"n_jobs"`
	CacheNotebooks       bool       `yaml:"cache_notebooks"`
	CacheDir             string     `yaml:"cache_dir"` // empty = <outdir>/.marimo_cache
	PrependMarkdown      string     `yaml:"prepend_markdown"`
	MoveImportsToTop     bool       `yaml:"move_imports_to_top"`
	ShowFooterButton     bool       `yaml:"show_footer_button"`
	ShowSidebarButton    bool       `yaml:"show_sidebar_button"`
	Thumbnails           bool       `yaml:"thumbnails"`
	PlaceholderOnFailure bool       `yaml:"placeholder_on_failure"`
	AssetsDir            string     `yaml:"assets_dir"` // empty = embedded assets
	Tool                 ToolConfig `yaml:"tool"`
}

// ToolConfig holds the external command templates.
type ToolConfig struct {
	Convert string `yaml:"convert"`
	Export  string `yaml:"export"`
	Version string `yaml:"version"` // default: export command up to "export", plus --version
	Timeout string `yaml:"timeout"` // Go duration, "0" disables
}

// PublishConfig defines the upload target for built artifacts.
type PublishConfig struct {
	Destination string `yaml:"destination"` // s3+https://host/bucket/prefix
}

// ServerConfig defines the preview server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// GalleryConfig is the gallery extension's own configuration. Only
// gallery_dirs is interpreted; other keys are carried untouched.
type GalleryConfig map[string]any

// Configured reports whether the gallery configuration is non-empty.
func (g GalleryConfig) Configured() bool {
	return len(g) > 0
}

// Dirs returns gallery_dirs, which may be a single string or a list.
func (g GalleryConfig) Dirs() []string {
	switch v := g["gallery_dirs"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		dirs := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				dirs = append(dirs, s)
			}
		}
		return dirs
	}
	return nil
}

// DefaultConfig returns a configuration with every option set to its default.
func DefaultConfig() *Config {
	return &Config{
		SourceDir: ".",
		OutputDir: "_build/html",
		Marimo: MarimoConfig{
			NotebookDir:          "notebooks",
			BuildDir:             "_build/marimo",
			StaticDir:            "_static/marimo",
			DefaultHeight:        "600px",
			DefaultWidth:         "100%",
			ParallelBuild:        true,
			NJobs:                -1,
			CacheNotebooks:       true,
			ShowFooterButton:     true,
			ShowSidebarButton:    true,
			PlaceholderOnFailure: true,
			Tool: ToolConfig{
				Convert: "marimo convert {{input}} -o {{output}}",
				Export:  "marimo export html-wasm --mode edit {{input}} -o {{output}}",
				Timeout: "5m",
			},
		},
		Server: ServerConfig{Addr: "127.0.0.1:8000"},
	}
}

// GalleryEnabled reports whether the gallery extension is configured.
func (c *Config) GalleryEnabled() bool {
	hasExt := false
	for _, ext := range c.Extensions {
		if ext == GalleryExtension {
			hasExt = true
			break
		}
	}
	return hasExt && c.Gallery.Configured()
}

// NotebookPath returns the directory scanned in direct mode.
func (c *Config) NotebookPath() string {
	return filepath.Join(c.SourceDir, c.Marimo.NotebookDir)
}

// BuildPath returns the directory for intermediate sources, under the
// output directory so sources are never written to.
func (c *Config) BuildPath() string {
	return filepath.Join(c.OutputDir, c.Marimo.BuildDir)
}

// StaticPath returns the directory receiving artifacts and assets.
func (c *Config) StaticPath() string {
	return filepath.Join(c.OutputDir, c.Marimo.StaticDir)
}

// CachePath returns the cache directory.
func (c *Config) CachePath() string {
	if c.Marimo.CacheDir != "" {
		return c.Marimo.CacheDir
	}
	return filepath.Join(c.OutputDir, ".marimo_cache")
}

// ToolTimeout returns the parsed tool timeout. Zero means no timeout.
func (c *Config) ToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Marimo.Tool.Timeout)
	if err != nil || c.Marimo.Tool.Timeout == "0" {
		return 0
	}
	return d
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: outdir is required", ErrInvalidValue)
	}
	paths := []struct{ name, value string }{
		{"srcdir", c.SourceDir},
		{"outdir", c.OutputDir},
		{"marimo.notebook_dir", c.Marimo.NotebookDir},
		{"marimo.build_dir", c.Marimo.BuildDir},
		{"marimo.output_dir", c.Marimo.StaticDir},
		{"marimo.cache_dir", c.Marimo.CacheDir},
		{"marimo.assets_dir", c.Marimo.AssetsDir},
	}
	for _, p := range paths {
		if err := validateFieldLength(p.name, p.value, MaxPathLength); err != nil {
			return err
		}
	}
	if filepath.IsAbs(c.Marimo.StaticDir) {
		return fmt.Errorf("%w: marimo.output_dir must be relative to outdir, got %q", ErrInvalidValue, c.Marimo.StaticDir)
	}

	if err := validateFieldLength("marimo.default_height", c.Marimo.DefaultHeight, MaxSizeLength); err != nil {
		return err
	}
	if err := validateFieldLength("marimo.default_width", c.Marimo.DefaultWidth, MaxSizeLength); err != nil {
		return err
	}
	if err := validateFieldLength("marimo.prepend_markdown", c.Marimo.PrependMarkdown, MaxMarkdownLength); err != nil {
		return err
	}

	if c.Marimo.NJobs == 0 {
		return fmt.Errorf("%w: marimo.n_jobs must be non-zero (-1 = all CPUs)", ErrInvalidValue)
	}

	for name, tmpl := range map[string]string{"marimo.tool.convert": c.Marimo.Tool.Convert, "marimo.tool.export": c.Marimo.Tool.Export} {
		if strings.TrimSpace(tmpl) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidValue, name)
		}
		if err := validateFieldLength(name, tmpl, MaxCommandLength); err != nil {
			return err
		}
		if !strings.Contains(tmpl, "{{input}}") || !strings.Contains(tmpl, "{{output}}") {
			return fmt.Errorf("%w: %s must reference {{input}} and {{output}}", ErrInvalidValue, name)
		}
	}

	if t := c.Marimo.Tool.Timeout; t != "" && t != "0" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("%w: marimo.tool.timeout: %v", ErrInvalidValue, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: marimo.tool.timeout must not be negative", ErrInvalidValue)
		}
	}

	if d := c.Publish.Destination; d != "" &&
		!strings.HasPrefix(d, "s3+http://") && !strings.HasPrefix(d, "s3+https://") {
		return fmt.Errorf("%w: publish.destination must start with s3+http:// or s3+https://", ErrInvalidValue)
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's searched in standard locations. Values absent from the
// file keep their DefaultConfig value.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !fileutil.IsFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := yamlutil.ReadFileStrict(configPath, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		if errors.Is(err, yamlutil.ErrReadFile) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath searches for a config file by name.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/go-nbembed/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	tried := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		local := name + ext
		if fileutil.FileExists(local) {
			return local, nil
		}
		tried = append(tried, local)
	}

	if userDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userDir, "go-nbembed", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			tried = append(tried, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(tried, ", "))
}
