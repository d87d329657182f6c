package assets

import (
	"embed"
	"fmt"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

// EmbeddedLoader loads assets compiled into the binary.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// LoadStatic loads an embedded static file by file name.
func (e *EmbeddedLoader) LoadStatic(name string) (string, error) {
	if err := ValidateStaticName(name); err != nil {
		return "", err
	}
	content, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrStaticNotFound, name)
	}
	return string(content), nil
}

// LoadTemplate loads an embedded HTML template by name.
func (e *EmbeddedLoader) LoadTemplate(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	content, err := templatesFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return string(content), nil
}

// Compile-time interface check.
var _ AssetLoader = (*EmbeddedLoader)(nil)
