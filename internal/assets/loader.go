package assets

// AssetLoader defines the contract for loading static files and templates.
type AssetLoader interface {
	// LoadStatic loads a static file by file name (e.g. "marimo-loader.js").
	// Returns ErrStaticNotFound if the file doesn't exist.
	// Returns ErrInvalidAssetName if the name contains invalid characters.
	LoadStatic(name string) (string, error)

	// LoadTemplate loads an HTML template by name (without .html extension).
	// Returns ErrTemplateNotFound if the template doesn't exist.
	// Returns ErrInvalidAssetName if the name contains invalid characters.
	LoadTemplate(name string) (string, error)
}
