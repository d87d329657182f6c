package assets

import "errors"

// Sentinel errors for asset operations.
var (
	// ErrStaticNotFound indicates the requested static file does not exist.
	ErrStaticNotFound = errors.New("static asset not found")

	// ErrTemplateNotFound indicates the requested template does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidAssetName indicates the asset name contains invalid characters
	// such as path separators or traversal sequences.
	ErrInvalidAssetName = errors.New("invalid asset name")

	// ErrInvalidBasePath indicates the configured base path is not a valid directory.
	ErrInvalidBasePath = errors.New("invalid base path")

	// ErrAssetRead indicates an I/O error occurred while reading an asset file.
	ErrAssetRead = errors.New("failed to read asset")

	// ErrPathTraversal indicates an attempt to access files outside the base path.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrInvalidScript indicates a JavaScript asset failed to compile.
	ErrInvalidScript = errors.New("invalid script")

	// ErrProvision indicates static assets could not be written.
	ErrProvision = errors.New("failed to provision assets")
)
