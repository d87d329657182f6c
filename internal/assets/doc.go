// Package assets provides the static files and HTML templates used to embed
// exported notebooks in documentation pages.
//
// # Loader Architecture
//
// The package implements a layered loading system:
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (defaults)
//	    ├── FilesystemLoader  - loads from custom directory on disk
//	    └── AssetResolver     - combines both with custom-first fallback
//
// # Directory Structure
//
//	{basePath}/
//	├── static/
//	│   ├── marimo-embed.css     # embed stylesheet
//	│   ├── marimo-loader.js     # lazy loader script
//	│   └── marimo-wasm.js       # runtime placeholder
//	└── templates/
//	    ├── directive.html       # container + iframe + loader call
//	    ├── launcher.html        # gallery launch button
//	    └── placeholder.html     # page shown when export failed
//
// # Security
//
// Asset names are validated to prevent path traversal attacks.
// FilesystemLoader resolves symlinks and verifies paths stay within basePath.
// Scripts are compiled with goja before being provisioned, so a broken
// override never reaches the published site.
package assets
