package assets

// Static file names provisioned into the output tree.
const (
	StyleFile   = "marimo-embed.css"
	LoaderFile  = "marimo-loader.js"
	RuntimeFile = "marimo-wasm.js"
)

// Template names.
const (
	DirectiveTemplate   = "directive"
	LauncherTemplate    = "launcher"
	PlaceholderTemplate = "placeholder"
)

// defaultLoader serves callers that never configure a custom directory.
var defaultLoader = NewEmbeddedLoader()

// LoadStatic loads an embedded static file by name.
func LoadStatic(name string) (string, error) {
	return defaultLoader.LoadStatic(name)
}

// LoadTemplate loads an embedded template by name.
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}
