// Package embed renders the HTML that places exported notebooks in pages:
// the notebook directive (container, iframe and loader call) and the
// gallery launch button.
package embed

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/alnah/go-nbembed/internal/assets"
)

// Sentinel errors for embed rendering.
var (
	ErrEmptyNotebook = errors.New("notebook argument is required")
	ErrInvalidOption = errors.New("invalid directive option")
	ErrRender        = errors.New("embed rendering failed")
)

// Themes accepted by the directive.
var themes = []string{"light", "dark", "auto"}

// Directive holds one directive invocation. Empty fields take Defaults.
type Directive struct {
	Notebook string
	Height   string
	Width    string
	Class    string
	Theme    string
}

// Defaults are the site-wide directive settings.
type Defaults struct {
	Height  string
	Width   string
	Class   string
	Theme   string
	BaseURL string // URL of the static marimo directory, e.g. /_static/marimo
}

// DefaultDefaults returns the built-in directive settings.
func DefaultDefaults() Defaults {
	return Defaults{
		Height:  "600px",
		Width:   "100%",
		Class:   "marimo-embed",
		Theme:   "light",
		BaseURL: "/_static/marimo",
	}
}

// NotebookName derives the artifact name from a notebook path:
// separators become underscores and the .py suffix is dropped.
func NotebookName(path string) string {
	name := strings.ReplaceAll(path, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, ".py")
	return strings.ReplaceAll(name, "/", "_")
}

// LauncherInfo describes a gallery notebook with an artifact.
type LauncherInfo struct {
	Name         string
	URL          string
	ThumbnailURL string
}

// Renderer renders directive and launcher templates.
type Renderer struct {
	directive *template.Template
	launcher  *template.Template
}

// NewRenderer parses the directive and launcher templates from loader.
func NewRenderer(loader assets.AssetLoader) (*Renderer, error) {
	directive, err := parse(loader, assets.DirectiveTemplate)
	if err != nil {
		return nil, err
	}
	launcher, err := parse(loader, assets.LauncherTemplate)
	if err != nil {
		return nil, err
	}
	return &Renderer{directive: directive, launcher: launcher}, nil
}

func parse(loader assets.AssetLoader, name string) (*template.Template, error) {
	src, err := loader.LoadTemplate(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	t, err := template.New(name).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrRender, name, err)
	}
	return t, nil
}

type directiveData struct {
	ID, Name, Src              string
	Height, Width, Class, Theme string
}

// Directive renders one embed. serial distinguishes several embeds of the
// same notebook on a page.
func (r *Renderer) Directive(d Directive, defaults Defaults, serial int) (string, error) {
	notebook := strings.TrimSpace(d.Notebook)
	if notebook == "" {
		return "", ErrEmptyNotebook
	}

	data := directiveData{
		Name:   NotebookName(notebook),
		Height: pick(d.Height, defaults.Height),
		Width:  pick(d.Width, defaults.Width),
		Class:  pick(d.Class, defaults.Class),
		Theme:  pick(d.Theme, defaults.Theme),
	}
	if !contains(themes, data.Theme) {
		return "", fmt.Errorf("%w: theme %q (want light, dark or auto)", ErrInvalidOption, data.Theme)
	}
	if !strings.Contains(" "+data.Class+" ", " marimo-embed ") {
		data.Class = strings.TrimSpace("marimo-embed " + data.Class)
	}
	data.ID = fmt.Sprintf("marimo-%s-%d", data.Name, serial)
	data.Src = strings.TrimSuffix(pick(defaults.BaseURL, "/_static/marimo"), "/") + "/notebooks/" + data.Name + ".html"

	var buf bytes.Buffer
	if err := r.directive.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

type launcherData struct {
	LauncherInfo
	Placement string
}

// Launcher renders the gallery launch button for a placement
// ("footer" or "sidebar").
func (r *Renderer) Launcher(info LauncherInfo, placement string) (string, error) {
	if placement != "footer" && placement != "sidebar" {
		return "", fmt.Errorf("%w: placement %q", ErrInvalidOption, placement)
	}
	var buf bytes.Buffer
	if err := r.launcher.Execute(&buf, launcherData{LauncherInfo: info, Placement: placement}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.String(), nil
}

func pick(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
