package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/manifest"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var embedPage = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<link rel="stylesheet" href="{{.StaticURL}}/marimo-embed.css">
<script src="{{.StaticURL}}/marimo-loader.js"></script>
</head>
<body>
{{.Body}}
</body>
</html>
`))

type handler struct {
	site   Site
	opts   Options
	logger *slog.Logger
}

func newHandler(site Site, opts Options) *handler {
	return &handler{site: site, opts: opts, logger: opts.Logger}
}

// notebookList is the /api/notebooks response. A manifest that was never
// written is null.
type notebookList struct {
	Direct  *manifest.Direct  `json:"direct"`
	Gallery *manifest.Gallery `json:"gallery"`
}

type notebookInfo struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (h *handler) listNotebooks(w http.ResponseWriter, r *http.Request) {
	var out notebookList

	if h.opts.DirectManifest != "" {
		d, err := manifest.ReadDirect(h.opts.DirectManifest)
		switch {
		case err == nil:
			out.Direct = &d
		case !errors.Is(err, manifest.ErrManifestNotFound):
			h.logger.ErrorContext(r.Context(), "reading manifest", "path", h.opts.DirectManifest, "error", err)
			http.Error(w, "manifest unreadable", http.StatusInternalServerError)
			return
		}
	}
	if h.opts.GalleryManifest != "" {
		g, err := manifest.ReadGallery(h.opts.GalleryManifest)
		switch {
		case err == nil:
			out.Gallery = &g
		case !errors.Is(err, manifest.ErrManifestNotFound):
			h.logger.ErrorContext(r.Context(), "reading manifest", "path", h.opts.GalleryManifest, "error", err)
			http.Error(w, "manifest unreadable", http.StatusInternalServerError)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) notebookInfo(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	if doc == "" {
		http.Error(w, "missing doc parameter", http.StatusBadRequest)
		return
	}
	info, ok := h.site.NotebookInfo(doc)
	if !ok {
		http.Error(w, "no notebook for "+doc, http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, notebookInfo{Name: info.Name, URL: info.URL, ThumbnailURL: info.ThumbnailURL})
}

func (h *handler) embedPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !validName.MatchString(name) {
		http.Error(w, "invalid notebook name", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	body, err := h.site.Directive(embed.Directive{
		Notebook: name,
		Height:   q.Get("height"),
		Width:    q.Get("width"),
		Theme:    q.Get("theme"),
	})
	if err != nil {
		if errors.Is(err, embed.ErrInvalidOption) || errors.Is(err, embed.ErrEmptyNotebook) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(r.Context(), "rendering directive", "name", name, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	data := struct {
		Name      string
		StaticURL string
		Body      template.HTML
	}{name, h.opts.StaticURL, template.HTML(body)} // #nosec G203 -- produced by the directive template
	if err := embedPage.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "rendering page", "name", name, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("writing response", "error", err)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		h.logger.Error("writing response", "error", err)
	}
}
