package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires middleware, the API and the static tree.
func NewRouter(site Site, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	h := newHandler(site, opts)

	r.Route("/api", func(r chi.Router) {
		r.Get("/notebooks", h.listNotebooks)
		r.Get("/notebooks/info", h.notebookInfo)
	})
	r.Get("/embed/{name}", h.embedPage)

	r.Handle("/*", http.FileServer(http.Dir(opts.Root)))
	return r
}
