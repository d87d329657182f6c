// Package server serves a built documentation tree for local preview, plus
// a small JSON API over the notebook manifests.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	nbembed "github.com/alnah/go-nbembed"
	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/logging"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// ErrServe is returned when the listener fails.
var ErrServe = errors.New("server error")

// Site is what the server needs from the embedding plugin.
type Site interface {
	Directive(d embed.Directive) (string, error)
	NotebookInfo(docname string) (*nbembed.NotebookInfo, bool)
}

// Options configures the preview server.
type Options struct {
	Addr            string // host:port
	Root            string // built output directory served as static files
	StaticURL       string // URL path of the asset directory, e.g. "/_static/marimo"
	DirectManifest  string
	GalleryManifest string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server is a preview HTTP server.
type Server struct {
	opts Options
	srv  *http.Server
}

// New builds the server. It does not start listening.
func New(site Site, opts Options) *Server {
	opts.Logger = logging.OrDefault(opts.Logger)
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		opts: opts,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(site, opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServe, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := s.opts.Logger
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("serving", "url", "http://"+ln.Addr().String(), "root", s.opts.Root)
		serverErrors <- s.srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %v", ErrServe, err)
		}
		return nil

	case <-ctx.Done():
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed, forcing close", "error", err)
			if closeErr := s.srv.Close(); closeErr != nil {
				return fmt.Errorf("%w: shutdown: %v, close: %v", ErrServe, err, closeErr)
			}
			return fmt.Errorf("%w: %v", ErrServe, err)
		}
		log.Info("server stopped")
		return nil
	}
}
