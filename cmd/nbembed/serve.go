package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alnah/go-nbembed/internal/manifest"
	"github.com/alnah/go-nbembed/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview the built output over HTTP",
		Long: `Serve exposes the output directory as static files, plus:

  GET /api/notebooks              direct and gallery manifests
  GET /api/notebooks/info?doc=X   gallery notebook of page X
  GET /embed/{name}               a page holding one embedded notebook

Stops gracefully on interrupt.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			p, err := a.newPlugin(cfg, pluginMode{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			srv := server.New(p, server.Options{
				Addr:            addr,
				Root:            cfg.OutputDir,
				StaticURL:       p.EmbedDefaults().BaseURL,
				DirectManifest:  filepath.Join(cfg.StaticPath(), manifest.DirectFile),
				GalleryManifest: p.Gallery().ManifestPath(),
				Logger:          a.logger,
			})
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
