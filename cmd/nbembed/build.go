package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	nbembed "github.com/alnah/go-nbembed"
)

// buildFlags holds flags for the build command.
type buildFlags struct {
	timeout    time.Duration
	noCache    bool
	thumbnails bool
	noInject   bool
}

func (a *app) newBuildCmd() *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Export every notebook and prepare the static tree",
		Long: `Build runs the conversion pass of a documentation build: notebooks in
the notebook directory are exported to WASM HTML, gallery downloads are
converted when the gallery extension is configured, manifests and assets
are written, and launch buttons are injected into rendered gallery pages.

Notebook failures are logged and summarized; they do not fail the build.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			mode := pluginMode{
				cache:      cfg.Marimo.CacheNotebooks && !f.noCache,
				thumbnails: cfg.Marimo.Thumbnails || f.thumbnails,
			}
			if cmd.Flags().Changed("timeout") {
				mode.timeout = &f.timeout
			}

			p, err := a.newPlugin(cfg, mode)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			ctx := cmd.Context()
			report, err := p.BuilderInited(ctx)
			if err != nil {
				return err
			}

			injected := 0
			if !f.noInject && report.GalleryDetected {
				if injected, err = p.InjectPages(ctx); err != nil {
					return err
				}
			}
			printBuildReport(cmd.OutOrStdout(), report, injected)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.DurationVar(&f.timeout, "timeout", nbembed.DefaultToolTimeout, "per-notebook marimo timeout (0 disables)")
	fs.BoolVar(&f.noCache, "no-cache", false, "ignore and do not update the conversion cache")
	fs.BoolVar(&f.thumbnails, "thumbnails", false, "capture PNG thumbnails with headless Chrome")
	fs.BoolVar(&f.noInject, "no-inject", false, "do not add launch buttons to rendered gallery pages")
	return cmd
}

func printBuildReport(w io.Writer, r *nbembed.BuildReport, injected int) {
	d := r.Direct
	fmt.Fprintf(w, "notebooks: %d exported, %d failed (%d placeholders)\n",
		d.Exported, len(d.Failures), d.Placeholders)
	if r.GalleryDetected {
		fmt.Fprintf(w, "gallery:   %d converted, %d failed, %d pages updated\n",
			len(r.Gallery), len(r.GalleryFailures), injected)
	}
	if r.Thumbnails > 0 {
		fmt.Fprintf(w, "thumbnails: %d\n", r.Thumbnails)
	}
	fmt.Fprintf(w, "manifest:  %s\n", d.ManifestPath)
	fmt.Fprintf(w, "done in %s with %d workers\n", r.Duration.Round(time.Millisecond), r.Workers)
}
