package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-nbembed/internal/embed"
)

// errNoNotebook is returned by info for pages without a gallery notebook.
var errNoNotebook = errors.New("no notebook for page")

func (a *app) newEmbedCmd() *cobra.Command {
	var d embed.Directive

	cmd := &cobra.Command{
		Use:   "embed <notebook>",
		Short: "Print the HTML of an embed directive",
		Long: `Embed renders the HTML the notebook directive places in a page: a
container with a unique id, an iframe pointing at the exported artifact
and the loader call. Options left empty take the configured defaults.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			p, err := a.newPlugin(cfg, pluginMode{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			d.Notebook = args[0]
			html, err := p.Directive(d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&d.Height, "height", "", "iframe height (default: marimo.default_height)")
	fs.StringVar(&d.Width, "width", "", "container width (default: marimo.default_width)")
	fs.StringVar(&d.Class, "class", "", "extra CSS classes")
	fs.StringVar(&d.Theme, "theme", "", "light, dark or auto")
	return cmd
}

// notebookInfoJSON is the info command output.
type notebookInfoJSON struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <docname>",
		Short: "Show the gallery notebook of a rendered page",
		Long: `Info looks up the gallery manifest for the page docname (for example
auto_examples/plot_sine) and prints the notebook name, artifact URL and
thumbnail URL as JSON.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			p, err := a.newPlugin(cfg, pluginMode{})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			info, ok := p.NotebookInfo(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", errNoNotebook, args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(notebookInfoJSON{Name: info.Name, URL: info.URL, ThumbnailURL: info.ThumbnailURL})
		},
	}
}
