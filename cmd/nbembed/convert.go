package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-nbembed/internal/notebook"
)

func (a *app) newConvertCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "convert <notebook.ipynb>",
		Short: "Convert one Jupyter notebook to a marimo WASM page",
		Long: `Convert runs "marimo convert" then "marimo export html-wasm" on a single
notebook, applying the configured rewrites to the intermediate source.
The .py and .html files are written to the output directory.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			p, err := a.newPlugin(cfg, pluginMode{cache: cfg.Marimo.CacheNotebooks})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			res, err := p.Converter().Convert(cmd.Context(), args[0], outDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Artifact)
			if res.Cached {
				a.logger.Info("restored from cache", "artifact", res.Artifact)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	return cmd
}

// transformFlags holds flags for the transform command.
type transformFlags struct {
	output  string
	prepend string
	moveTop bool
}

func (a *app) newTransformCmd() *cobra.Command {
	var f transformFlags

	cmd := &cobra.Command{
		Use:   "transform <notebook.py>",
		Short: "Apply the notebook rewrites to a marimo source file",
		Long: `Transform prepends a markdown banner cell and/or moves the marimo import
cell to the top of a marimo notebook. Without flags the configured
prepend_markdown and move_imports_to_top values are used. The file is
rewritten in place unless --output is given.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := notebook.TransformOptions{
				OutputPath:       f.output,
				PrependMarkdown:  f.prepend,
				MoveImportsToTop: f.moveTop,
			}
			if !cmd.Flags().Changed("prepend-markdown") && !cmd.Flags().Changed("move-imports-to-top") {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				opts.PrependMarkdown = cfg.Marimo.PrependMarkdown
				opts.MoveImportsToTop = cfg.Marimo.MoveImportsToTop
			}
			if opts.IsZero() {
				return fmt.Errorf("%w: nothing to do, set --prepend-markdown or --move-imports-to-top", errUsage)
			}

			written, err := notebook.Transform(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), written)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.output, "output", "o", "", "write to this file instead of rewriting the input")
	fs.StringVar(&f.prepend, "prepend-markdown", "", "markdown shown above the notebook")
	fs.BoolVar(&f.moveTop, "move-imports-to-top", false, "move marimo import cells first")
	return cmd
}
