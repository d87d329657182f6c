// Package nbembed converts marimo notebooks into WASM HTML artifacts and
// wires them into a documentation build.
//
// # Quick Start
//
// Load a configuration, create the plugin, and run the build hooks:
//
//	cfg, err := config.LoadConfig("nbembed")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err = nbembed.ConfigInited(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := nbembed.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	report, err := p.BuilderInited(ctx)
//
// BuilderInited never fails because one notebook failed. Failed exports
// become placeholder pages (direct mode) or are left out of the manifest
// (gallery mode); the error return is reserved for unusable output
// directories.
//
// # Pipeline
//
// Each notebook goes through the same stages:
//
//  1. "marimo convert" turns a gallery .ipynb into a marimo .py file
//     (gallery mode only)
//  2. optional source rewrites: a markdown banner cell, imports moved up
//  3. "marimo export html-wasm" produces the self-contained artifact
//
// Stages run through a CommandRunner, so tests substitute a fake that
// writes the expected files. Results are memoized in a pebble store keyed
// on the source content, the output paths and the options.
//
// # Parallel Processing
//
// Notebooks are dispatched to a bounded worker pool sized by
// ResolveWorkers. With one worker, results come back in submission order;
// otherwise in completion order.
//
// # Embedding
//
// Plugin.Directive renders the iframe container for one notebook, and
// Plugin.InjectPages adds "Open in marimo" launchers to rendered gallery
// pages. The embed stylesheet and loader script are written next to the
// artifacts.
//
// # Browser Requirements
//
// Thumbnails (optional) need Chrome/Chromium. The go-rod library downloads
// a managed Chromium on first use. Set ROD_BROWSER_BIN to use a custom
// binary; the sandbox is disabled in CI and when a binary is given.
package nbembed
