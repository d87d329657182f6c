package main

import (
	"io"
	"os"

	"github.com/go-rod/rod/lib/launcher"

	nbembed "github.com/alnah/go-nbembed"
)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer

	// Runner executes marimo. Nil means the real executable.
	Runner nbembed.CommandRunner

	// Thumbnailer replaces headless Chrome when set.
	Thumbnailer nbembed.Thumbnailer

	// LookPath locates a Chrome/Chromium executable.
	LookPath func() (string, bool)
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		LookPath: launcher.LookPath,
	}
}
