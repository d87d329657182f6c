package main

import (
	"errors"
	"os"

	nbembed "github.com/alnah/go-nbembed"
	"github.com/alnah/go-nbembed/internal/cache"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/embed"
	"github.com/alnah/go-nbembed/internal/manifest"
	"github.com/alnah/go-nbembed/internal/notebook"
	"github.com/alnah/go-nbembed/internal/publish"
	"github.com/alnah/go-nbembed/internal/server"
)

// Exit codes for the nbembed CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Command completed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid arguments, flags or config
	ExitIO      = 3 // File not found, permission denied, storage errors
	ExitTool    = 4 // marimo or browser errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// External tool errors (exit 4). Checked first: a missing executable
	// also wraps os.ErrNotExist.
	if errors.Is(err, nbembed.ErrToolFailed) ||
		errors.Is(err, nbembed.ErrToolTimeout) ||
		errors.Is(err, nbembed.ErrToolNotFound) ||
		errors.Is(err, nbembed.ErrBrowserConnect) ||
		errors.Is(err, nbembed.ErrPageCreate) ||
		errors.Is(err, nbembed.ErrPageLoad) ||
		errors.Is(err, nbembed.ErrScreenshot) {
		return ExitTool
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, errUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, nbembed.ErrInvalidTemplate) ||
		errors.Is(err, embed.ErrEmptyNotebook) ||
		errors.Is(err, embed.ErrInvalidOption) ||
		errors.Is(err, publish.ErrInvalidDestination) ||
		errors.Is(err, publish.ErrMissingCredentials) {
		return ExitUsage
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, nbembed.ErrSourceNotFound) ||
		errors.Is(err, nbembed.ErrOutputDirectory) ||
		errors.Is(err, notebook.ErrReadNotebook) ||
		errors.Is(err, notebook.ErrWriteNotebook) ||
		errors.Is(err, manifest.ErrManifestWrite) ||
		errors.Is(err, cache.ErrOpen) ||
		errors.Is(err, publish.ErrUpload) ||
		errors.Is(err, server.ErrServe) {
		return ExitIO
	}

	return ExitGeneral
}
