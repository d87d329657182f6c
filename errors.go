package nbembed

import "errors"

// Sentinel errors for library operations.
var (
	// External tool errors. Failures carry a *ToolError.
	ErrToolFailed   = errors.New("external tool failed")
	ErrToolTimeout  = errors.New("external tool timed out")
	ErrToolNotFound = errors.New("external tool not found")

	ErrInvalidTemplate = errors.New("invalid command template")
	ErrSourceNotFound  = errors.New("notebook source not found")
	ErrConversionPanic = errors.New("conversion panicked")
	ErrDuplicateName   = errors.New("duplicate notebook name")

	ErrGalleryNotDetected = errors.New("gallery extension is not configured")
	ErrOutputDirectory    = errors.New("cannot prepare output directory")
	ErrPlaceholder        = errors.New("placeholder rendering failed")

	// Browser errors (thumbnails).
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrScreenshot     = errors.New("screenshot failed")
)
