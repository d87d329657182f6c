package nbembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-nbembed/internal/fileutil"
	"github.com/alnah/go-nbembed/internal/hints"
)

// Thumbnail viewport and defaults.
const (
	thumbnailWidth   = 1200
	thumbnailHeight  = 800
	thumbnailTimeout = 60 * time.Second
)

// Thumbnailer captures a PNG preview of an exported artifact.
type Thumbnailer interface {
	Capture(ctx context.Context, artifactPath, pngPath string) error
	Close() error
}

// Compile-time interface check.
var _ Thumbnailer = (*rodThumbnailer)(nil)

// rodThumbnailer renders artifacts in headless Chrome via go-rod.
// Rod downloads Chromium on first use if none is found.
type rodThumbnailer struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
}

// NewThumbnailer returns a headless Chrome thumbnailer. The browser is
// launched on the first capture.
func NewThumbnailer(timeout time.Duration) Thumbnailer {
	if timeout <= 0 {
		timeout = thumbnailTimeout
	}
	return &rodThumbnailer{timeout: timeout}
}

// ensureBrowser lazily connects to the browser.
func (r *rodThumbnailer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v%s", ErrBrowserConnect, err, hints.ForBrowserConnect())
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v%s", ErrBrowserConnect, err, hints.ForBrowserConnect())
	}
	r.browser = browser
	return browser, nil
}

// Capture opens artifactPath and writes a viewport screenshot to pngPath.
func (r *rodThumbnailer) Capture(ctx context.Context, artifactPath, pngPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	browser, err := r.ensureBrowser()
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(artifactPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: fileURL(abs)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}
	page = page.Timeout(timeout)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             thumbnailWidth,
		Height:            thumbnailHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	png, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScreenshot, err)
	}
	if err := fileutil.WriteFileAtomic(pngPath, png, fileutil.FilePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrScreenshot, err)
	}
	return nil
}

// Close releases browser resources.
func (r *rodThumbnailer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// fileURL builds a file:// URL for an absolute path.
func fileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // Windows drive letter
	}
	return "file://" + p
}

// thumbnailPath is the PNG written next to an artifact.
func thumbnailPath(artifact string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + ".png"
}

// GenerateThumbnails captures a preview for each artifact, sequentially.
// Failures are logged and a browser launch failure stops the run. Returns
// the number of thumbnails written.
func GenerateThumbnails(ctx context.Context, t Thumbnailer, artifacts []string, logger *slog.Logger) int {
	written := 0
	for _, artifact := range artifacts {
		if err := t.Capture(ctx, artifact, thumbnailPath(artifact)); err != nil {
			logger.Warn("thumbnail failed", "artifact", artifact, "error", err)
			if errors.Is(err, ErrBrowserConnect) {
				return written
			}
			continue
		}
		written++
	}
	return written
}
