package assets

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// RuntimeDir is the static subdirectory holding the runtime placeholder.
const RuntimeDir = "runtime"

// Provision writes the embed stylesheet and loader script into staticDir and
// returns the written paths. A custom script that fails to compile is
// replaced by the embedded one and reported on logger.
func Provision(staticDir string, r *AssetResolver, logger *slog.Logger) ([]string, error) {
	written := make([]string, 0, 2)
	for _, name := range []string{StyleFile, LoaderFile} {
		path, err := writeStatic(r, filepath.Join(staticDir, name), name, logger)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ProvisionRuntime writes the runtime placeholder to staticDir/runtime.
func ProvisionRuntime(staticDir string, r *AssetResolver, logger *slog.Logger) (string, error) {
	return writeStatic(r, filepath.Join(staticDir, RuntimeDir, RuntimeFile), RuntimeFile, logger)
}

func writeStatic(r *AssetResolver, target, name string, logger *slog.Logger) (string, error) {
	content, err := r.LoadStatic(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvision, err)
	}

	if strings.HasSuffix(name, ".js") {
		if err := ValidateScript(name, content); err != nil {
			if !r.HasCustomLoader() {
				return "", fmt.Errorf("%w: %v", ErrProvision, err)
			}
			logger.Warn("custom script rejected, using embedded default", "asset", name, "error", err)
			if content, err = r.LoadEmbeddedStatic(name); err != nil {
				return "", fmt.Errorf("%w: %v", ErrProvision, err)
			}
		}
	}

	if err := fileutil.WriteFileAtomic(target, []byte(content), fileutil.FilePermissions); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvision, err)
	}
	logger.Debug("provisioned asset", "path", target)
	return target, nil
}
