// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// inCI reports whether a common CI environment variable is set.
func inCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// ForBrowserConnect returns hints for headless Chrome launch errors.
func ForBrowserConnect() string {
	var hints []string
	if (inCI() || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}
	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use custom Chrome")
	}
	return formatHints(hints)
}

// ForToolNotFound returns a hint for a missing marimo executable.
func ForToolNotFound(binary string) string {
	if binary == "" || binary == "marimo" {
		return format("install marimo with: pip install marimo")
	}
	return format("check that " + binary + " is installed and on PATH")
}

// ForToolTimeout returns a hint about raising the tool timeout.
func ForToolTimeout() string {
	return format("raise marimo.tool.timeout or use --timeout for large notebooks")
}

// ForConfigNotFound returns hints for config file not found errors.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/nbembed.yaml"
	for _, p := range searchedPaths {
		if strings.Contains(toSlash(p), "/go-nbembed/") {
			hint += " or create " + p
			break
		}
	}
	return format(hint)
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForPublishCredentials returns a hint for missing object storage credentials.
func ForPublishCredentials() string {
	return format("set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
