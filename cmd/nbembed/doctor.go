package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	nbembed "github.com/alnah/go-nbembed"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/hints"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"`
	Marimo   marimoInfo `json:"marimo"`
	Chrome   chromeInfo `json:"chrome"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// marimoInfo holds marimo detection results.
type marimoInfo struct {
	Found   bool   `json:"found"`
	Binary  string `json:"binary"`
	Version string `json:"version,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Sandbox  bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Container  bool   `json:"container"`
	CI         bool   `json:"ci"`
	NoSandbox  string `json:"rod_no_sandbox"`
	BrowserBin string `json:"rod_browser_bin"`
}

// systemInfo holds system check results.
type systemInfo struct {
	OutputWritable bool   `json:"output_writable"`
	OutputDir      string `json:"output_dir"`
}

func (a *app) newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check marimo, Chrome and the output directory",
		Long: `Doctor checks that marimo is installed, that Chrome is available when
thumbnails are enabled, and that the output directory is writable.
Exits 1 when errors are found; warnings alone exit 0.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			result := a.runDoctor(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printDoctorResult(out, result)
			}

			if result.Status == statusErrors {
				return fmt.Errorf("doctor found %d error(s)", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
	return cmd
}

// runDoctor performs all diagnostic checks.
func (a *app) runDoctor(ctx context.Context, cfg *config.Config) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  os.Getenv("ROD_NO_SANDBOX"),
			BrowserBin: os.Getenv("ROD_BROWSER_BIN"),
		},
	}

	a.checkMarimo(ctx, cfg, result)
	a.checkChrome(cfg, result)
	checkEnvironment(result)
	checkOutput(cfg, result)

	if len(result.Errors) > 0 {
		result.Status = statusErrors
	} else if len(result.Warnings) > 0 {
		result.Status = statusWarnings
	}
	return result
}

// checkMarimo runs the configured version command.
func (a *app) checkMarimo(ctx context.Context, cfg *config.Config, result *doctorResult) {
	tool, err := nbembed.NewTool(a.env.Runner, cfg.Marimo.Tool.Convert, cfg.Marimo.Tool.Export, cfg.ToolTimeout())
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	if err := tool.SetVersionCommand(cfg.Marimo.Tool.Version); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	result.Marimo.Binary = tool.Binary()

	version, err := tool.Version(ctx)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s not usable: %v%s", tool.Binary(), err, hints.ForToolNotFound(tool.Binary())))
		return
	}
	result.Marimo.Found = true
	result.Marimo.Version = version
}

// checkChrome locates Chrome. A missing browser is an error only when
// thumbnails are enabled.
func (a *app) checkChrome(cfg *config.Config, result *doctorResult) {
	result.Chrome.Required = cfg.Marimo.Thumbnails
	report := func(msg string) {
		if result.Chrome.Required {
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg+" (only needed for thumbnails)")
		}
	}

	chromePath := result.Env.BrowserBin
	if chromePath == "" && a.env.LookPath != nil {
		var found bool
		chromePath, found = a.env.LookPath()
		if !found {
			report("Chrome/Chromium not found. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}
	if chromePath == "" {
		report("Chrome/Chromium not found. Install Chrome or set ROD_BROWSER_BIN")
		return
	}
	if _, err := os.Stat(chromePath); err != nil {
		if _, lerr := exec.LookPath(chromePath); lerr != nil {
			report(fmt.Sprintf("Chrome not found at %s", chromePath))
			return
		}
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath
	result.Chrome.Sandbox = result.Env.NoSandbox != "1"
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult) {
	result.Env.Container = hints.IsInContainer() || os.Getenv("KUBERNETES_SERVICE_HOST") != ""
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if os.Getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}
	if result.Chrome.Required && (result.Env.Container || result.Env.CI) && result.Env.NoSandbox != "1" {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// checkOutput verifies the output directory can be created and written.
func checkOutput(cfg *config.Config, result *doctorResult) {
	dir := cfg.OutputDir
	result.System.OutputDir = dir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Output directory not usable: %v", err))
		return
	}
	probe := filepath.Join(dir, ".nbembed-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Output directory not writable: %s", dir))
		return
	}
	_ = os.Remove(probe)
	result.System.OutputWritable = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "nbembed doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "marimo")
	if r.Marimo.Found {
		fmt.Fprintf(w, "  [OK] %s %s\n", r.Marimo.Binary, r.Marimo.Version)
	} else {
		fmt.Fprintf(w, "  [ERROR] %s not found\n", r.Marimo.Binary)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	switch {
	case r.Chrome.Found:
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		if !r.Chrome.Sandbox {
			fmt.Fprintln(w, "  [OK] Sandbox: disabled (ROD_NO_SANDBOX=1)")
		}
	case r.Chrome.Required:
		fmt.Fprintln(w, "  [ERROR] Not found")
	default:
		fmt.Fprintln(w, "  [WARN] Not found (thumbnails disabled)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintln(w, "  [OK] Container: detected")
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Output")
	if r.System.OutputWritable {
		fmt.Fprintf(w, "  [OK] %s: writable\n", r.System.OutputDir)
	} else {
		fmt.Fprintf(w, "  [ERROR] %s: not writable\n", r.System.OutputDir)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", strings.TrimSpace(e))
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to build")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
