package nbembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/google/shlex"

	"github.com/alnah/go-nbembed/internal/process"
)

// Tool defaults.
const (
	DefaultConvertCommand = "marimo convert {{input}} -o {{output}}"
	DefaultExportCommand  = "marimo export html-wasm --mode edit {{input}} -o {{output}}"
	DefaultToolTimeout    = 5 * time.Minute

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the process group was killed.
	waitDelay = 2 * time.Second
)

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. The command runs in its
// own process group, which is killed when ctx is done.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	cmd := exec.Command(name, args...) // #nosec G204 -- command comes from the configured template
	process.Isolate(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return stdout.String(), stderr.String(), err
	case <-ctx.Done():
		process.KillProcessGroup(cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
		return stdout.String(), stderr.String(), ctx.Err()
	}
}

// ToolError carries the output of a failed external command.
type ToolError struct {
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int // -1 when the process did not exit normally
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// LogValue logs the full captured streams, which Error shortens.
func (e *ToolError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("argv", strings.Join(e.Argv, " ")),
		slog.Int("exit_code", e.ExitCode),
		slog.String("stdout", e.Stdout),
		slog.String("stderr", e.Stderr),
	)
}

// lastLine returns the final line of s, where tools print the actual error.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// commandTemplate is a command line split into tokens, each token a
// raymond template over {{input}} and {{output}}.
type commandTemplate struct {
	source string
	tokens []*raymond.Template
}

func parseCommand(source string) (*commandTemplate, error) {
	words, err := shlex.Split(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, source, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrInvalidTemplate)
	}

	tokens := make([]*raymond.Template, len(words))
	for i, w := range words {
		tpl, err := raymond.Parse(w)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, source, err)
		}
		tokens[i] = tpl
	}
	return &commandTemplate{source: source, tokens: tokens}, nil
}

// argv renders the command for one input/output pair. Paths are passed as
// SafeString so raymond does not HTML-escape them.
func (c *commandTemplate) argv(input, output string) ([]string, error) {
	ctx := map[string]any{
		"input":  raymond.SafeString(input),
		"output": raymond.SafeString(output),
	}
	argv := make([]string, len(c.tokens))
	for i, tpl := range c.tokens {
		s, err := tpl.Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
		argv[i] = s
	}
	return argv, nil
}

// Tool runs the marimo convert and export commands.
type Tool struct {
	runner  CommandRunner
	convert *commandTemplate
	export  *commandTemplate
	version []string
	timeout time.Duration
}

// NewTool parses the command templates. A nil runner uses ExecRunner, an
// empty template its default, and timeout 0 disables the timeout.
func NewTool(runner CommandRunner, convertCmd, exportCmd string, timeout time.Duration) (*Tool, error) {
	if runner == nil {
		runner = &ExecRunner{}
	}
	if convertCmd == "" {
		convertCmd = DefaultConvertCommand
	}
	if exportCmd == "" {
		exportCmd = DefaultExportCommand
	}

	convert, err := parseCommand(convertCmd)
	if err != nil {
		return nil, err
	}
	export, err := parseCommand(exportCmd)
	if err != nil {
		return nil, err
	}
	return &Tool{
		runner:  runner,
		convert: convert,
		export:  export,
		version: versionArgv(export.source),
		timeout: timeout,
	}, nil
}

// SetVersionCommand replaces the command Version runs. Empty keeps the
// one derived from the export template.
func (t *Tool) SetVersionCommand(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return nil
	}
	words, err := shlex.Split(cmd)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, cmd, err)
	}
	t.version = words
	return nil
}

// versionArgv keeps the export command up to its "export" subcommand, so
// launchers like "uvx marimo" or "python -m marimo" are queried for
// marimo's version rather than their own.
func versionArgv(exportCmd string) []string {
	words, _ := shlex.Split(exportCmd)
	for i, w := range words {
		if w == "export" && i > 0 {
			return append(words[:i:i], "--version")
		}
	}
	if len(words) == 0 {
		return nil
	}
	return []string{words[0], "--version"}
}

// Binary returns the executable of the export command.
func (t *Tool) Binary() string {
	words, _ := shlex.Split(t.export.source)
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// Fingerprint identifies the configured commands, for cache keys.
func (t *Tool) Fingerprint() string {
	return t.convert.source + "\x00" + t.export.source
}

// Timeout returns the per-invocation timeout.
func (t *Tool) Timeout() time.Duration {
	return t.timeout
}

// Convert runs the convert command (notebook to marimo source).
func (t *Tool) Convert(ctx context.Context, input, output string) error {
	argv, err := t.convert.argv(input, output)
	if err != nil {
		return err
	}
	_, err = t.run(ctx, argv)
	return err
}

// Export runs the export command (marimo source to WASM HTML).
func (t *Tool) Export(ctx context.Context, input, output string) error {
	argv, err := t.export.argv(input, output)
	if err != nil {
		return err
	}
	_, err = t.run(ctx, argv)
	return err
}

// Version returns the trimmed output of the version command, by default
// "marimo --version".
func (t *Tool) Version(ctx context.Context) (string, error) {
	out, err := t.run(ctx, t.version)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// run executes argv under the tool timeout and classifies failures.
func (t *Tool) run(ctx context.Context, argv []string) (string, error) {
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	stdout, stderr, err := t.runner.Run(runCtx, argv[0], argv[1:]...)
	if err == nil {
		return stdout, nil
	}

	toolErr := &ToolError{
		Argv:     argv,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: -1,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return stdout, fmt.Errorf("%w: %w", ErrToolNotFound, toolErr)
	case ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return stdout, fmt.Errorf("%w after %s: %w", ErrToolTimeout, t.timeout, toolErr)
	default:
		return stdout, fmt.Errorf("%w: %w", ErrToolFailed, toolErr)
	}
}
