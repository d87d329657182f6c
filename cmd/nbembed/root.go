package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	nbembed "github.com/alnah/go-nbembed"
	"github.com/alnah/go-nbembed/internal/config"
	"github.com/alnah/go-nbembed/internal/hints"
	"github.com/alnah/go-nbembed/internal/logging"
)

// errUsage marks invalid arguments and flags.
var errUsage = errors.New("usage error")

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	config  string
	verbose bool
	quiet   bool
	logJSON bool
	srcdir  string
	outdir  string
}

// app carries state shared by the commands of one invocation.
type app struct {
	env    *Environment
	flags  rootFlags
	logger *slog.Logger
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, env *Environment) int {
	root := newRootCmd(env)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(env.Stderr, "Error:", err)
	}
	return exitCodeFor(err)
}

func newRootCmd(env *Environment) *cobra.Command {
	a := &app{env: env, logger: logging.Discard()}

	root := &cobra.Command{
		Use:   "nbembed",
		Short: "Convert marimo notebooks into embeddable WASM pages",
		Long: `nbembed exports marimo notebooks to self-contained WASM HTML files,
writes the manifests and static assets the embed directive needs, and
converts gallery notebooks for launch buttons.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logger = logging.New(logging.Options{
				Verbose: a.flags.verbose,
				Quiet:   a.flags.quiet,
				JSON:    a.flags.logJSON,
				Writer:  env.Stderr,
			})
			return nil
		},
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	a.flags.register(root.PersistentFlags())

	root.AddCommand(
		a.newBuildCmd(),
		a.newConvertCmd(),
		a.newTransformCmd(),
		a.newEmbedCmd(),
		a.newInfoCmd(),
		a.newServeCmd(),
		a.newPublishCmd(),
		a.newCacheCmd(),
		a.newDoctorCmd(),
		a.newVersionCmd(),
	)
	return root
}

func (f *rootFlags) register(fs *flag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "config file path or name (default: nbembed.yaml if present)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only log warnings and errors")
	fs.BoolVar(&f.logJSON, "log-json", false, "log JSON lines instead of text")
	fs.StringVar(&f.srcdir, "srcdir", "", "override the documentation source directory")
	fs.StringVar(&f.outdir, "outdir", "", "override the build output directory")
	fs.SortFlags = false
}

// exactArgs is cobra.ExactArgs with usage-classified errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

// maxArgs is cobra.MaximumNArgs with usage-classified errors.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

// loadConfig reads --config, or nbembed.yaml when present, or the
// defaults. Directory overrides are applied before validation.
func (a *app) loadConfig() (*config.Config, error) {
	name := a.flags.config
	explicit := name != ""
	if !explicit {
		name = config.DefaultName
	}

	cfg, err := config.LoadConfig(name)
	switch {
	case err == nil:
		a.logger.Debug("config loaded", "name", name)
	case !explicit && errors.Is(err, config.ErrConfigNotFound):
		cfg = config.DefaultConfig()
	case errors.Is(err, config.ErrConfigNotFound):
		return nil, fmt.Errorf("%w%s", err, hints.ForConfigNotFound(searchedPaths(name)))
	default:
		return nil, err
	}

	if a.flags.srcdir != "" {
		cfg.SourceDir = a.flags.srcdir
	}
	if a.flags.outdir != "" {
		cfg.OutputDir = a.flags.outdir
	}
	return nbembed.ConfigInited(cfg)
}

// searchedPaths lists the user config location tried for a config name.
func searchedPaths(name string) []string {
	dir, err := os.UserConfigDir()
	if err != nil || filepath.IsAbs(name) {
		return nil
	}
	return []string{filepath.Join(dir, "go-nbembed", name+".yaml")}
}

// pluginMode selects which optional plugin services are enabled.
type pluginMode struct {
	cache      bool
	thumbnails bool
	timeout    *time.Duration // nil keeps the configured timeout
}

// newPlugin creates the plugin for cfg. Commands that only render or
// serve leave the cache and thumbnails off.
func (a *app) newPlugin(cfg *config.Config, mode pluginMode) (*nbembed.Plugin, error) {
	c := *cfg
	if !mode.cache {
		c.Marimo.CacheNotebooks = false
	}
	if !mode.thumbnails {
		c.Marimo.Thumbnails = false
	}

	opts := []nbembed.Option{
		nbembed.WithLogger(a.logger),
		nbembed.WithRunner(a.env.Runner),
	}
	if a.env.Thumbnailer != nil {
		opts = append(opts, nbembed.WithThumbnailer(a.env.Thumbnailer))
	}
	if mode.timeout != nil {
		opts = append(opts, nbembed.WithTimeout(*mode.timeout))
	}
	return nbembed.New(&c, opts...)
}
