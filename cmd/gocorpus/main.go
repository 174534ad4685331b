// Command gocorpus discovers and extracts blog posts and PDFs into chunked
// corpus items.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gocorpus/internal/app"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitNoItems = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and maps the outcome to an exit code: 0 when the run
// completes, 2 when it produced no items, 1 for configuration and other
// errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrNoItems):
		log.Error().Msg("no items produced")
		return exitNoItems
	default:
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
}

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string
	flags      app.Config

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "gocorpus",
		Short:         "Discover and extract blog posts and PDFs into corpus items",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML or JSON config file")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	bindConfigFlags(pf, &opts.flags)

	root.AddCommand(
		newScrapeCommand(opts),
		newDiscoverCommand(opts),
		newServeCommand(opts),
		newCacheCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// config resolves the effective configuration: flags, then env, then the
// config file, then defaults. Logging is configured from the result.
func (o *rootOptions) config() (app.Config, error) {
	if err := app.LoadEnvFiles(o.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("%w: load env files: %v", app.ErrConfig, err)
	}
	cfg := o.flags
	app.ApplyEnvToConfig(&cfg)
	if o.configPath != "" {
		fc, err := app.LoadConfigFile(o.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("%w: %v", app.ErrConfig, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	cfg.ApplyDefaults()
	o.setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func (o *rootOptions) setupLogging(cfg app.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogJSON {
		log.Logger = zerolog.New(o.stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: o.stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			b := app.Build()
			fmt.Fprintf(opts.stdout, "gocorpus %s (commit %s, built %s)\n", b.Version, b.Commit, b.Date)
		},
	}
}
