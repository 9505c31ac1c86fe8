// Package cli implements the courier command-line interface.
//
// Command state lives in package variables, initialized in
// PersistentPreRunE and released in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/config"
	"github.com/mrz1836/courier/internal/output"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
	formatter *output.Formatter

	// Output streams; tests replace them.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	// newService builds the service for a command; tests replace it.
	newService = func(cfg *config.Config, opts app.Options) (*app.Service, error) {
		return app.New(cfg, opts)
	}
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Sign and broadcast EVM swaps and transfers",
	Long: `Courier submits token swaps and transfers from local accounts to EVM
chains, records every broadcast transaction and tracks it until it is mined.

Example:
  courier account import --name main
  courier send --account 0x... --chain base --to 0x... --amount 0.01
  courier swap --account 0x... --chain mainnet --quote quote.json --in 0xA0b8... --in-decimals 6 --amount 100
  courier watch --metrics-addr :9102`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	return courierr.ExitCode(err)
}

// initGlobals loads the configuration, logger and formatter.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		return err
	}
	cfg.Home = home
	config.ApplyEnvironment(cfg)
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logCfg := cfg.Logging
	logCfg.File = cfg.ResolvePath(logCfg.File)
	logger, logCloser, err = config.NewLogger(logCfg)
	if err != nil {
		return err
	}

	explicit := output.ParseFormat(outputFormat)
	formatter = output.NewFormatter(output.DetectFormat(stdout, explicit), stdout).WithStatusWriter(stderr)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

// openService builds the service for the current configuration.
func openService(opts app.Options) (*app.Service, error) {
	opts.Logger = logger
	return newService(cfg, opts)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "courier data directory (default: ~/.courier)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
