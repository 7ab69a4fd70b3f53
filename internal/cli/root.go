package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbonduro/diamondinv/internal/config"
	"github.com/vbonduro/diamondinv/internal/logging"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2 // bad arguments or unreadable input
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags and the state PersistentPreRunE prepares for
// subcommands.
type RootOptions struct {
	ConfigPath string

	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func()
}

// NewRootCommand creates the root command for the diamondinv CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "diamondinv",
		Short: "diamondinv - kapaan and receive inventory",
		Long: `diamondinv tracks kapaan intake batches, the persons handling them and the
graded receive lots recorded against each kapaan.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCleanup != nil {
				opts.logCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (overrides DIAMONDINV_CONFIG)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))

	return cmd
}

func (o *RootOptions) setup() error {
	if o.ConfigPath != "" {
		if err := os.Setenv("DIAMONDINV_CONFIG", o.ConfigPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	o.cfg = cfg
	o.logger = logger
	o.logCleanup = cleanup
	return nil
}
