package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vbonduro/diamondinv/internal/persist"
)

type ImportOptions struct {
	*RootOptions
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the stored collections with an export",
		Long: `Replace every person, kapaan and receive with the contents of an export
file. Use "-" to read from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import file", err)
	}
	c, err := persist.Decode(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid import file", err)
	}

	rt := openRuntime(cmd.Context(), opts.cfg, opts.logger)
	defer rt.Close()

	rt.binding.Import(c)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d persons, %d kapaans, %d receives\n",
		green("imported"), len(c.Persons), len(c.Kapaans), len(c.Receives))
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
