package cli

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbonduro/diamondinv/internal/persist"
)

type ExportOptions struct {
	*RootOptions
	Output string
	Pretty bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the persisted collections as JSON",
		Long: `Write the persons, kapaans and receives in the persisted layout. The output
can be loaded back with the import command.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent the output")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	rt := openRuntime(cmd.Context(), opts.cfg, opts.logger)
	defer rt.Close()

	data, err := persist.Encode(rt.store.ExportSnapshot())
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}
	if opts.Pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return WrapExitError(ExitFailure, "export failed", err)
		}
		data = buf.Bytes()
	}
	data = append(data, '\n')

	if opts.Output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitFailure, "failed to write export", err)
	}
	return nil
}
