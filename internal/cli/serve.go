package cli

import (
	"github.com/spf13/cobra"

	"github.com/vbonduro/diamondinv/internal/web"
)

type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inventory API and event stream",
		Long: `Serve the JSON API, the server-sent event stream of store changes and the
Prometheus metrics endpoint until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides LISTEN_ADDR)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx := cmd.Context()
	addr := opts.cfg.ListenAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	rt := openRuntime(ctx, opts.cfg, opts.logger)
	defer rt.Close()

	if err := rt.storage.Start(ctx); err != nil {
		opts.logger.Warn("cross-process sync unavailable", "error", err)
	}

	server := web.NewServer(rt.service, rt.store, rt.metrics, opts.logger)
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
