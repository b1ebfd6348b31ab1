// -- cmd/serve.go --
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetd/internal/daemon"
	"github.com/xkilldash9x/puppetd/internal/observability"
)

// newServeCmd creates the `serve` command running the orchestration daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the browser orchestration daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(appCfg, logger)
			if err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}
}
