// -- cmd/stop.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetd/internal/client"
	"github.com/xkilldash9x/puppetd/internal/observability"
)

// newStopCmd creates the `stop` command closing an execution's session.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <execution-id>",
		Short: "Closes the browser session of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			socketPath, err := appCfg.SocketPath()
			if err != nil {
				return err
			}
			c := client.New(socketPath, appCfg.Server.RetryInterval, observability.GetLogger())

			existed, err := c.Shutdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				fmt.Fprintln(cmd.OutOrStdout(), "no session for", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session closed for", args[0])
			return nil
		},
	}
}
