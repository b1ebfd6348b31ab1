// -- cmd/check.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetd/internal/client"
	"github.com/xkilldash9x/puppetd/internal/observability"
)

// newCheckCmd creates the `check` command arming the daemon's reaper for an
// execution.
func newCheckCmd() *cobra.Command {
	var (
		baseURL string
		apiKey  string
	)

	checkCmd := &cobra.Command{
		Use:   "check <execution-id>",
		Short: "Asks the daemon to watch an execution and reap its session when it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			socketPath, err := appCfg.SocketPath()
			if err != nil {
				return err
			}
			c := client.New(socketPath, appCfg.Server.RetryInterval, observability.GetLogger())

			acknowledged, err := c.Check(cmd.Context(), args[0], baseURL, apiKey)
			if err != nil {
				return err
			}
			if !acknowledged {
				return fmt.Errorf("no session for execution %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "watching", args[0])
			return nil
		},
	}

	checkCmd.Flags().StringVar(&baseURL, "base-url", "", "base URL of the workflow engine's REST API")
	checkCmd.Flags().StringVar(&apiKey, "api-key", "", "API key sent with status requests")
	checkCmd.MarkFlagRequired("base-url")
	return checkCmd
}
