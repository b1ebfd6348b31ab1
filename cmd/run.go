// -- cmd/run.go --
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/client"
	"github.com/xkilldash9x/puppetd/internal/observability"
)

// pipelineFile is the on-disk request format consumed by `run`.
type pipelineFile struct {
	ExecutionID    string                `json:"executionId"`
	GlobalOptions  schemas.GlobalOptions `json:"globalOptions"`
	Steps          []schemas.Step        `json:"steps"`
	ContinueOnFail bool                  `json:"continueOnFail"`
}

// newRunCmd creates the `run` command: launch a session for the pipeline's
// execution id (unless told not to) and execute its steps.
func newRunCmd() *cobra.Command {
	var (
		executionID string
		noLaunch    bool
	)

	runCmd := &cobra.Command{
		Use:   "run <pipeline.json>",
		Short: "Executes a step pipeline from a JSON file against the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read pipeline file: %w", err)
			}
			var req pipelineFile
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("invalid pipeline file: %w", err)
			}
			if executionID != "" {
				req.ExecutionID = executionID
			}
			if req.ExecutionID == "" {
				return fmt.Errorf("no execution id: set executionId in the file or pass --execution")
			}

			socketPath, err := appCfg.SocketPath()
			if err != nil {
				return err
			}
			c := client.New(socketPath, appCfg.Server.RetryInterval, logger)

			if !noLaunch {
				launched, err := c.Launch(ctx, req.ExecutionID, req.GlobalOptions)
				if err != nil {
					return err
				}
				if !launched {
					return fmt.Errorf("browser failed to launch for execution %s", req.ExecutionID)
				}
			}

			result, err := c.Exec(ctx, req.ExecutionID, req.GlobalOptions, req.Steps, req.ContinueOnFail)
			if err != nil {
				return err
			}
			logger.Info("Pipeline executed",
				zap.String("execution_id", req.ExecutionID),
				zap.String("summary", client.Summarize(result)))

			out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if result.Error != "" {
				return fmt.Errorf("pipeline aborted: %s", result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&executionID, "execution", "e", "", "execution id overriding the pipeline file")
	runCmd.Flags().BoolVar(&noLaunch, "no-launch", false, "do not launch a session; require one to exist")
	return runCmd
}
