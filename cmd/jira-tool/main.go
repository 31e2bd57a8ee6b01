package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sukhchana/jira-tool/cmd/jira-tool/commands"
	"github.com/sukhchana/jira-tool/logger"
)

var rootCmd = &cobra.Command{
	Use:   "jira-tool",
	Short: "LLM-assisted Jira epic breakdown and revision tracking",
	Long: `jira-tool - LLM-assisted epic breakdown with human-in-the-loop revisions.

Breakdown runs fetch an epic, draft plan documents through an LLM, and record
an execution. Revisions are interpreted by the LLM, confirmed by a human, and
applied as child executions chained to the original run.

Available commands:
  breakdown - Run an epic breakdown
  revision  - Request, confirm, and apply plan revisions
  db        - Database operations (migrate, stats)
  serve     - Start the HTTP API server

Examples:
  jira-tool breakdown run PROJ-42          # Break down an epic
  jira-tool revision request <exec-id> "split story 3 into two"
  jira-tool revision confirm <rev-id> --accept
  jira-tool db stats                       # Executions, revisions, AI spend`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func main() {
	rootCmd.AddCommand(commands.BreakdownCmd)
	rootCmd.AddCommand(commands.RevisionCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)

	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
