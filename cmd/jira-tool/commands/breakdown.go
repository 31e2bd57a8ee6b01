package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sukhchana/jira-tool/breakdown"
	"github.com/sukhchana/jira-tool/config"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/logger"
	"github.com/sukhchana/jira-tool/tracker"
)

// BreakdownCmd represents the breakdown command
var BreakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Run LLM-assisted epic breakdowns",
	Long: `breakdown — Run an epic breakdown end to end

Fetches the epic from Jira, drafts proposed and execution plan documents
through the configured LLM, stores them, and records the execution.

Examples:
  jira-tool breakdown run PROJ-42      # Break down epic PROJ-42`,
}

var breakdownRunCmd = &cobra.Command{
	Use:   "run <epic-key>",
	Short: "Run a breakdown for an epic",
	Args:  cobra.ExactArgs(1),
	RunE:  runBreakdown,
}

func init() {
	BreakdownCmd.AddCommand(breakdownRunCmd)
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	epicKey := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	tickets, err := newJiraClient(cfg)
	if err != nil {
		return err
	}
	plans, err := newPlanStore(cfg)
	if err != nil {
		return err
	}

	interp := newInterpreter(cfg, database, "breakdown-draft", epicKey)
	trk := tracker.NewTracker(database, logger.Logger)
	manager := breakdown.NewManager(tickets, interp, plans, trk, logger.Logger)

	spinner, _ := pterm.DefaultSpinner.Start("Running breakdown for " + epicKey)

	exec, err := manager.Run(cmd.Context(), epicKey)
	if err != nil {
		spinner.Fail("Breakdown failed")
		if exec != nil {
			pterm.Error.Printfln("Execution %s settled %s", exec.ExecutionID, exec.Status)
		}
		return err
	}
	spinner.Success("Breakdown complete")

	pterm.Success.Printfln("Execution %s is %s", exec.ExecutionID, exec.Status)
	pterm.Info.Printfln("Execution plan: %s", exec.ExecutionPlanFile)
	pterm.Info.Printfln("Proposed plan:  %s", exec.ProposedPlanFile)

	return nil
}
