package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sukhchana/jira-tool/config"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/planstore"
	"github.com/sukhchana/jira-tool/tracker"
)

// RevisionCmd represents the revision command
var RevisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Request, confirm, and apply plan revisions",
	Long: `revision — Human-in-the-loop plan revisions

A revision is requested against an ACTIVE execution, interpreted by the LLM,
then confirmed (accepted or rejected) by you. Applying an accepted revision
creates a child execution chained to the original.

Examples:
  jira-tool revision request <exec-id> "split story 3 into two"
  jira-tool revision confirm <rev-id> --accept
  jira-tool revision confirm <rev-id> --reject
  jira-tool revision apply <rev-id>
  jira-tool revision list <exec-id>`,
}

var revisionRequestCmd = &cobra.Command{
	Use:   "request <execution-id> <changes>",
	Short: "Request a revision against an active execution",
	Args:  cobra.ExactArgs(2),
	RunE:  runRevisionRequest,
}

var revisionConfirmCmd = &cobra.Command{
	Use:   "confirm <revision-id>",
	Short: "Accept or reject a pending revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevisionConfirm,
}

var revisionApplyCmd = &cobra.Command{
	Use:   "apply <revision-id>",
	Short: "Apply an accepted revision, creating a child execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevisionApply,
}

var revisionListCmd = &cobra.Command{
	Use:   "list <execution-id>",
	Short: "List revisions recorded against an execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevisionList,
}

var (
	confirmAcceptFlag bool
	confirmRejectFlag bool
)

func init() {
	revisionConfirmCmd.Flags().BoolVar(&confirmAcceptFlag, "accept", false, "Accept the interpretation")
	revisionConfirmCmd.Flags().BoolVar(&confirmRejectFlag, "reject", false, "Reject the interpretation")

	RevisionCmd.AddCommand(revisionRequestCmd)
	RevisionCmd.AddCommand(revisionConfirmCmd)
	RevisionCmd.AddCommand(revisionApplyCmd)
	RevisionCmd.AddCommand(revisionListCmd)
}

func runRevisionRequest(cmd *cobra.Command, args []string) error {
	executionID, changes := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	workflow, err := newWorkflow(cfg, database, executionID)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Interpreting change request")
	rev, err := workflow.RequestRevision(cmd.Context(), executionID, changes)
	if err != nil {
		spinner.Fail("Revision request failed")
		return err
	}
	spinner.Success("Revision recorded")

	pterm.Success.Printfln("Revision %s is PENDING", rev.RevisionID)
	pterm.Info.Printfln("Interpretation:\n%s", rev.ChangesInterpreted)
	pterm.Info.Printfln("Confirm with: jira-tool revision confirm %s --accept|--reject", rev.RevisionID)

	return nil
}

func runRevisionConfirm(cmd *cobra.Command, args []string) error {
	revisionID := args[0]

	if confirmAcceptFlag == confirmRejectFlag {
		return errors.NewValidation("pass exactly one of --accept or --reject")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	workflow, err := newWorkflow(cfg, database, revisionID)
	if err != nil {
		return err
	}

	rev, err := workflow.ConfirmRevision(cmd.Context(), revisionID, confirmAcceptFlag)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("Revision %s is %s", rev.RevisionID, rev.Status)
	if rev.Status == tracker.RevisionAccepted {
		pterm.Info.Printfln("Apply with: jira-tool revision apply %s", rev.RevisionID)
	}

	return nil
}

func runRevisionApply(cmd *cobra.Command, args []string) error {
	revisionID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	workflow, err := newWorkflow(cfg, database, revisionID)
	if err != nil {
		return err
	}

	// The revision's execution supplies the epic key for the new plan refs
	store := tracker.NewStore(database)
	rev, err := store.GetRevision(cmd.Context(), revisionID)
	if err != nil {
		return err
	}
	parent, err := store.GetExecution(cmd.Context(), rev.ExecutionID)
	if err != nil {
		return err
	}

	refs := tracker.PlanFileRefs{
		ExecutionPlanFile: planstore.NewExecutionPlanRef(parent.EpicKey),
		ProposedPlanFile:  planstore.NewProposedPlanRef(parent.EpicKey),
	}

	child, err := workflow.ApplyRevision(cmd.Context(), revisionID, refs)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("Revision %s APPLIED", revisionID)
	pterm.Info.Printfln("Child execution %s (parent %s)", child.ExecutionID, child.ParentExecutionID)
	pterm.Info.Printfln("Execution plan: %s", child.ExecutionPlanFile)

	return nil
}

func runRevisionList(cmd *cobra.Command, args []string) error {
	executionID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := tracker.NewStore(database)
	revisions, err := store.ListRevisionsForExecution(cmd.Context(), executionID)
	if err != nil {
		return err
	}

	if len(revisions) == 0 {
		pterm.Info.Println("No revisions recorded")
		return nil
	}

	rows := pterm.TableData{{"Revision", "Status", "Created", "Requested"}}
	for _, rev := range revisions {
		rows = append(rows, []string{
			rev.RevisionID,
			string(rev.Status),
			rev.CreatedAt.Format("2006-01-02 15:04:05"),
			rev.ChangesRequested,
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
