// Package breakdown orchestrates a full breakdown run: fetch the epic, draft
// plan documents through the LLM, persist them, and record the execution.
package breakdown

import (
	"context"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/ai/interpreter"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/jira"
	"github.com/sukhchana/jira-tool/planstore"
	"github.com/sukhchana/jira-tool/tracker"
)

// TicketClient is the slice of the Jira client breakdown runs need.
type TicketClient interface {
	GetTicket(ctx context.Context, key string) (*jira.Ticket, error)
}

// Manager runs breakdowns end to end.
type Manager struct {
	tickets TicketClient
	interp  interpreter.Interpreter
	plans   *planstore.Store
	tracker *tracker.Tracker
	logger  *zap.SugaredLogger
}

// NewManager creates a breakdown manager.
func NewManager(tickets TicketClient, interp interpreter.Interpreter, plans *planstore.Store, trk *tracker.Tracker, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		tickets: tickets,
		interp:  interp,
		plans:   plans,
		tracker: trk,
		logger:  logger,
	}
}

// Run executes a breakdown for an epic. The execution record is created
// IN_PROGRESS up front so every attempt leaves a trace, then settled:
// ACTIVE on success, FAILED when a collaborator (Jira, LLM) failed, and
// FATAL_ERROR when the run could not persist its own results. Returns the
// settled execution record.
func (m *Manager) Run(ctx context.Context, epicKey string) (*tracker.Execution, error) {
	if epicKey == "" {
		return nil, errors.NewValidation("epic key cannot be empty")
	}

	refs := tracker.PlanFileRefs{
		ExecutionPlanFile: planstore.NewExecutionPlanRef(epicKey),
		ProposedPlanFile:  planstore.NewProposedPlanRef(epicKey),
	}

	exec, err := m.tracker.StartExecution(ctx, epicKey, refs)
	if err != nil {
		return nil, err
	}

	m.logger.Infow("Breakdown run started",
		"execution_id", exec.ExecutionID,
		"epic_key", epicKey)

	ticket, err := m.tickets.GetTicket(ctx, epicKey)
	if err != nil {
		return m.settleFailure(ctx, exec, tracker.ExecutionFailed, "failed to fetch epic", err)
	}

	draft, err := m.interp.DraftPlan(ctx, ticket.Key, ticket.Summary, ticket.Description)
	if err != nil {
		return m.settleFailure(ctx, exec, tracker.ExecutionFailed, "failed to draft plan", err)
	}

	if err := m.plans.Write(ctx, refs.ProposedPlanFile, []byte(draft.ProposedPlan)); err != nil {
		return m.settleFailure(ctx, exec, tracker.ExecutionFatal, "failed to persist proposed plan", err)
	}
	if err := m.plans.Write(ctx, refs.ExecutionPlanFile, []byte(draft.ExecutionPlan)); err != nil {
		return m.settleFailure(ctx, exec, tracker.ExecutionFatal, "failed to persist execution plan", err)
	}

	if err := m.tracker.MarkActive(ctx, exec.ExecutionID); err != nil {
		return nil, err
	}
	exec.Status = tracker.ExecutionActive

	m.logger.Infow("Breakdown run completed",
		"execution_id", exec.ExecutionID,
		"epic_key", epicKey,
		"execution_plan_file", refs.ExecutionPlanFile,
		"proposed_plan_file", refs.ProposedPlanFile)

	return exec, nil
}

// settleFailure records the terminal status for a failed run and returns the
// original cause. A failed settle is logged but never masks the run failure.
func (m *Manager) settleFailure(ctx context.Context, exec *tracker.Execution, status tracker.ExecutionStatus, msg string, cause error) (*tracker.Execution, error) {
	var settleErr error
	if status == tracker.ExecutionFatal {
		settleErr = m.tracker.MarkFatal(ctx, exec.ExecutionID)
	} else {
		settleErr = m.tracker.MarkFailed(ctx, exec.ExecutionID)
	}
	if settleErr != nil {
		m.logger.Errorw("Failed to settle execution after run failure",
			"execution_id", exec.ExecutionID,
			"status", status,
			"error", settleErr)
	} else {
		exec.Status = status
	}

	m.logger.Warnw("Breakdown run failed",
		"execution_id", exec.ExecutionID,
		"epic_key", exec.EpicKey,
		"status", status,
		"error", cause)

	return exec, errors.Wrap(cause, msg)
}
