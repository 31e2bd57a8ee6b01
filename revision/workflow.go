// Package revision implements the human-in-the-loop revision protocol:
// request an interpretation, confirm or reject it, then apply the accepted
// revision to produce a child execution.
package revision

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/ai/interpreter"
	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/planstore"
	"github.com/sukhchana/jira-tool/tracker"
)

// Workflow drives revisions through request, confirm, and apply.
type Workflow struct {
	store  *tracker.Store
	interp interpreter.Interpreter
	plans  *planstore.Store
	logger *zap.SugaredLogger
}

// NewWorkflow creates the revision workflow.
func NewWorkflow(store *tracker.Store, interp interpreter.Interpreter, plans *planstore.Store, logger *zap.SugaredLogger) *Workflow {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Workflow{
		store:  store,
		interp: interp,
		plans:  plans,
		logger: logger,
	}
}

// RequestRevision interprets a free-text change request against an ACTIVE
// execution and persists the interpretation as a PENDING revision.
//
// The LLM call is bounded by ctx; on provider failure, timeout, or empty
// interpretation nothing is persisted, so a failed request leaves no trace
// and can simply be retried by the caller.
func (w *Workflow) RequestRevision(ctx context.Context, executionID, changesRequested string) (*tracker.Revision, error) {
	if changesRequested == "" {
		return nil, errors.NewValidation("changes_requested cannot be empty")
	}

	exec, err := w.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != tracker.ExecutionActive {
		return nil, errors.NewInvalidState(
			"execution %s is %s, revisions require an ACTIVE execution", executionID, exec.Status)
	}

	planContext := w.readPlanContext(ctx, exec)

	interpreted, err := w.interp.Interpret(ctx, changesRequested, planContext)
	if err != nil {
		return nil, err
	}

	rev, err := tracker.NewRevision(executionID, changesRequested, interpreted)
	if err != nil {
		return nil, err
	}
	if err := w.store.CreateRevision(ctx, rev); err != nil {
		return nil, err
	}

	w.logger.Infow("Revision requested",
		"revision_id", rev.RevisionID,
		"execution_id", executionID)

	return rev, nil
}

// ConfirmRevision records the human decision on a PENDING revision. Exactly
// one confirmation wins; the loser of a race and any replay get
// ErrInvalidTransition naming the recorded status.
func (w *Workflow) ConfirmRevision(ctx context.Context, revisionID string, accept bool) (*tracker.Revision, error) {
	rev, err := w.store.ConfirmRevision(ctx, revisionID, accept, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	w.logger.Infow("Revision confirmed",
		"revision_id", revisionID,
		"accepted", accept,
		"status", rev.Status)

	return rev, nil
}

// ApplyRevision turns an ACCEPTED revision into a child execution carrying
// the revised plan references. The revision status flip and the child insert
// commit atomically; any refusal (wrong status, lost race) creates no
// execution row. Returns the child execution.
func (w *Workflow) ApplyRevision(ctx context.Context, revisionID string, refs tracker.PlanFileRefs) (*tracker.Execution, error) {
	if err := refs.Validate(); err != nil {
		return nil, err
	}

	rev, err := w.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}

	parent, err := w.store.GetExecution(ctx, rev.ExecutionID)
	if err != nil {
		return nil, err
	}

	child, err := tracker.NewChildExecution(parent, refs)
	if err != nil {
		return nil, err
	}

	if err := w.store.ApplyRevision(ctx, revisionID, child); err != nil {
		return nil, err
	}

	w.logger.Infow("Revision applied",
		"revision_id", revisionID,
		"parent_execution_id", parent.ExecutionID,
		"child_execution_id", child.ExecutionID)

	return child, nil
}

// readPlanContext fetches the current execution plan document so the
// interpreter can read the change request in context. A missing document
// degrades to an empty context rather than blocking the request.
func (w *Workflow) readPlanContext(ctx context.Context, exec *tracker.Execution) string {
	if w.plans == nil || exec.ExecutionPlanFile == "" {
		return ""
	}

	blob, err := w.plans.Read(ctx, exec.ExecutionPlanFile)
	if err != nil {
		w.logger.Warnw("Failed to read plan context",
			"execution_id", exec.ExecutionID,
			"ref", exec.ExecutionPlanFile,
			"error", err)
		return ""
	}
	return string(blob)
}
