package tracker

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/errors"
)

// Tracker records breakdown executions and drives their status lifecycle.
// The lifecycle is strict: IN_PROGRESS is the only non-terminal status, and
// the Mark* methods refuse to move an execution that has already settled.
type Tracker struct {
	store  *Store
	logger *zap.SugaredLogger
}

// NewTracker creates an execution tracker backed by the given database.
func NewTracker(db *sql.DB, logger *zap.SugaredLogger) *Tracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tracker{
		store:  NewStore(db),
		logger: logger,
	}
}

// Store exposes the underlying storage adapter for callers that need direct
// revision persistence (the revision workflow).
func (t *Tracker) Store() *Store {
	return t.store
}

// StartExecution records a new root execution for an epic in IN_PROGRESS.
func (t *Tracker) StartExecution(ctx context.Context, epicKey string, refs PlanFileRefs) (*Execution, error) {
	exec, err := NewExecution(epicKey, refs)
	if err != nil {
		return nil, err
	}

	if err := t.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	t.logger.Infow("Execution started",
		"execution_id", exec.ExecutionID,
		"epic_key", epicKey)

	return exec, nil
}

// StartRevisionExecution records a new execution parented on an existing one,
// inheriting its epic key. Returns ErrNotFound if the parent is absent.
//
// Note: this records the child directly. When the child is the product of an
// applied revision, use Store().ApplyRevision instead so the revision status
// flip and the insert share a transaction.
func (t *Tracker) StartRevisionExecution(ctx context.Context, parentExecutionID string, refs PlanFileRefs) (*Execution, error) {
	parent, err := t.store.GetExecution(ctx, parentExecutionID)
	if err != nil {
		return nil, err
	}

	exec, err := NewChildExecution(parent, refs)
	if err != nil {
		return nil, err
	}

	if err := t.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	t.logger.Infow("Revision execution started",
		"execution_id", exec.ExecutionID,
		"parent_execution_id", parentExecutionID,
		"epic_key", exec.EpicKey)

	return exec, nil
}

// MarkActive transitions an IN_PROGRESS execution to ACTIVE.
func (t *Tracker) MarkActive(ctx context.Context, executionID string) error {
	return t.settle(ctx, executionID, ExecutionActive)
}

// MarkFailed transitions an IN_PROGRESS execution to FAILED. Used when an
// upstream collaborator (LLM, ticket API) failed during the run.
func (t *Tracker) MarkFailed(ctx context.Context, executionID string) error {
	return t.settle(ctx, executionID, ExecutionFailed)
}

// MarkFatal transitions an IN_PROGRESS execution to FATAL_ERROR. Used when
// the run failed while persisting its own state.
func (t *Tracker) MarkFatal(ctx context.Context, executionID string) error {
	return t.settle(ctx, executionID, ExecutionFatal)
}

func (t *Tracker) settle(ctx context.Context, executionID string, to ExecutionStatus) error {
	if !to.Terminal() {
		return errors.NewValidation("cannot settle execution into non-terminal status %s", to)
	}

	if err := t.store.TransitionExecutionStatus(ctx, executionID, ExecutionInProgress, to); err != nil {
		return err
	}

	t.logger.Infow("Execution settled",
		"execution_id", executionID,
		"status", to)

	return nil
}

// GetExecution retrieves an execution by id.
func (t *Tracker) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	return t.store.GetExecution(ctx, executionID)
}

// ExecutionChain walks the parent links from an execution back to its root,
// returning the chain ordered root first. Each hop is a separate read; the
// chain is acyclic because a parent always exists before its child.
func (t *Tracker) ExecutionChain(ctx context.Context, executionID string) ([]*Execution, error) {
	var chain []*Execution

	id := executionID
	for id != "" {
		exec, err := t.store.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, exec)
		id = exec.ParentExecutionID
	}

	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}
