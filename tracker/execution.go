// Package tracker models breakdown executions and their revisions, and
// persists them in SQLite.
//
// An Execution is one recorded attempt at producing or revising a breakdown
// plan for an epic. Executions form a forest: applying a revision against an
// execution creates a child execution whose parent_execution_id points back
// at the original. Chains can be extended indefinitely by repeated revision,
// so the parent link is a plain foreign key traversed one hop at a time,
// never a nested object graph.
package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/sukhchana/jira-tool/errors"
)

// ExecutionStatus represents the current state of an execution
type ExecutionStatus string

const (
	// ExecutionInProgress is the only non-terminal status; every execution
	// starts here.
	ExecutionInProgress ExecutionStatus = "IN_PROGRESS"
	// ExecutionActive marks a run whose plan was produced successfully and is
	// now the live plan for its epic.
	ExecutionActive ExecutionStatus = "ACTIVE"
	// ExecutionFailed marks a run that failed in an upstream collaborator.
	ExecutionFailed ExecutionStatus = "FAILED"
	// ExecutionFatal marks a run that failed while persisting its own state.
	// Kept distinct from FAILED for observability; recovery behavior is the
	// same (neither is retried or revised).
	ExecutionFatal ExecutionStatus = "FATAL_ERROR"
)

// IsValidExecutionStatus returns true if the status string is a valid ExecutionStatus
func IsValidExecutionStatus(s string) bool {
	switch ExecutionStatus(s) {
	case ExecutionInProgress, ExecutionActive, ExecutionFailed, ExecutionFatal:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status writes are permitted.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionInProgress
}

// PlanFileRefs carries the opaque references to externally stored plan
// documents. The tracker never reads their contents.
type PlanFileRefs struct {
	ExecutionPlanFile string `json:"execution_plan_file"`
	ProposedPlanFile  string `json:"proposed_plan_file"`
}

// Validate checks that both references are present.
func (r PlanFileRefs) Validate() error {
	if r.ExecutionPlanFile == "" || r.ProposedPlanFile == "" {
		return errors.NewValidation("both execution_plan_file and proposed_plan_file are required")
	}
	return nil
}

// Execution is one recorded attempt at producing/revising a breakdown plan
// for an epic.
type Execution struct {
	ExecutionID       string          `json:"execution_id"`
	EpicKey           string          `json:"epic_key"`
	ExecutionPlanFile string          `json:"execution_plan_file"`
	ProposedPlanFile  string          `json:"proposed_plan_file"`
	Status            ExecutionStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	// ParentExecutionID is set when this execution was produced by applying a
	// revision against an earlier execution. Empty for root executions. A
	// parent is always created strictly before its child, so chains are never
	// cyclic.
	ParentExecutionID string `json:"parent_execution_id,omitempty"`
}

// NewExecution creates a root execution record for a fresh breakdown run.
// The record starts IN_PROGRESS and is not yet persisted.
func NewExecution(epicKey string, refs PlanFileRefs) (*Execution, error) {
	if epicKey == "" {
		return nil, errors.NewValidation("epic key cannot be empty")
	}
	if err := refs.Validate(); err != nil {
		return nil, err
	}

	return &Execution{
		ExecutionID:       uuid.NewString(),
		EpicKey:           epicKey,
		ExecutionPlanFile: refs.ExecutionPlanFile,
		ProposedPlanFile:  refs.ProposedPlanFile,
		Status:            ExecutionInProgress,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// NewChildExecution creates an execution record parented on an earlier
// execution, inheriting its epic key. Used when a revision is applied.
func NewChildExecution(parent *Execution, refs PlanFileRefs) (*Execution, error) {
	exec, err := NewExecution(parent.EpicKey, refs)
	if err != nil {
		return nil, err
	}
	exec.ParentExecutionID = parent.ExecutionID
	return exec, nil
}
