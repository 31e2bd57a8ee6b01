package tracker

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sukhchana/jira-tool/errors"
)

// Store handles persistence of executions and revisions.
//
// All writes are durable before the call returns and no retries happen here;
// retry policy belongs to the caller. The store holds no in-process cache:
// every operation reads current state from the database, so concurrent
// callers on separate connections always see each other's committed writes.
type Store struct {
	db *sql.DB
}

// NewStore creates a new execution tracker store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const executionColumns = `execution_id, epic_key, execution_plan_file, proposed_plan_file, status, created_at, parent_execution_id`

const revisionColumns = `revision_id, execution_id, proposed_plan_file, execution_plan_file, status, created_at, changes_requested, changes_interpreted, accepted, accepted_at`

// CreateExecution inserts a new execution record.
// Returns ErrDuplicateKey if the execution id already exists, and
// ErrNotFound if the parent execution it references is absent.
func (s *Store) CreateExecution(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	parent := sql.NullString{String: exec.ParentExecutionID, Valid: exec.ParentExecutionID != ""}

	_, err := s.db.ExecContext(ctx, query,
		exec.ExecutionID,
		exec.EpicKey,
		exec.ExecutionPlanFile,
		exec.ProposedPlanFile,
		exec.Status,
		exec.CreatedAt,
		parent,
	)
	if err != nil {
		return mapConstraintError(err, "execution", exec.ExecutionID)
	}

	return nil
}

// GetExecution retrieves an execution by id, or ErrNotFound.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE execution_id = ?`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}

	return exec, nil
}

// UpdateExecutionStatus unconditionally sets an execution's status.
// Idempotent when the new status equals the current one. Returns ErrNotFound
// if the execution is missing. Callers that need transition checking must use
// TransitionExecutionStatus instead.
func (s *Store) UpdateExecutionStatus(ctx context.Context, id string, status ExecutionStatus) error {
	if !IsValidExecutionStatus(string(status)) {
		return errors.NewValidation("unknown execution status: %s", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ? WHERE execution_id = ?`, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update execution status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFound("execution not found: %s", id)
	}

	return nil
}

// TransitionExecutionStatus moves an execution from one status to another
// with compare-and-swap semantics: the check and the write happen in a single
// UPDATE, so of two racing callers exactly one wins. The loser (and any
// replay) gets ErrInvalidTransition naming the recorded status. A plain
// read-then-write here would be a race, not a stylistic choice.
func (s *Store) TransitionExecutionStatus(ctx context.Context, id string, from, to ExecutionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ? WHERE execution_id = ? AND status = ?`, to, id, from)
	if err != nil {
		return errors.Wrap(err, "failed to transition execution status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		// Distinguish a missing record from a lost race / replay
		exec, getErr := s.GetExecution(ctx, id)
		if getErr != nil {
			return getErr
		}
		return errors.NewInvalidTransition(
			"execution %s is %s, cannot transition %s -> %s", id, exec.Status, from, to)
	}

	return nil
}

// CreateRevision inserts a new revision record.
// Returns ErrDuplicateKey on id collision and ErrNotFound if the target
// execution is absent.
func (s *Store) CreateRevision(ctx context.Context, rev *Revision) error {
	query := `
		INSERT INTO revisions (` + revisionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	accepted := sql.NullBool{}
	if rev.Accepted != nil {
		accepted = sql.NullBool{Bool: *rev.Accepted, Valid: true}
	}
	acceptedAt := sql.NullTime{}
	if rev.AcceptedAt != nil {
		acceptedAt = sql.NullTime{Time: *rev.AcceptedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rev.RevisionID,
		rev.ExecutionID,
		rev.ProposedPlanFile,
		rev.ExecutionPlanFile,
		rev.Status,
		rev.CreatedAt,
		rev.ChangesRequested,
		rev.ChangesInterpreted,
		accepted,
		acceptedAt,
	)
	if err != nil {
		return mapConstraintError(err, "revision", rev.RevisionID)
	}

	return nil
}

// GetRevision retrieves a revision by id, or ErrNotFound.
func (s *Store) GetRevision(ctx context.Context, id string) (*Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM revisions WHERE revision_id = ?`

	rev, err := scanRevision(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("revision not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get revision")
	}

	return rev, nil
}

// revisionMutableColumns are the only revision fields that may change after
// creation: confirm writes status/accepted/accepted_at, apply writes status
// and the plan file references.
var revisionMutableColumns = map[string]bool{
	"status":              true,
	"accepted":            true,
	"accepted_at":         true,
	"proposed_plan_file":  true,
	"execution_plan_file": true,
}

// revisionImmutableColumns exist in the schema but may never be rewritten.
var revisionImmutableColumns = map[string]bool{
	"revision_id":         true,
	"execution_id":        true,
	"created_at":          true,
	"changes_requested":   true,
	"changes_interpreted": true,
}

// UpdateRevision applies a partial update restricted to the mutable revision
// fields. Attempting to rewrite an immutable field (changes_requested,
// changes_interpreted, execution_id, ...) fails with ErrInvalidTransition;
// a field that is not a revision column at all fails with ErrValidation.
func (s *Store) UpdateRevision(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return errors.NewValidation("no fields to update for revision %s", id)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if revisionImmutableColumns[name] {
			return errors.NewInvalidTransition(
				"revision field %q is immutable after creation", name)
		}
		if !revisionMutableColumns[name] {
			return errors.NewValidation("unknown revision field: %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if v, ok := fields["status"]; ok {
		status, isString := v.(string)
		if !isString {
			if s, isStatus := v.(RevisionStatus); isStatus {
				status, isString = string(s), true
			}
		}
		if !isString || !IsValidRevisionStatus(status) {
			return errors.NewValidation("unknown revision status: %v", v)
		}
	}

	setClauses := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)+1)
	for _, name := range names {
		setClauses = append(setClauses, name+" = ?")
		args = append(args, fields[name])
	}
	args = append(args, id)

	query := `UPDATE revisions SET ` + strings.Join(setClauses, ", ") + ` WHERE revision_id = ?`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update revision")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFound("revision not found: %s", id)
	}

	return nil
}

// ConfirmRevision records the human decision on a PENDING revision with
// compare-and-swap semantics. Of two racing confirmations exactly one
// succeeds; the loser gets ErrInvalidTransition reporting the status the
// winner wrote. Returns the post-image revision on success.
func (s *Store) ConfirmRevision(ctx context.Context, id string, accept bool, at time.Time) (*Revision, error) {
	status := RevisionRejected
	if accept {
		status = RevisionAccepted
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE revisions
		SET status = ?, accepted = ?, accepted_at = ?
		WHERE revision_id = ? AND status = ?`,
		status, accept, at, id, RevisionPending)
	if err != nil {
		return nil, errors.Wrap(err, "failed to confirm revision")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		rev, getErr := s.GetRevision(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.NewInvalidTransition(
			"revision %s already %s, cannot confirm", id, rev.Status)
	}

	return s.GetRevision(ctx, id)
}

// ApplyRevision atomically marks an ACCEPTED revision as APPLIED and inserts
// the child execution it produced. Both writes happen in one transaction: a
// concurrent reader never observes an APPLIED revision without its child
// execution, nor the child while the revision still reads ACCEPTED.
// Fails with ErrInvalidTransition (and inserts nothing) unless the revision
// is currently ACCEPTED.
func (s *Store) ApplyRevision(ctx context.Context, revisionID string, child *Execution) error {
	refs := PlanFileRefs{
		ExecutionPlanFile: child.ExecutionPlanFile,
		ProposedPlanFile:  child.ProposedPlanFile,
	}
	if err := refs.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin apply transaction")
	}
	defer tx.Rollback()

	// CAS on the revision status inside the transaction
	result, err := tx.ExecContext(ctx, `
		UPDATE revisions
		SET status = ?, proposed_plan_file = ?, execution_plan_file = ?
		WHERE revision_id = ? AND status = ?`,
		RevisionApplied, refs.ProposedPlanFile, refs.ExecutionPlanFile, revisionID, RevisionAccepted)
	if err != nil {
		return errors.Wrap(err, "failed to mark revision applied")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		rev, getErr := s.GetRevision(ctx, revisionID)
		if getErr != nil {
			return getErr
		}
		return errors.NewInvalidTransition(
			"revision %s is %s, cannot apply (only ACCEPTED revisions may be applied)",
			revisionID, rev.Status)
	}

	parent := sql.NullString{String: child.ParentExecutionID, Valid: child.ParentExecutionID != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		child.ExecutionID,
		child.EpicKey,
		child.ExecutionPlanFile,
		child.ProposedPlanFile,
		child.Status,
		child.CreatedAt,
		parent,
	)
	if err != nil {
		return mapConstraintError(err, "execution", child.ExecutionID)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit apply transaction")
	}

	return nil
}

// ListRevisionsForExecution returns all revisions targeting an execution in
// insertion order.
func (s *Store) ListRevisionsForExecution(ctx context.Context, executionID string) ([]*Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM revisions WHERE execution_id = ? ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list revisions")
	}
	defer rows.Close()

	var revisions []*Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan revision")
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating revisions")
	}

	return revisions, nil
}

// ListExecutionsForEpic returns all executions recorded for an epic, newest
// first.
func (s *Store) ListExecutionsForEpic(ctx context.Context, epicKey string) ([]*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE epic_key = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, epicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}

	return executions, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*Execution, error) {
	var exec Execution
	var parent sql.NullString

	err := row.Scan(
		&exec.ExecutionID,
		&exec.EpicKey,
		&exec.ExecutionPlanFile,
		&exec.ProposedPlanFile,
		&exec.Status,
		&exec.CreatedAt,
		&parent,
	)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		exec.ParentExecutionID = parent.String
	}

	return &exec, nil
}

func scanRevision(row scanner) (*Revision, error) {
	var rev Revision
	var accepted sql.NullBool
	var acceptedAt sql.NullTime

	err := row.Scan(
		&rev.RevisionID,
		&rev.ExecutionID,
		&rev.ProposedPlanFile,
		&rev.ExecutionPlanFile,
		&rev.Status,
		&rev.CreatedAt,
		&rev.ChangesRequested,
		&rev.ChangesInterpreted,
		&accepted,
		&acceptedAt,
	)
	if err != nil {
		return nil, err
	}

	if accepted.Valid {
		rev.Accepted = &accepted.Bool
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		rev.AcceptedAt = &t
	}

	return &rev, nil
}

// mapConstraintError translates sqlite constraint violations into the domain
// taxonomy: primary key/unique collisions become ErrDuplicateKey, foreign key
// violations become ErrNotFound for the referenced execution.
func mapConstraintError(err error, kind, id string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return errors.NewDuplicateKey("%s already exists: %s", kind, id)
		case sqlite3.ErrConstraintForeignKey:
			return errors.NewNotFound("%s %s references a missing execution", kind, id)
		}
	}
	return errors.Wrapf(err, "failed to create %s", kind)
}
