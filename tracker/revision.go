package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/sukhchana/jira-tool/errors"
)

// RevisionStatus represents the current state of a revision
type RevisionStatus string

const (
	// RevisionPending awaits the human confirmation decision.
	RevisionPending RevisionStatus = "PENDING"
	// RevisionAccepted means the interpretation was confirmed and the
	// revision may be applied.
	RevisionAccepted RevisionStatus = "ACCEPTED"
	// RevisionRejected is terminal: a rejected revision can never be applied
	// or re-opened; submit a new revision request instead.
	RevisionRejected RevisionStatus = "REJECTED"
	// RevisionApplied is terminal: the revision produced a child execution.
	RevisionApplied RevisionStatus = "APPLIED"
)

// IsValidRevisionStatus returns true if the status string is a valid RevisionStatus
func IsValidRevisionStatus(s string) bool {
	switch RevisionStatus(s) {
	case RevisionPending, RevisionAccepted, RevisionRejected, RevisionApplied:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status writes are permitted.
func (s RevisionStatus) Terminal() bool {
	return s == RevisionRejected || s == RevisionApplied
}

// Revision is one recorded human-initiated change request against an
// execution. It is mutated exactly twice in its life: once on confirm
// (status, accepted, accepted_at) and once on apply (status, both plan file
// references), and is immutable afterward.
type Revision struct {
	RevisionID   string `json:"revision_id"`
	ExecutionID  string `json:"execution_id"`
	// Plan file references stay empty until the revision is applied.
	ProposedPlanFile  string         `json:"proposed_plan_file,omitempty"`
	ExecutionPlanFile string         `json:"execution_plan_file,omitempty"`
	Status            RevisionStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	// ChangesRequested is the human's free-text input, immutable once set.
	ChangesRequested string `json:"changes_requested"`
	// ChangesInterpreted is the LLM's structured reading of the request. It
	// is an opaque blob with no machine-checkable schema; the tracker stores
	// and returns it without parsing.
	ChangesInterpreted string `json:"changes_interpreted"`
	// Accepted is nil while PENDING and set exactly once, on confirm.
	Accepted   *bool      `json:"accepted,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// NewRevision creates a PENDING revision record targeting an execution. The
// record is not yet persisted.
func NewRevision(executionID, changesRequested, changesInterpreted string) (*Revision, error) {
	if executionID == "" {
		return nil, errors.NewValidation("execution id cannot be empty")
	}
	if changesRequested == "" {
		return nil, errors.NewValidation("changes_requested cannot be empty")
	}
	if changesInterpreted == "" {
		return nil, errors.NewValidation("changes_interpreted cannot be empty")
	}

	return &Revision{
		RevisionID:         uuid.NewString(),
		ExecutionID:        executionID,
		Status:             RevisionPending,
		CreatedAt:          time.Now().UTC(),
		ChangesRequested:   changesRequested,
		ChangesInterpreted: changesInterpreted,
	}, nil
}

// Decided reports whether the confirmation decision has been recorded.
// Invariant: accepted is non-nil iff status is ACCEPTED, REJECTED, or
// APPLIED, and accepted_at is non-nil iff accepted is.
func (r *Revision) Decided() bool {
	return r.Accepted != nil
}
