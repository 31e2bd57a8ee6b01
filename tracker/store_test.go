package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sukhchana/jira-tool/errors"
	jttest "github.com/sukhchana/jira-tool/internal/testing"
)

func testRefs() PlanFileRefs {
	return PlanFileRefs{
		ExecutionPlanFile: "EXECUTION_PROJ-42_20260830.md",
		ProposedPlanFile:  "PROPOSED_PROJ-42_20260830.yaml",
	}
}

func mustExecution(t *testing.T, epicKey string) *Execution {
	t.Helper()
	exec, err := NewExecution(epicKey, testRefs())
	if err != nil {
		t.Fatalf("NewExecution: %v", err)
	}
	return exec
}

func TestStoreCreateAndGetExecution(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := store.GetExecution(ctx, exec.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}

	if got.ExecutionID != exec.ExecutionID {
		t.Errorf("execution_id = %q, want %q", got.ExecutionID, exec.ExecutionID)
	}
	if got.EpicKey != "PROJ-42" {
		t.Errorf("epic_key = %q, want PROJ-42", got.EpicKey)
	}
	if got.Status != ExecutionInProgress {
		t.Errorf("status = %q, want IN_PROGRESS", got.Status)
	}
	if got.ExecutionPlanFile != exec.ExecutionPlanFile || got.ProposedPlanFile != exec.ProposedPlanFile {
		t.Errorf("plan refs = (%q, %q), want (%q, %q)",
			got.ExecutionPlanFile, got.ProposedPlanFile,
			exec.ExecutionPlanFile, exec.ProposedPlanFile)
	}
	if got.ParentExecutionID != "" {
		t.Errorf("root execution has parent %q", got.ParentExecutionID)
	}
	if !got.CreatedAt.Equal(exec.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, exec.CreatedAt)
	}
}

func TestStoreGetExecutionNotFound(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.GetExecution(context.Background(), "no-such-execution")
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCreateExecutionDuplicateKey(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	err := store.CreateExecution(ctx, exec)
	if !errors.IsDuplicateKey(err) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestStoreCreateExecutionMissingParent(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)

	exec := mustExecution(t, "PROJ-42")
	exec.ParentExecutionID = "no-such-parent"

	err := store.CreateExecution(context.Background(), exec)
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestStoreUpdateExecutionStatus(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if err := store.UpdateExecutionStatus(ctx, exec.ExecutionID, ExecutionActive); err != nil {
		t.Fatalf("UpdateExecutionStatus: %v", err)
	}

	// Repeating the same write is idempotent
	if err := store.UpdateExecutionStatus(ctx, exec.ExecutionID, ExecutionActive); err != nil {
		t.Fatalf("repeated UpdateExecutionStatus: %v", err)
	}

	got, err := store.GetExecution(ctx, exec.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != ExecutionActive {
		t.Errorf("status = %q, want ACTIVE", got.Status)
	}

	if err := store.UpdateExecutionStatus(ctx, "no-such-execution", ExecutionActive); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateExecutionStatus(ctx, exec.ExecutionID, "BOGUS"); !errors.IsValidation(err) {
		t.Errorf("expected ErrValidation for bogus status, got %v", err)
	}
}

func TestStoreTransitionExecutionStatus(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if err := store.TransitionExecutionStatus(ctx, exec.ExecutionID, ExecutionInProgress, ExecutionActive); err != nil {
		t.Fatalf("TransitionExecutionStatus: %v", err)
	}

	// Replaying the same transition must fail now that the guard no longer holds
	err := store.TransitionExecutionStatus(ctx, exec.ExecutionID, ExecutionInProgress, ExecutionFailed)
	if !errors.IsInvalidTransition(err) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	got, _ := store.GetExecution(ctx, exec.ExecutionID)
	if got.Status != ExecutionActive {
		t.Errorf("losing transition mutated status to %q", got.Status)
	}

	err = store.TransitionExecutionStatus(ctx, "no-such-execution", ExecutionInProgress, ExecutionActive)
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCreateAndGetRevision(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	rev, err := NewRevision(exec.ExecutionID, "split story 3 into two", `{"action":"split","target":"story-3"}`)
	if err != nil {
		t.Fatalf("NewRevision: %v", err)
	}
	if err := store.CreateRevision(ctx, rev); err != nil {
		t.Fatalf("CreateRevision: %v", err)
	}

	got, err := store.GetRevision(ctx, rev.RevisionID)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}

	if got.Status != RevisionPending {
		t.Errorf("status = %q, want PENDING", got.Status)
	}
	if got.ChangesRequested != rev.ChangesRequested {
		t.Errorf("changes_requested = %q, want %q", got.ChangesRequested, rev.ChangesRequested)
	}
	if got.ChangesInterpreted != rev.ChangesInterpreted {
		t.Errorf("changes_interpreted = %q, want %q", got.ChangesInterpreted, rev.ChangesInterpreted)
	}
	if got.Accepted != nil || got.AcceptedAt != nil {
		t.Error("pending revision must have nil accepted/accepted_at")
	}
	if got.ProposedPlanFile != "" || got.ExecutionPlanFile != "" {
		t.Error("plan refs must be empty before apply")
	}
}

func TestStoreCreateRevisionMissingExecution(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)

	rev, err := NewRevision("no-such-execution", "change it", "interpreted")
	if err != nil {
		t.Fatalf("NewRevision: %v", err)
	}

	if err := store.CreateRevision(context.Background(), rev); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for missing execution, got %v", err)
	}
}

func TestStoreConfirmRevisionAccept(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rev := seedPendingRevision(t, store)

	at := time.Now().UTC()
	got, err := store.ConfirmRevision(ctx, rev.RevisionID, true, at)
	if err != nil {
		t.Fatalf("ConfirmRevision: %v", err)
	}

	if got.Status != RevisionAccepted {
		t.Errorf("status = %q, want ACCEPTED", got.Status)
	}
	if got.Accepted == nil || !*got.Accepted {
		t.Error("accepted should be true")
	}
	if got.AcceptedAt == nil || !got.AcceptedAt.Equal(at) {
		t.Errorf("accepted_at = %v, want %v", got.AcceptedAt, at)
	}
}

func TestStoreConfirmRevisionReject(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rev := seedPendingRevision(t, store)

	got, err := store.ConfirmRevision(ctx, rev.RevisionID, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("ConfirmRevision: %v", err)
	}
	if got.Status != RevisionRejected {
		t.Errorf("status = %q, want REJECTED", got.Status)
	}
	if got.Accepted == nil || *got.Accepted {
		t.Error("accepted should be false")
	}
}

func TestStoreConfirmRevisionReplay(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rev := seedPendingRevision(t, store)

	if _, err := store.ConfirmRevision(ctx, rev.RevisionID, true, time.Now().UTC()); err != nil {
		t.Fatalf("first ConfirmRevision: %v", err)
	}

	_, err := store.ConfirmRevision(ctx, rev.RevisionID, false, time.Now().UTC())
	if !errors.IsInvalidTransition(err) {
		t.Errorf("expected ErrInvalidTransition on replay, got %v", err)
	}

	// The replay must not have clobbered the winner's decision
	got, _ := store.GetRevision(ctx, rev.RevisionID)
	if got.Status != RevisionAccepted {
		t.Errorf("replay mutated status to %q", got.Status)
	}
	if got.Accepted == nil || !*got.Accepted {
		t.Error("replay mutated accepted flag")
	}
}

func TestStoreConfirmRevisionNotFound(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.ConfirmRevision(context.Background(), "no-such-revision", true, time.Now().UTC())
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestStoreConfirmRevisionRace races accept and reject confirmations against
// one PENDING revision: exactly one caller may win, and the recorded decision
// must match the winner.
func TestStoreConfirmRevisionRace(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rev := seedPendingRevision(t, store)

	const racers = 8
	results := make([]error, racers)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			_, err := store.ConfirmRevision(ctx, rev.RevisionID, i%2 == 0, time.Now().UTC())
			results[i] = err
		}(i)
	}
	start.Done()
	wg.Wait()

	winners := 0
	var winnerAccepted bool
	for i, err := range results {
		switch {
		case err == nil:
			winners++
			winnerAccepted = i%2 == 0
		case errors.IsInvalidTransition(err):
			// lost the race
		default:
			t.Errorf("racer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("exactly one confirmation must win, got %d", winners)
	}

	got, err := store.GetRevision(ctx, rev.RevisionID)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}
	wantStatus := RevisionRejected
	if winnerAccepted {
		wantStatus = RevisionAccepted
	}
	if got.Status != wantStatus {
		t.Errorf("status = %q, want %q (winner's decision)", got.Status, wantStatus)
	}
}

func TestStoreUpdateRevisionFieldRules(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rev := seedPendingRevision(t, store)

	tests := []struct {
		name   string
		fields map[string]interface{}
		check  func(error) bool
	}{
		{"immutable changes_requested", map[string]interface{}{"changes_requested": "rewrite"}, errors.IsInvalidTransition},
		{"immutable changes_interpreted", map[string]interface{}{"changes_interpreted": "{}"}, errors.IsInvalidTransition},
		{"immutable execution_id", map[string]interface{}{"execution_id": "other"}, errors.IsInvalidTransition},
		{"unknown field", map[string]interface{}{"priority": "high"}, errors.IsValidation},
		{"bogus status value", map[string]interface{}{"status": "DONE"}, errors.IsValidation},
		{"empty update", map[string]interface{}{}, errors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpdateRevision(ctx, rev.RevisionID, tt.fields)
			if !tt.check(err) {
				t.Errorf("UpdateRevision(%v) error = %v", tt.fields, err)
			}
		})
	}

	// A mutable field goes through
	if err := store.UpdateRevision(ctx, rev.RevisionID, map[string]interface{}{
		"proposed_plan_file": "PROPOSED_PROJ-42_v2.yaml",
	}); err != nil {
		t.Fatalf("UpdateRevision mutable field: %v", err)
	}
	got, _ := store.GetRevision(ctx, rev.RevisionID)
	if got.ProposedPlanFile != "PROPOSED_PROJ-42_v2.yaml" {
		t.Errorf("proposed_plan_file = %q", got.ProposedPlanFile)
	}

	err := store.UpdateRevision(ctx, "no-such-revision", map[string]interface{}{"status": string(RevisionAccepted)})
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreApplyRevision(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	parent := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, parent); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	rev, _ := NewRevision(parent.ExecutionID, "merge stories 2 and 3", `{"action":"merge"}`)
	if err := store.CreateRevision(ctx, rev); err != nil {
		t.Fatalf("CreateRevision: %v", err)
	}
	if _, err := store.ConfirmRevision(ctx, rev.RevisionID, true, time.Now().UTC()); err != nil {
		t.Fatalf("ConfirmRevision: %v", err)
	}

	child, err := NewChildExecution(parent, PlanFileRefs{
		ExecutionPlanFile: "EXECUTION_PROJ-42_v2.md",
		ProposedPlanFile:  "PROPOSED_PROJ-42_v2.yaml",
	})
	if err != nil {
		t.Fatalf("NewChildExecution: %v", err)
	}

	if err := store.ApplyRevision(ctx, rev.RevisionID, child); err != nil {
		t.Fatalf("ApplyRevision: %v", err)
	}

	gotRev, err := store.GetRevision(ctx, rev.RevisionID)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}
	if gotRev.Status != RevisionApplied {
		t.Errorf("revision status = %q, want APPLIED", gotRev.Status)
	}
	if gotRev.ExecutionPlanFile != child.ExecutionPlanFile || gotRev.ProposedPlanFile != child.ProposedPlanFile {
		t.Errorf("revision plan refs = (%q, %q), want child's",
			gotRev.ExecutionPlanFile, gotRev.ProposedPlanFile)
	}

	gotChild, err := store.GetExecution(ctx, child.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution(child): %v", err)
	}
	if gotChild.ParentExecutionID != parent.ExecutionID {
		t.Errorf("child parent = %q, want %q", gotChild.ParentExecutionID, parent.ExecutionID)
	}
	if gotChild.EpicKey != parent.EpicKey {
		t.Errorf("child epic = %q, want %q", gotChild.EpicKey, parent.EpicKey)
	}
	if gotChild.Status != ExecutionInProgress {
		t.Errorf("child status = %q, want IN_PROGRESS", gotChild.Status)
	}
}

func TestStoreApplyRevisionRequiresAccepted(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	parent := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, parent); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	child, _ := NewChildExecution(parent, PlanFileRefs{
		ExecutionPlanFile: "EXECUTION_PROJ-42_v2.md",
		ProposedPlanFile:  "PROPOSED_PROJ-42_v2.yaml",
	})

	statuses := []struct {
		name   string
		accept *bool
	}{
		{"still pending", nil},
		{"rejected", boolPtr(false)},
	}

	for _, tt := range statuses {
		t.Run(tt.name, func(t *testing.T) {
			rev, _ := NewRevision(parent.ExecutionID, "change", "interpreted")
			if err := store.CreateRevision(ctx, rev); err != nil {
				t.Fatalf("CreateRevision: %v", err)
			}
			if tt.accept != nil {
				if _, err := store.ConfirmRevision(ctx, rev.RevisionID, *tt.accept, time.Now().UTC()); err != nil {
					t.Fatalf("ConfirmRevision: %v", err)
				}
			}

			err := store.ApplyRevision(ctx, rev.RevisionID, child)
			if !errors.IsInvalidTransition(err) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}

			// Atomicity: the failed apply must not have inserted the child
			if _, err := store.GetExecution(ctx, child.ExecutionID); !errors.IsNotFound(err) {
				t.Errorf("failed apply leaked child execution (err=%v)", err)
			}
		})
	}

	if err := store.ApplyRevision(ctx, "no-such-revision", child); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreApplyRevisionReplay(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	parent := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, parent); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	rev, _ := NewRevision(parent.ExecutionID, "change", "interpreted")
	if err := store.CreateRevision(ctx, rev); err != nil {
		t.Fatalf("CreateRevision: %v", err)
	}
	if _, err := store.ConfirmRevision(ctx, rev.RevisionID, true, time.Now().UTC()); err != nil {
		t.Fatalf("ConfirmRevision: %v", err)
	}

	first, _ := NewChildExecution(parent, testRefs())
	if err := store.ApplyRevision(ctx, rev.RevisionID, first); err != nil {
		t.Fatalf("ApplyRevision: %v", err)
	}

	second, _ := NewChildExecution(parent, testRefs())
	err := store.ApplyRevision(ctx, rev.RevisionID, second)
	if !errors.IsInvalidTransition(err) {
		t.Errorf("expected ErrInvalidTransition on replay, got %v", err)
	}
	if _, err := store.GetExecution(ctx, second.ExecutionID); !errors.IsNotFound(err) {
		t.Error("replayed apply inserted a second child")
	}
}

func TestStoreListRevisionsForExecution(t *testing.T) {
	db := jttest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	requests := []string{"first change", "second change", "third change"}
	for _, req := range requests {
		rev, _ := NewRevision(exec.ExecutionID, req, "interpreted")
		if err := store.CreateRevision(ctx, rev); err != nil {
			t.Fatalf("CreateRevision(%q): %v", req, err)
		}
	}

	revisions, err := store.ListRevisionsForExecution(ctx, exec.ExecutionID)
	if err != nil {
		t.Fatalf("ListRevisionsForExecution: %v", err)
	}
	if len(revisions) != len(requests) {
		t.Fatalf("got %d revisions, want %d", len(revisions), len(requests))
	}
	for i, rev := range revisions {
		if rev.ChangesRequested != requests[i] {
			t.Errorf("revision %d = %q, want %q (insertion order)", i, rev.ChangesRequested, requests[i])
		}
	}

	empty, err := store.ListRevisionsForExecution(ctx, "no-such-execution")
	if err != nil {
		t.Fatalf("ListRevisionsForExecution(empty): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %d", len(empty))
	}
}

func seedPendingRevision(t *testing.T, store *Store) *Revision {
	t.Helper()
	ctx := context.Background()

	exec := mustExecution(t, "PROJ-42")
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	rev, err := NewRevision(exec.ExecutionID, "reorder phases", `{"action":"reorder"}`)
	if err != nil {
		t.Fatalf("NewRevision: %v", err)
	}
	if err := store.CreateRevision(ctx, rev); err != nil {
		t.Fatalf("CreateRevision: %v", err)
	}
	return rev
}

func boolPtr(b bool) *bool { return &b }
