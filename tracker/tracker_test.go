package tracker

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/errors"
	jttest "github.com/sukhchana/jira-tool/internal/testing"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(jttest.CreateTestDB(t), zap.NewNop().Sugar())
}

func TestTrackerStartExecution(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	exec, err := tracker.StartExecution(ctx, "PROJ-42", testRefs())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if exec.Status != ExecutionInProgress {
		t.Errorf("status = %q, want IN_PROGRESS", exec.Status)
	}

	got, err := tracker.GetExecution(ctx, exec.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.EpicKey != "PROJ-42" {
		t.Errorf("epic_key = %q", got.EpicKey)
	}
}

func TestTrackerStartExecutionValidation(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.StartExecution(ctx, "", testRefs()); !errors.IsValidation(err) {
		t.Errorf("empty epic key: expected ErrValidation, got %v", err)
	}
	if _, err := tracker.StartExecution(ctx, "PROJ-42", PlanFileRefs{}); !errors.IsValidation(err) {
		t.Errorf("empty refs: expected ErrValidation, got %v", err)
	}
}

func TestTrackerStartRevisionExecution(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	parent, err := tracker.StartExecution(ctx, "PROJ-42", testRefs())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	child, err := tracker.StartRevisionExecution(ctx, parent.ExecutionID, PlanFileRefs{
		ExecutionPlanFile: "EXECUTION_PROJ-42_v2.md",
		ProposedPlanFile:  "PROPOSED_PROJ-42_v2.yaml",
	})
	if err != nil {
		t.Fatalf("StartRevisionExecution: %v", err)
	}

	if child.ParentExecutionID != parent.ExecutionID {
		t.Errorf("parent = %q, want %q", child.ParentExecutionID, parent.ExecutionID)
	}
	if child.EpicKey != parent.EpicKey {
		t.Errorf("child epic = %q, want inherited %q", child.EpicKey, parent.EpicKey)
	}
	if child.Status != ExecutionInProgress {
		t.Errorf("child status = %q, want IN_PROGRESS", child.Status)
	}
}

func TestTrackerStartRevisionExecutionMissingParent(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.StartRevisionExecution(context.Background(), "no-such-parent", testRefs())
	if !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrackerSettleLifecycle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		settle func(*Tracker, context.Context, string) error
		want   ExecutionStatus
	}{
		{"active", (*Tracker).MarkActive, ExecutionActive},
		{"failed", (*Tracker).MarkFailed, ExecutionFailed},
		{"fatal", (*Tracker).MarkFatal, ExecutionFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(t)
			exec, err := tracker.StartExecution(ctx, "PROJ-42", testRefs())
			if err != nil {
				t.Fatalf("StartExecution: %v", err)
			}

			if err := tt.settle(tracker, ctx, exec.ExecutionID); err != nil {
				t.Fatalf("settle: %v", err)
			}

			got, _ := tracker.GetExecution(ctx, exec.ExecutionID)
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q", got.Status, tt.want)
			}

			// Terminal statuses admit no further transitions
			if err := tracker.MarkActive(ctx, exec.ExecutionID); !errors.IsInvalidTransition(err) {
				t.Errorf("settling a settled execution: expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTrackerSettleMissingExecution(t *testing.T) {
	tracker := newTestTracker(t)

	if err := tracker.MarkActive(context.Background(), "no-such-execution"); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrackerExecutionChain(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	root, err := tracker.StartExecution(ctx, "PROJ-42", testRefs())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	mid, err := tracker.StartRevisionExecution(ctx, root.ExecutionID, testRefs())
	if err != nil {
		t.Fatalf("StartRevisionExecution(mid): %v", err)
	}
	leaf, err := tracker.StartRevisionExecution(ctx, mid.ExecutionID, testRefs())
	if err != nil {
		t.Fatalf("StartRevisionExecution(leaf): %v", err)
	}

	chain, err := tracker.ExecutionChain(ctx, leaf.ExecutionID)
	if err != nil {
		t.Fatalf("ExecutionChain: %v", err)
	}

	wantIDs := []string{root.ExecutionID, mid.ExecutionID, leaf.ExecutionID}
	if len(chain) != len(wantIDs) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(wantIDs))
	}
	for i, exec := range chain {
		if exec.ExecutionID != wantIDs[i] {
			t.Errorf("chain[%d] = %q, want %q (root first)", i, exec.ExecutionID, wantIDs[i])
		}
	}
}
