package interpreter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sukhchana/jira-tool/ai/openrouter"
	"github.com/sukhchana/jira-tool/errors"
)

func newStubInterpreter(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider := openrouter.NewClient(openrouter.Config{APIKey: "test-key"})
	provider.SetBaseURL(srv.URL)
	provider.SetHTTPClient(srv.Client())
	return New(provider)
}

func respondWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "gen-1",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
		})
	}
}

func TestInterpret(t *testing.T) {
	interp := newStubInterpreter(t, respondWith(`  {"summary":"split story 3"}  `))

	got, err := interp.Interpret(context.Background(), "split story 3 into two", "plan context")
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got != `{"summary":"split story 3"}` {
		t.Errorf("interpretation = %q, want trimmed JSON", got)
	}
}

func TestInterpretEmptyRequest(t *testing.T) {
	interp := newStubInterpreter(t, respondWith("unused"))

	_, err := interp.Interpret(context.Background(), "", "plan context")
	if !errors.IsValidation(err) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestInterpretEmptyOutputIsUpstream(t *testing.T) {
	interp := newStubInterpreter(t, respondWith("   \n  "))

	_, err := interp.Interpret(context.Background(), "change something", "")
	if !errors.IsUpstream(err) {
		t.Errorf("empty interpretation: expected ErrUpstream, got %v", err)
	}
}

func TestInterpretProviderFailureIsUpstream(t *testing.T) {
	interp := newStubInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := interp.Interpret(context.Background(), "change something", "")
	if !errors.IsUpstream(err) {
		t.Errorf("provider failure: expected ErrUpstream, got %v", err)
	}
}

func TestDraftPlan(t *testing.T) {
	interp := newStubInterpreter(t, respondWith(
		"phases:\n  - setup\n---EXECUTION---\n# Execution Plan\n1. Setup\n"))

	draft, err := interp.DraftPlan(context.Background(), "PROJ-42", "Build the widget", "details")
	if err != nil {
		t.Fatalf("DraftPlan: %v", err)
	}
	if draft.ProposedPlan != "phases:\n  - setup" {
		t.Errorf("proposed = %q", draft.ProposedPlan)
	}
	if draft.ExecutionPlan != "# Execution Plan\n1. Setup" {
		t.Errorf("execution = %q", draft.ExecutionPlan)
	}
}

func TestDraftPlanMissingSeparatorIsUpstream(t *testing.T) {
	interp := newStubInterpreter(t, respondWith("just one document"))

	_, err := interp.DraftPlan(context.Background(), "PROJ-42", "Build the widget", "")
	if !errors.IsUpstream(err) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestDraftPlanEmptyEpicKey(t *testing.T) {
	interp := newStubInterpreter(t, respondWith("unused"))

	_, err := interp.DraftPlan(context.Background(), "", "summary", "")
	if !errors.IsValidation(err) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
