// Package interpreter turns free-text change requests and epic descriptions
// into structured plan content via an LLM provider.
package interpreter

import (
	"context"
	"strings"

	"github.com/sukhchana/jira-tool/ai/openrouter"
	"github.com/sukhchana/jira-tool/errors"
)

// Interpreter is the LLM collaborator consumed by the revision workflow and
// the breakdown manager. Implementations must return a non-empty result or an
// error; callers treat any error as an upstream failure and persist nothing.
type Interpreter interface {
	// Interpret reads a free-text change request against the current plan and
	// returns a structured interpretation of the requested changes.
	Interpret(ctx context.Context, freeText, planContext string) (string, error)

	// DraftPlan produces proposed and execution plan documents for an epic.
	DraftPlan(ctx context.Context, epicKey, summary, description string) (*PlanDraft, error)
}

// PlanDraft is the pair of plan documents produced for a breakdown run.
type PlanDraft struct {
	ProposedPlan  string
	ExecutionPlan string
}

const interpretSystemPrompt = `You are a software delivery planner. Given the current execution plan and a requested change, produce a structured interpretation of the change as JSON with the fields "summary", "affected_items", and "actions". Output only the JSON.`

const draftSystemPrompt = `You are a software delivery planner. Given a Jira epic, produce a breakdown plan. Respond with the proposed plan in YAML, then the line "---EXECUTION---", then the execution plan in Markdown.`

const draftSeparator = "---EXECUTION---"

// Client is the OpenRouter-backed Interpreter.
type Client struct {
	provider *openrouter.Client
}

// New creates an interpreter over an OpenRouter client.
func New(provider *openrouter.Client) *Client {
	return &Client{provider: provider}
}

// Interpret sends the change request and plan context to the model and
// returns the trimmed interpretation. Every provider failure, including a
// syntactically successful call with empty output, wraps ErrUpstream.
func (c *Client) Interpret(ctx context.Context, freeText, planContext string) (string, error) {
	if freeText == "" {
		return "", errors.NewValidation("change request cannot be empty")
	}

	var prompt strings.Builder
	if planContext != "" {
		prompt.WriteString("Current execution plan:\n")
		prompt.WriteString(planContext)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Requested change:\n")
	prompt.WriteString(freeText)

	resp, err := c.provider.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: interpretSystemPrompt,
		UserPrompt:   prompt.String(),
	})
	if err != nil {
		return "", errors.WrapUpstream(err, "failed to interpret change request")
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", errors.WrapUpstream(errors.New("provider returned empty interpretation"),
			"failed to interpret change request")
	}

	return content, nil
}

// DraftPlan asks the model for the proposed and execution plan documents for
// an epic. An unparseable or empty response wraps ErrUpstream.
func (c *Client) DraftPlan(ctx context.Context, epicKey, summary, description string) (*PlanDraft, error) {
	if epicKey == "" {
		return nil, errors.NewValidation("epic key cannot be empty")
	}

	var prompt strings.Builder
	prompt.WriteString("Epic: ")
	prompt.WriteString(epicKey)
	prompt.WriteString("\nSummary: ")
	prompt.WriteString(summary)
	if description != "" {
		prompt.WriteString("\n\n")
		prompt.WriteString(description)
	}

	resp, err := c.provider.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: draftSystemPrompt,
		UserPrompt:   prompt.String(),
	})
	if err != nil {
		return nil, errors.WrapUpstream(err, "failed to draft plan")
	}

	draft, err := parseDraft(resp.Content)
	if err != nil {
		return nil, errors.WrapUpstream(err, "failed to draft plan")
	}

	return draft, nil
}

func parseDraft(content string) (*PlanDraft, error) {
	proposed, execution, found := strings.Cut(content, draftSeparator)
	if !found {
		return nil, errors.Newf("provider response missing %q separator", draftSeparator)
	}

	draft := &PlanDraft{
		ProposedPlan:  strings.TrimSpace(proposed),
		ExecutionPlan: strings.TrimSpace(execution),
	}
	if draft.ProposedPlan == "" || draft.ExecutionPlan == "" {
		return nil, errors.New("provider returned empty plan document")
	}

	return draft, nil
}
