// Package jira is a minimal Jira REST client covering the ticket operations
// breakdown runs need. Requests are rate limited client-side and sent over
// the SSRF-safer transport. The client never retries; retry policy belongs to
// the caller.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sukhchana/jira-tool/errors"
	"github.com/sukhchana/jira-tool/internal/httpclient"
)

// Config holds Jira connection settings.
type Config struct {
	BaseURL           string  // e.g. https://yourcompany.atlassian.net
	Email             string  // account email for Basic auth
	APIToken          string  // API token for Basic auth
	RequestsPerSecond float64 // client-side rate limit; zero = 5 rps
	Logger            *zap.SugaredLogger
}

// Client talks to the Jira REST API.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *httpclient.SaferClient
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewClient creates a Jira client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.NewValidation("jira base URL cannot be empty")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		email:      config.Email,
		apiToken:   config.APIToken,
		httpClient: httpclient.New(60 * time.Second),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}, nil
}

// Ticket is the subset of Jira issue data breakdown runs consume.
type Ticket struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	IssueType   string `json:"issue_type"`
	Status      string `json:"status"`
}

// TicketFields carries the writable fields for create and update.
type TicketFields struct {
	Project     string `json:"project,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issue_type,omitempty"`
}

// issueResponse mirrors the wire shape of GET /rest/api/2/issue/{key}.
type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

// GetTicket fetches a ticket by key. A missing ticket is ErrNotFound; every
// other failure wraps ErrUpstream.
func (c *Client) GetTicket(ctx context.Context, key string) (*Ticket, error) {
	if key == "" {
		return nil, errors.NewValidation("ticket key cannot be empty")
	}

	body, err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, nil)
	if err != nil {
		return nil, err
	}

	var issue issueResponse
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, errors.WrapUpstream(err, "failed to decode jira issue")
	}

	return &Ticket{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		IssueType:   issue.Fields.IssueType.Name,
		Status:      issue.Fields.Status.Name,
	}, nil
}

// CreateTicket creates a ticket and returns its key.
func (c *Client) CreateTicket(ctx context.Context, fields TicketFields) (string, error) {
	if fields.Project == "" || fields.Summary == "" {
		return "", errors.NewValidation("project and summary are required")
	}

	issueType := fields.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"project":     map[string]string{"key": fields.Project},
			"summary":     fields.Summary,
			"description": fields.Description,
			"issuetype":   map[string]string{"name": issueType},
		},
	}

	body, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.WrapUpstream(err, "failed to decode jira create response")
	}
	if created.Key == "" {
		return "", errors.WrapUpstream(errors.New("jira returned no issue key"), "create ticket")
	}

	c.logger.Infow("Jira ticket created", "key", created.Key, "project", fields.Project)
	return created.Key, nil
}

// UpdateTicket updates writable fields on an existing ticket.
func (c *Client) UpdateTicket(ctx context.Context, key string, fields TicketFields) error {
	if key == "" {
		return errors.NewValidation("ticket key cannot be empty")
	}

	update := map[string]interface{}{}
	if fields.Summary != "" {
		update["summary"] = fields.Summary
	}
	if fields.Description != "" {
		update["description"] = fields.Description
	}
	if len(update) == 0 {
		return errors.NewValidation("no fields to update for ticket %s", key)
	}

	_, err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key, map[string]interface{}{
		"fields": update,
	})
	if err != nil {
		return err
	}

	c.logger.Infow("Jira ticket updated", "key", key)
	return nil
}

// do sends one rate-limited request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapUpstream(err, "rate limiter wait aborted")
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal jira request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create jira request")
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapUpstream(err, "jira request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapUpstream(err, "failed to read jira response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFound("jira ticket not found: %s %s", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.WrapUpstream(
			errors.Newf("jira responded %d: %s", resp.StatusCode, truncate(string(body), 512)),
			"jira request failed")
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SetHTTPClient overrides the HTTP client. Tests only.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL overrides the API endpoint. Tests only.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}
