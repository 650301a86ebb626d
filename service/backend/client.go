package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/epicflow/epicflow/internal/clock"
	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/tracing"
)

// Config represents execution client configuration.
type Config struct {
	// BaseURL of the execution backend, e.g. http://localhost:8080
	BaseURL string `json:"baseURL" yaml:"baseURL"`

	// PollInterval between status checks of an in-flight run.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`

	// MaxWaitTime is the hard ceiling on one step; breaching it yields a
	// timeout result rather than an error.
	MaxWaitTime time.Duration `json:"maxWaitTime" yaml:"maxWaitTime"`

	// StartRetries is the number of attempts for the start call when the
	// backend answers with a server-class failure.
	StartRetries int `json:"startRetries" yaml:"startRetries"`

	// RetryDelay is the base delay of the start-call exponential backoff.
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`

	// MaxTurns caps the backend conversation length per step.
	MaxTurns int `json:"maxTurns" yaml:"maxTurns"`
}

// DefaultConfig returns the default execution client configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		MaxWaitTime:  30 * time.Minute,
		StartRetries: 3,
		RetryDelay:   2 * time.Second,
		MaxTurns:     40,
	}
}

// Client dispatches workflow steps to the execution backend and classifies
// their outcome.  Step-level errors are always converted into a
// WorkflowResult, never propagated.
type Client struct {
	config Config
	http   *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates an execution client.
func New(config Config, options ...Option) *Client {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = def.MaxWaitTime
	}
	if config.StartRetries <= 0 {
		config.StartRetries = def.StartRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = def.MaxTurns
	}
	ret := &Client{config: config, http: &http.Client{Timeout: 30 * time.Second}}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ExecuteStep starts one workflow step and polls it to a terminal status.
// The returned result always carries the real cost reported by the backend,
// including on failure; a start failure carries cost 0.
func (c *Client) ExecuteStep(ctx context.Context, step epic.Step, state *epic.State, maxTurns int) *epic.WorkflowResult {
	started := clock.Now()
	result := &epic.WorkflowResult{Step: step, StartedAt: started}

	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("backend.ExecuteStep %s", step), "CLIENT")
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()
	span.WithAttributes(map[string]string{"epic.id": state.ID, "epic.step": string(step)})

	if maxTurns <= 0 {
		maxTurns = c.config.MaxTurns
	}
	request := &runRequest{
		Message:   TaskContext(state, step),
		SessionID: fmt.Sprintf("%s-%s", state.ID, step),
		Config: runConfig{
			MaxTurns: maxTurns,
			Branch:   BranchName(state.ID, step),
			EpicContext: map[string]string{
				"epicId":    state.ID,
				"threadId":  state.ThreadID,
				"epicTitle": state.Title,
			},
		},
	}

	start, err := c.startRun(ctx, step, request)
	if err != nil {
		spanErr = err
		now := clock.Now()
		result.Status = epic.StatusFailed
		result.Error = err.Error()
		result.EndedAt = &now
		return result
	}
	result.RunID = start.RunID
	result.ContainerID = start.ContainerID

	return c.awaitRun(ctx, result)
}

// startRun issues the start call.  Server-class failures and transport errors
// are retried with bounded exponential backoff; client-class and rate-limit
// responses are not.
func (c *Client) startRun(ctx context.Context, step epic.Step, request *runRequest) (*startResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/run/%s", strings.TrimSuffix(c.config.BaseURL, "/"), step)

	var lastErr error
	delay := c.config.RetryDelay
	for attempt := 0; attempt < c.config.StartRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("backend unreachable: %w", err)
			continue
		}
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var ret startResponse
			if err := json.Unmarshal(data, &ret); err != nil {
				return nil, fmt.Errorf("invalid start response: %w", err)
			}
			if ret.RunID == "" {
				return nil, fmt.Errorf("start response missing runId")
			}
			return &ret, nil
		case resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 400 && resp.StatusCode < 500):
			return nil, fmt.Errorf("start rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		default:
			lastErr = fmt.Errorf("backend returned status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("start failed after %d attempts: %w", c.config.StartRetries, lastErr)
}

// awaitRun polls the run status at fixed intervals until a terminal status or
// the maxWaitTime ceiling.  Transient polling failures are logged and the
// wait continues – only the ceiling ends it.
func (c *Client) awaitRun(ctx context.Context, result *epic.WorkflowResult) *epic.WorkflowResult {
	deadline := time.Now().Add(c.config.MaxWaitTime)
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.runStatus(ctx, result.RunID)
		if err != nil {
			if ctx.Err() != nil {
				return c.finish(result, epic.StatusCancelled, nil, ctx.Err().Error())
			}
			log.Printf("backend: poll of run %s failed, retrying: %v", result.RunID, err)
		} else {
			switch status.Status {
			case runStatusCompleted:
				return c.finish(result, epic.StatusSuccess, status, "")
			case runStatusFailed:
				return c.finish(result, epic.StatusFailed, status, status.Error)
			case runStatusTimeout:
				return c.finish(result, epic.StatusTimeout, status, status.Error)
			}
		}

		if time.Now().After(deadline) {
			return c.finish(result, epic.StatusTimeout, nil,
				fmt.Sprintf("run %s exceeded max wait time %s", result.RunID, c.config.MaxWaitTime))
		}
		select {
		case <-ctx.Done():
			return c.finish(result, epic.StatusCancelled, nil, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

func (c *Client) finish(result *epic.WorkflowResult, status string, payload *statusResponse, errMsg string) *epic.WorkflowResult {
	now := clock.Now()
	result.EndedAt = &now
	result.Status = status
	result.Error = errMsg
	if payload != nil {
		result.Cost = payload.CostUSD
		result.Summary = payload.Result
		result.ContainerID = payload.ContainerID
		result.Commits = payload.Commits
		result.ChangedFiles = payload.ChangedFiles
		result.BreakingChanges = payload.BreakingChanges
		result.NewEndpoints = payload.NewEndpoints
		result.SchemaChanges = payload.SchemaChanges
		result.NewDependencies = payload.NewDependencies
	}
	return result
}

func (c *Client) runStatus(ctx context.Context, runID string) (*statusResponse, error) {
	endpoint := fmt.Sprintf("%s/run/%s/status", strings.TrimSuffix(c.config.BaseURL, "/"), runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status call returned %d", resp.StatusCode)
	}
	var ret statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &ret, nil
}

// GetLogs retrieves run logs from the status payload; the backend exposes no
// dedicated log endpoint.
func (c *Client) GetLogs(ctx context.Context, runID string) (string, error) {
	status, err := c.runStatus(ctx, runID)
	if err != nil {
		return "", err
	}
	if status.Logs != "" {
		return status.Logs, nil
	}
	return status.Result, nil
}

// Stop is part of the contract but the backend exposes no cancellation
// endpoint; it returns false unconditionally so that callers see cancellation
// as best effort – a dispatched step may keep running.
func (c *Client) Stop(ctx context.Context, runID string) bool {
	_ = ctx
	_ = runID
	return false
}

// TaskContext synthesises the message sent to the backend: the epic title,
// description and original request plus summaries of previously completed
// steps.
func TaskContext(state *epic.State, step epic.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Epic: %s\n", state.Title)
	if state.Description != "" && state.Description != state.Title {
		fmt.Fprintf(&b, "Description: %s\n", state.Description)
	}
	if state.Request != nil && state.Request.Description != state.Description {
		fmt.Fprintf(&b, "Original request: %s\n", state.Request.Description)
	}
	fmt.Fprintf(&b, "Current step: %s\n", step)
	if len(state.CompletedSteps) > 0 {
		b.WriteString("Previously completed:\n")
		for _, done := range state.CompletedSteps {
			summary := ""
			if r := state.Result(done); r != nil {
				summary = r.Summary
			}
			if summary == "" {
				fmt.Fprintf(&b, "- %s\n", done)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", done, summary)
			}
		}
	}
	return b.String()
}

// BranchName derives the backend working branch for one step.
func BranchName(epicID string, step epic.Step) string {
	return fmt.Sprintf("epic/%s/%s", epicID, step)
}
