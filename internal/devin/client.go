// Package devin drives remote agent sessions: start a task, poll it to a
// terminal state, and extract a structured result from its output. The
// caller experiences a session as one slow blocking call.
package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

const (
	// DefaultBaseURL is the remote agent task API endpoint.
	DefaultBaseURL = "https://api.devin.ai/v1"

	// DefaultPollInterval is the fixed delay between status polls. Session
	// durations are bounded and there is a single caller per session, so no
	// jitter or exponential growth is needed.
	DefaultPollInterval = 4 * time.Second

	// ScopeMaxWait bounds scope, rescope, and tribunal sessions.
	ScopeMaxWait = 5 * time.Minute

	// ExecuteMaxWait bounds execute sessions, which run code and tests.
	ExecuteMaxWait = 10 * time.Minute
)

// Terminal and error states the remote task API may report.
var (
	terminalStates = map[string]bool{
		"stopped":    true,
		"completed":  true,
		"terminated": true,
		"blocked":    true,
		"finished":   true,
	}
	errorStates = map[string]bool{
		"error":   true,
		"failed":  true,
		"expired": true,
	}
)

// Client is a session protocol client for the remote agent task API.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the fixed polling delay.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient creates a client authenticated with the given bearer key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle is an opaque reference to one remote session.
type Handle struct {
	SessionID string `json:"session_id"`
}

// SessionStatus is the remote task's reported state.
type SessionStatus struct {
	SessionID        string          `json:"session_id"`
	StatusEnum       string          `json:"status_enum"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`
}

// Terminal reports whether the session reached a terminal state.
func (s *SessionStatus) Terminal() bool { return terminalStates[s.StatusEnum] }

// Errored reports whether the session reported an explicit error state.
func (s *SessionStatus) Errored() bool { return errorStates[s.StatusEnum] }

// Event is one entry of the session's event/message log.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MaxWaitFor returns the wait ceiling for a session kind.
func MaxWaitFor(kind types.SessionType) time.Duration {
	if kind == types.SessionExecute {
		return ExecuteMaxWait
	}
	return ScopeMaxWait
}

// CreateSession starts a remote session and returns immediately with an
// opaque handle. It never blocks on completion.
func (c *Client) CreateSession(ctx context.Context, prompt string) (*Handle, error) {
	body := map[string]string{"prompt": prompt}
	var handle Handle
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &handle); err != nil {
		return nil, err
	}
	if handle.SessionID == "" {
		return nil, fmt.Errorf("%w: create session returned no session id", types.ErrTransport)
	}
	return &handle, nil
}

// GetSession fetches the current status of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetEvents fetches the session's event log, oldest first.
func (c *Client) GetEvents(ctx context.Context, sessionID string) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// AwaitCompletion polls the session on a fixed interval until it reports a
// terminal state, an error state, or maxWait elapses. Transient network
// errors during polling are swallowed and retried on the next tick; only an
// explicit remote error state or the wait ceiling aborts the wait.
func (c *Client) AwaitCompletion(ctx context.Context, h *Handle, maxWait time.Duration) (*SessionStatus, error) {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetSession(ctx, h.SessionID)
		switch {
		case err != nil:
			slog.Debug("session poll failed, will retry",
				"session_id", h.SessionID, "error", err)
		case status.Errored():
			return status, fmt.Errorf("%w: session %s is %s",
				types.ErrRemoteExecution, h.SessionID, status.StatusEnum)
		case status.Terminal():
			return status, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: session %s still running after %s",
				types.ErrTimeout, h.SessionID, maxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Resolve runs a started session to completion and extracts its result.
// The event log is only fetched when the task has no native structured
// output. Parse failures surface as a sentinel result, never an error.
func (c *Client) Resolve(ctx context.Context, h *Handle, maxWait time.Duration) (Result, *SessionStatus, error) {
	status, err := c.AwaitCompletion(ctx, h, maxWait)
	if err != nil {
		return nil, status, err
	}

	if len(status.StructuredOutput) > 0 {
		if result := ExtractResult(status, nil); !result.Failed() {
			return result, status, nil
		}
	}

	events, err := c.GetEvents(ctx, h.SessionID)
	if err != nil {
		slog.Debug("could not fetch session events", "session_id", h.SessionID, "error", err)
		events = nil
	}
	return ExtractResult(status, events), status, nil
}

// do executes one HTTP round trip against the task API. All failures are
// classified as transport errors; the remote side guarantees nothing beyond
// standard HTTP semantics.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", types.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s",
			types.ErrTransport, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", types.ErrTransport, err)
		}
	}
	return nil
}
