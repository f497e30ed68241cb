package devin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// fakeAgent simulates the remote task API: a fixed sequence of status
// responses, one consumed per poll.
type fakeAgent struct {
	t        *testing.T
	statuses []string
	polls    atomic.Int64
	sawAuth  atomic.Bool
}

func (f *fakeAgent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer test-key" {
			f.sawAuth.Store(true)
		}
		json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
	})
	mux.HandleFunc("GET /sessions/sess-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		idx := int(n) - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		status := f.statuses[idx]
		if status == "HTTP500" {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"session_id":  "sess-1",
			"status_enum": status,
		})
	})
	mux.HandleFunc("GET /sessions/sess-1/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []Event{
				{Type: "assistant_message", Message: `{"summary":"done","confidence":80}`},
			},
		})
	})
	return mux
}

func newFakeClient(t *testing.T, agent *fakeAgent) *Client {
	t.Helper()
	server := httptest.NewServer(agent.handler())
	t.Cleanup(server.Close)
	return NewClient("test-key",
		WithBaseURL(server.URL),
		WithPollInterval(time.Millisecond))
}

func TestCreateSession(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"running"}}
	client := newFakeClient(t, agent)

	handle, err := client.CreateSession(context.Background(), "scope this")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", handle.SessionID)
	assert.True(t, agent.sawAuth.Load(), "bearer credential must be sent")
}

func TestCreateSessionTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.CreateSession(context.Background(), "scope this")
	assert.True(t, errors.Is(err, types.ErrTransport))
}

func TestAwaitCompletionPollsToTerminal(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"running", "running", "completed"}}
	client := newFakeClient(t, agent)

	status, err := client.AwaitCompletion(context.Background(), &Handle{SessionID: "sess-1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.StatusEnum)
	assert.GreaterOrEqual(t, agent.polls.Load(), int64(3))
}

func TestAwaitCompletionSwallowsTransientErrors(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"HTTP500", "HTTP500", "finished"}}
	client := newFakeClient(t, agent)

	status, err := client.AwaitCompletion(context.Background(), &Handle{SessionID: "sess-1"}, time.Second)
	require.NoError(t, err, "transient poll errors must not abort the wait")
	assert.Equal(t, "finished", status.StatusEnum)
}

func TestAwaitCompletionRemoteError(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"running", "error"}}
	client := newFakeClient(t, agent)

	_, err := client.AwaitCompletion(context.Background(), &Handle{SessionID: "sess-1"}, time.Second)
	assert.True(t, errors.Is(err, types.ErrRemoteExecution),
		"explicit remote error state must abort immediately, got %v", err)
}

func TestAwaitCompletionTimeout(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"running"}}
	client := newFakeClient(t, agent)

	_, err := client.AwaitCompletion(context.Background(), &Handle{SessionID: "sess-1"}, 20*time.Millisecond)
	assert.True(t, errors.Is(err, types.ErrTimeout))
}

func TestResolveFallsBackToEvents(t *testing.T) {
	agent := &fakeAgent{t: t, statuses: []string{"completed"}}
	client := newFakeClient(t, agent)

	result, status, err := client.Resolve(context.Background(), &Handle{SessionID: "sess-1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.StatusEnum)
	require.False(t, result.Failed())
	assert.Equal(t, "done", result["summary"])
}
