package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// capture returns a server recording the last JSON payload it received.
func capture(t *testing.T, payload *map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(payload))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDiscordPayloadShape(t *testing.T) {
	var payload map[string]string
	server := capture(t, &payload)

	n := New(server.URL + "/discord/webhook")
	require.NoError(t, n.Test(context.Background()))

	content, ok := payload["content"]
	require.True(t, ok, "discord wants a content key")
	assert.Contains(t, content, "**Devin Sheriff**")
}

func TestSlackPayloadShape(t *testing.T) {
	var payload map[string]string
	server := capture(t, &payload)

	n := New(server.URL + "/slack/services/T000")
	require.NoError(t, n.Test(context.Background()))

	text, ok := payload["text"]
	require.True(t, ok, "slack wants a text key")
	assert.Contains(t, text, "*Devin Sheriff*")
	assert.NotContains(t, text, "**", "slack bold uses single asterisks")
}

func TestGenericPayloadShape(t *testing.T) {
	var payload map[string]string
	server := capture(t, &payload)

	n := New(server.URL + "/hooks/generic")
	require.NoError(t, n.Test(context.Background()))

	assert.NotEmpty(t, payload["text"])
	assert.NotEmpty(t, payload["message"])
	assert.NotEmpty(t, payload["content"])
}

func TestTestRequiresURL(t *testing.T) {
	n := New("")
	err := n.Test(context.Background())
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSendSwallowsDeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	// Fire-and-forget: no panic, no error surface.
	n := New(server.URL)
	n.Send(context.Background(), "delivery will fail", LevelError)
	n.ScopeComplete(context.Background(), 42, "some issue", 85)
}

func TestEventHelpersFormat(t *testing.T) {
	var payload map[string]string
	server := capture(t, &payload)
	n := New(server.URL + "/discord/x")

	n.PROpened(context.Background(), 42, "Fix login timeout bug", "https://github.com/o/r/pull/3")
	assert.Contains(t, payload["content"], "#42")
	assert.Contains(t, payload["content"], "pull/3")

	n.AutoHealTriggered(context.Background(), 42, 2)
	assert.Contains(t, payload["content"], "retry 2/3")
}
