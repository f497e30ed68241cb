// Package notify posts pipeline events to a configured webhook. Delivery is
// fire-and-forget: failures are logged and never affect issue state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Level categorizes a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

var levelEmoji = map[Level]string{
	LevelInfo:    "ℹ️",
	LevelSuccess: "✅",
	LevelWarning: "⚠️",
	LevelError:   "❌",
}

// Notifier posts formatted messages to a Slack or Discord webhook.
// A Notifier with an empty URL silently drops everything.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// New creates a notifier for the given webhook URL ("" disables delivery).
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ScopeComplete announces a finished scope session.
func (n *Notifier) ScopeComplete(ctx context.Context, issueNumber int, title string, confidence int) {
	n.Send(ctx, fmt.Sprintf("Scope complete for issue #%d: %s (confidence: %d%%)",
		issueNumber, truncate(title, 50), confidence), LevelSuccess)
}

// PROpened announces a newly opened pull request.
func (n *Notifier) PROpened(ctx context.Context, issueNumber int, title, prURL string) {
	n.Send(ctx, fmt.Sprintf("PR opened for issue #%d: %s | %s",
		issueNumber, truncate(title, 50), prURL), LevelSuccess)
}

// AutoHealTriggered announces an auto-heal attempt.
func (n *Notifier) AutoHealTriggered(ctx context.Context, issueNumber, retryCount int) {
	n.Send(ctx, fmt.Sprintf("Auto-heal triggered for issue #%d (retry %d/%d)",
		issueNumber, retryCount, types.MaxHealRetries), LevelWarning)
}

// Test sends a test message and, unlike the event helpers, reports the
// delivery error so setup problems are visible.
func (n *Notifier) Test(ctx context.Context) error {
	if n.webhookURL == "" {
		return fmt.Errorf("%w: no webhook URL configured", types.ErrValidation)
	}
	return n.post(ctx, "Test notification from Devin Sheriff. Your webhook is working.", LevelInfo)
}

// Send posts one message. Failures are logged, never returned.
func (n *Notifier) Send(ctx context.Context, message string, level Level) {
	if n.webhookURL == "" {
		slog.Debug("no webhook URL configured, skipping notification")
		return
	}
	if err := n.post(ctx, message, level); err != nil {
		slog.Warn("failed to deliver notification", "error", err, "message", truncate(message, 50))
		return
	}
	slog.Info("notification sent", "message", truncate(message, 50))
}

func (n *Notifier) post(ctx context.Context, message string, level Level) error {
	emoji, ok := levelEmoji[level]
	if !ok {
		emoji = "📢"
	}
	formatted := fmt.Sprintf("%s **Devin Sheriff** | %s", emoji, message)

	data, err := json.Marshal(payloadFor(n.webhookURL, message, formatted))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// payloadFor shapes the body for the webhook's platform: Discord wants
// "content", Slack wants "text" with its own bold syntax, and anything else
// gets a compatibility payload carrying all common keys.
func payloadFor(webhookURL, message, formatted string) map[string]string {
	lower := strings.ToLower(webhookURL)
	switch {
	case strings.Contains(lower, "discord"):
		return map[string]string{"content": formatted}
	case strings.Contains(lower, "slack"):
		return map[string]string{"text": strings.ReplaceAll(formatted, "**", "*")}
	default:
		return map[string]string{
			"text":    message,
			"message": message,
			"content": formatted,
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
