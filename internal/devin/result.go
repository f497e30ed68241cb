package devin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SamuelHanono/devin-sheriff/internal/types"
)

// Result is the structured JSON output of a completed session. The agent is
// asked to emit raw JSON but compliance is probabilistic, so extraction
// falls back through three tiers and never raises on parse failure; callers
// must check Failed before trusting the result.
type Result map[string]interface{}

// ParseFailureMessage is the sentinel error value for unextractable output.
const ParseFailureMessage = "could not parse JSON"

// ParseFailure returns the sentinel result for unextractable output.
func ParseFailure() Result {
	return Result{"error": ParseFailureMessage}
}

// Failed reports whether the result carries an error key.
func (r Result) Failed() bool {
	_, ok := r["error"]
	return ok
}

// ErrorMessage returns the error value, if any.
func (r Result) ErrorMessage() string {
	if v, ok := r["error"].(string); ok {
		return v
	}
	return ""
}

// ToPlan converts a scope/rescope result into a Plan.
func (r Result) ToPlan() (*types.Plan, error) {
	if r.Failed() {
		return nil, fmt.Errorf("result is an error: %s", r.ErrorMessage())
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode result: %w", err)
	}
	var plan types.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("result does not describe a plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// PRURL returns the pull request reference from an execute result, checking
// the field names the agent has been observed to use.
func (r Result) PRURL() string {
	for _, key := range []string{"pr_url", "pull_request_url", "pr"} {
		if v, ok := r[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ExtractResult pulls structured JSON out of a finished session.
// Extraction order:
//
//	(a) the task's native structured output field, verbatim;
//	(b) the event log scanned in reverse chronological order for the
//	    latest assistant-authored message containing a parseable object;
//	(c) the parse-failure sentinel.
func ExtractResult(status *SessionStatus, events []Event) Result {
	if status != nil && len(status.StructuredOutput) > 0 {
		var result Result
		if err := json.Unmarshal(status.StructuredOutput, &result); err == nil && len(result) > 0 {
			return result
		}
	}

	for i := len(events) - 1; i >= 0; i-- {
		if !isAssistantEvent(events[i].Type) {
			continue
		}
		if result, ok := parseEmbeddedObject(events[i].Message); ok {
			return result
		}
	}

	return ParseFailure()
}

func isAssistantEvent(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.Contains(t, "assistant") || strings.Contains(t, "devin_message")
}

// parseEmbeddedObject finds the first balanced {...} substring that parses
// as a JSON object. A bracket-balance scan (string- and escape-aware) is
// used instead of a greedy regex so trailing prose cannot poison the match.
func parseEmbeddedObject(message string) (Result, bool) {
	for start := 0; start < len(message); start++ {
		if message[start] != '{' {
			continue
		}
		candidate, ok := balancedObject(message[start:])
		if !ok {
			// This brace never closes; a later one still might.
			continue
		}
		var result Result
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return result, true
		}
		// Balanced but not valid JSON; try the next opening brace.
	}
	return nil, false
}

// balancedObject returns the shortest balanced {...} prefix of s.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
