package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output: concise, with the kind and
// any suggestion, suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	re, ok := err.(*RetrievalError)
	if !ok {
		re = Wrap(KindFatal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("error: %s\n", re.Message))
	if re.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  hint: %s\n", re.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  kind: %s\n", re.Kind))
	return sb.String()
}

type jsonError struct {
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a machine-readable JSON representation of err.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	re, ok := err.(*RetrievalError)
	if !ok {
		re = Wrap(KindFatal, err)
	}

	je := jsonError{
		Kind:       string(re.Kind),
		Message:    re.Message,
		Details:    re.Details,
		Suggestion: re.Suggestion,
		Retryable:  IsRetryable(re),
	}
	if re.Cause != nil {
		je.Cause = re.Cause.Error()
	}
	return json.Marshal(je)
}

// FormatForLog returns key-value pairs suitable for a structured logger's
// field set (zerolog's Fields-style map).
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	re, ok := err.(*RetrievalError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	out := map[string]any{
		"error_kind": string(re.Kind),
		"message":    re.Message,
		"retryable":  IsRetryable(re),
	}
	if re.Cause != nil {
		out["cause"] = re.Cause.Error()
	}
	if re.Suggestion != "" {
		out["suggestion"] = re.Suggestion
	}
	for k, v := range re.Details {
		out["detail_"+k] = v
	}
	return out
}
