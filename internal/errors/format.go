package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	re, ok := as(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", re.Message)
	if re.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", re.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", re.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error for --format json output.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	re, ok := as(err)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       re.Code,
		Message:    re.Message,
		Category:   string(re.Category),
		Severity:   string(re.Severity),
		Details:    re.Details,
		Suggestion: re.Suggestion,
		Retryable:  re.Retryable,
	}
	if re.Cause != nil {
		je.Cause = re.Cause.Error()
	}
	return json.Marshal(je)
}
