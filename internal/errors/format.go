package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// Non-RagError values are wrapped as internal errors first.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	re, ok := err.(*RagError)
	if !ok {
		re = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", re.Message))

	if re.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", re.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", re.Code))
	return sb.String()
}

// FormatForLog returns a single-line representation with details,
// suitable for structured log fields.
func FormatForLog(err error) string {
	if err == nil {
		return ""
	}

	re, ok := err.(*RagError)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString(re.Error())
	if len(re.Details) > 0 {
		for k, v := range re.Details {
			sb.WriteString(fmt.Sprintf(" %s=%s", k, v))
		}
	}
	if re.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(re.Cause.Error())
	}
	return sb.String()
}
