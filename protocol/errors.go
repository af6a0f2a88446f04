package protocol

import (
	"errors"
	"fmt"
)

// ResponseError represents a response block that failed validation.
type ResponseError struct {
	// Command is the command that was answered
	Command CommandCode

	// Status is the status byte from the response
	Status byte

	// Reason describes a malformed block; empty when only Status is bad
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s response invalid: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Command, getStatusName(e.Status), e.Status)
}

// IsResponseError returns true if err is or wraps a ResponseError.
func IsResponseError(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

// getStatusName returns a human-readable name for a status code.
func getStatusName(code byte) string {
	switch code {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusPhaseError:
		return "phase error"
	default:
		return fmt.Sprintf("unknown status code 0x%02X", code)
	}
}
