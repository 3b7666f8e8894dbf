package esim

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned before any request is made.
var ErrInvalidArgument = errors.New("esim: invalid argument")

// APIError is a response whose envelope reported success=false.
type APIError struct {
	Op      string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("esim: %s rejected: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("esim: %s rejected: %s", e.Op, e.Message)
}

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("esim: %s: unexpected status %d", e.Op, e.StatusCode)
}

// Outcome is the tagged result of a provider call as seen by the workflow.
type Outcome int

const (
	// OutcomeOK means the call returned data.
	OutcomeOK Outcome = iota
	// OutcomeEmpty means the call succeeded with nothing to show.
	OutcomeEmpty
	// OutcomeFailed means the transport or the provider failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	default:
		return "fail"
	}
}

// Classify tags the (count, err) pair returned by a client call.
func Classify(n int, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeFailed
	case n == 0:
		return OutcomeEmpty
	default:
		return OutcomeOK
	}
}
