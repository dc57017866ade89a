package models

import "fmt"

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	for field, msg := range e.Fields {
		return fmt.Sprintf("validation error: %s: %s", field, msg)
	}
	return "Validation error"
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// TransportError covers any network or store failure that is not one of the
// typed outcomes above. Status is zero when no HTTP response was received.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// SideEffectError wraps a failure of a secondary action that must not fail the
// primary one, e.g. a milestone update after a stop.
type SideEffectError struct {
	Op  string
	Err error
}

func (e *SideEffectError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *SideEffectError) Unwrap() error { return e.Err }
