package jellyfin

import (
	"encoding/json"
	"fmt"
)

// Messages returned to callers. Every upstream rejection is reported as bad
// credentials whatever the status, so only Status and Body tell them apart.
const (
	msgBadCredentials = "Bad credentials"
	msgBadMethod      = "Bad HTTP method"
)

// Error is the failure side of a Result.
type Error struct {
	Message string
	Status  int // upstream HTTP status, 0 when no response was received
	Body    any // best-effort decoded upstream body
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("jellyfin: %s (status %d)", e.Message, e.Status)
	}
	return "jellyfin: " + e.Message
}

// MarshalJSON renders the {error, body} shape handlers hand to the UI.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{"error": e.Message}
	if e.Body != nil {
		out["body"] = e.Body
	}
	return json.Marshal(out)
}

// Result holds either a value or an *Error, never both.
type Result[T any] struct {
	value T
	err   *Error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

func Fail[T any](err *Error) Result[T] {
	if err == nil {
		err = &Error{Message: "unknown error"}
	}
	return Result[T]{err: err}
}

func (r Result[T]) IsErr() bool { return r.err != nil }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() *Error { return r.err }

// Value returns the success payload; the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Unwrap converts the result to the usual (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}
