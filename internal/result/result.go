// Package result provides the tagged outcome value returned by every store
// operation. Stores never return raw errors to their callers.
package result

import "errors"

// Result is either a success carrying Data or a failure carrying Error.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed result with a user-facing message.
func Fail[T any](message string) Result[T] {
	return Result[T]{Error: message}
}

// Err returns nil for a successful result and the message as an error otherwise.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}
