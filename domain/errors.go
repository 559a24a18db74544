package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id does not resolve to
	// a stored session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrModelNotFound is returned when the provider does not know the
	// requested model.
	ErrModelNotFound = errors.New("model not found")
)

// ConnectionError means the provider could not be reached at all.
// The caller may retry later; nothing retries internally.
type ConnectionError struct {
	BaseURL string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to Ollama at %s: %v", e.BaseURL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProviderError is any other provider-side failure: bad status, unreadable
// body, broken stream.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ollama %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is a repository write failure. Fatal for the current
// turn; earlier committed writes are not rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
