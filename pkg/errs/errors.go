// Package errs defines the error taxonomy shared by every Forge component.
//
// Errors are classified into kinds so the HTTP layer can map them to status
// codes without inspecting messages: Config failures are fatal at startup,
// Storage maps to 5xx, NotFound maps to 404, and LLM errors never leave the
// orchestrator (it falls back to a synthetic report instead).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its origin.
type Kind string

const (
	KindConfig      Kind = "config"
	KindStorage     Kind = "storage"
	KindGraph       Kind = "graph"
	KindMetrics     Kind = "metrics"
	KindRemediation Kind = "remediation"
	KindValidation  Kind = "validation"
	KindLLM         Kind = "llm"
	KindNotFound    Kind = "not_found"
)

var (
	// ErrNotFound is returned when a service, insight, or work item does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries a kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or "" when err carries no classification.
// NotFound is recognized both as a wrapped *Error and as the bare sentinel.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return ""
}

// IsNotFound reports whether err represents a missing entity.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound || errors.Is(err, ErrNotFound)
}
