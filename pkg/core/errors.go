// Package core provides the memory context engine facade: strategy
// dispatch, context block formatting and configuration loading.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidStrategy indicates a strategy name outside the canonical set.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrLLMOperation indicates that an LLM operation failed.
	ErrLLMOperation = errors.New("llm operation failed")
)

// EngineError wraps errors with operation context.
//
// Error() renders as "recollect: <Op>: <Err>".
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("recollect: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err with operation context. Returns nil when err is
// nil, so call sites can wrap unconditionally.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
