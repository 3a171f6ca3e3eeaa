package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad matches every *ModelLoadError.
	ErrModelLoad = errors.New("engine: model load failed")

	// ErrInference matches every *InferenceError.
	ErrInference = errors.New("engine: inference failed")

	// ErrEmptyInput is returned for text that is empty or only whitespace.
	ErrEmptyInput = errors.New("engine: empty input")
)

// ModelLoadError reports that an identifier could not be turned into a
// usable handle: it did not resolve, a download failed, or the artifacts are
// malformed or incompatible with the label schema.
type ModelLoadError struct {
	Identifier string
	Err        error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("engine: load %q: %v", e.Identifier, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Is reports true for ErrModelLoad so callers need not know the concrete type.
func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// InferenceError reports a failed forward pass on an otherwise healthy handle.
type InferenceError struct {
	Identifier string
	Err        error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("engine: classify with %q: %v", e.Identifier, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }
