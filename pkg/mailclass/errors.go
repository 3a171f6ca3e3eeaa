package mailclass

import "github.com/crimson-sun/mailclass/internal/engine"

var (
	// ErrModelLoad matches failures to resolve, download or open a model.
	ErrModelLoad = engine.ErrModelLoad

	// ErrInference matches failed forward passes. The Classifier stays usable.
	ErrInference = engine.ErrInference

	// ErrEmptyInput is returned for empty or whitespace-only text.
	ErrEmptyInput = engine.ErrEmptyInput
)

type (
	// ModelLoadError carries the identifier that failed to load.
	ModelLoadError = engine.ModelLoadError

	// InferenceError carries the identifier whose forward pass failed.
	InferenceError = engine.InferenceError
)
