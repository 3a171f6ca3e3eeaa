// Package engine is the classification service: it owns loaded model
// handles and turns email text into a label, a confidence and a
// probability distribution over the fixed label set.
package engine

import (
	"context"
	"strings"

	"github.com/crimson-sun/mailclass/internal/model"
)

// DefaultIdentifier is the model used when none is configured.
const DefaultIdentifier = model.DefaultIdentifier

// Engine classifies with a default model and loads others on demand.
type Engine struct {
	cache     *Cache
	defaultID string
}

// New creates an Engine over cache. An empty defaultID means
// DefaultIdentifier.
func New(cache *Cache, defaultID string) *Engine {
	if strings.TrimSpace(defaultID) == "" {
		defaultID = DefaultIdentifier
	}
	return &Engine{cache: cache, defaultID: defaultID}
}

// DefaultIdentifier returns the model used by Classify.
func (e *Engine) DefaultIdentifier() string { return e.defaultID }

// Load returns the handle for identifier; an empty identifier selects the
// default model.
func (e *Engine) Load(ctx context.Context, identifier string) (*Handle, error) {
	if strings.TrimSpace(identifier) == "" {
		identifier = e.defaultID
	}
	return e.cache.Load(ctx, identifier)
}

// Classify classifies text with the default model, loading it on first use.
// Blank text fails with ErrEmptyInput without touching the model.
func (e *Engine) Classify(ctx context.Context, text string) (model.Result, error) {
	if isBlank(text) {
		return model.Result{}, ErrEmptyInput
	}
	h, err := e.cache.Load(ctx, e.defaultID)
	if err != nil {
		return model.Result{}, err
	}
	return h.Classify(ctx, text)
}

// ClassifyBatch classifies texts with the default model.
func (e *Engine) ClassifyBatch(ctx context.Context, texts []string) ([]model.Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	h, err := e.cache.Load(ctx, e.defaultID)
	if err != nil {
		return nil, err
	}
	return h.ClassifyBatch(ctx, texts)
}

// Ready reports whether the default model is loaded.
func (e *Engine) Ready() bool {
	return e.cache.Loaded(e.defaultID)
}

// Close releases every loaded model.
func (e *Engine) Close() error {
	return e.cache.Close()
}
