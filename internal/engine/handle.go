package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crimson-sun/mailclass/internal/engine/classifier"
	"github.com/crimson-sun/mailclass/internal/engine/tokenizer"
	"github.com/crimson-sun/mailclass/internal/model"
)

// maxBatch bounds the number of texts sent through one forward pass.
const maxBatch = 32

// Model produces classification logits for a tokenized batch.
// *onnx.Session is the production implementation.
type Model interface {
	// Logits returns row-major [b.Size * NumLabels] logits.
	Logits(ctx context.Context, b tokenizer.Batch) ([]float32, error)
	NumLabels() int
	Close() error
}

// Handle pairs a tokenizer with a model for one identifier. It is never
// mutated after construction and is safe for concurrent use.
type Handle struct {
	id    string
	tok   *tokenizer.Tokenizer
	model Model
}

// NewHandle checks that the model's output width matches the label schema.
func NewHandle(id string, tok *tokenizer.Tokenizer, m Model) (*Handle, error) {
	if tok == nil || m == nil {
		return nil, fmt.Errorf("engine: handle %q needs a tokenizer and a model", id)
	}
	if n := m.NumLabels(); n != model.NumLabels {
		return nil, fmt.Errorf("engine: model %q has %d outputs, want %d labels", id, n, model.NumLabels)
	}
	return &Handle{id: id, tok: tok, model: m}, nil
}

// ID returns the identifier the handle was loaded from.
func (h *Handle) ID() string { return h.id }

// MaxTokens returns the token budget, [CLS] and [SEP] included.
func (h *Handle) MaxTokens() int { return h.tok.MaxTokens() }

// Classify runs one forward pass over text. Blank text is rejected with
// ErrEmptyInput before tokenization. Text longer than the token budget is
// classified on its leading word pieces.
func (h *Handle) Classify(ctx context.Context, text string) (model.Result, error) {
	if isBlank(text) {
		return model.Result{}, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}

	enc := h.tok.Encode(text)
	if enc.Truncated {
		slog.Debug("engine: input truncated", "model", h.id, "max_tokens", h.tok.MaxTokens())
	}
	b := tokenizer.Pack([]tokenizer.Encoding{enc}, enc.Len(), h.tok.PadID())

	logits, err := h.model.Logits(ctx, b)
	if err != nil {
		return model.Result{}, &InferenceError{Identifier: h.id, Err: err}
	}
	res, err := classifier.Decide(logits)
	if err != nil {
		return model.Result{}, &InferenceError{Identifier: h.id, Err: err}
	}
	return res, nil
}

// ClassifyBatch classifies texts in padded chunks. Results are in input
// order. A blank text anywhere rejects the whole call.
func (h *Handle) ClassifyBatch(ctx context.Context, texts []string) ([]model.Result, error) {
	for i, text := range texts {
		if isBlank(text) {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]model.Result, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+maxBatch, len(texts))
		chunk := texts[start:end]

		b := h.tok.EncodeBatch(chunk)
		logits, err := h.model.Logits(ctx, b)
		if err != nil {
			return nil, &InferenceError{Identifier: h.id, Err: err}
		}
		rows, err := classifier.DecideBatch(logits, len(chunk))
		if err != nil {
			return nil, &InferenceError{Identifier: h.id, Err: err}
		}
		results = append(results, rows...)
	}
	return results, nil
}

// Close releases the model. Only the owning Cache calls it.
func (h *Handle) Close() error {
	return h.model.Close()
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
