package mailclass

import (
	"context"
	"fmt"

	"github.com/crimson-sun/mailclass/internal/engine"
	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/model"
)

// Classifier is an email classification engine.
// Safe for concurrent use.
type Classifier struct {
	engine *engine.Engine
}

// New creates a Classifier and loads its model, downloading it if needed.
// This is the expensive step; with WithLazyLoad it moves to the first
// Classify call.
func New(ctx context.Context, opts ...Option) (*Classifier, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	client := hub.New(o.endpoint, o.hubOptions()...)
	loader := engine.NewLoader(client, engine.LoaderConfig{
		MaxTokens:      o.maxTokens,
		IntraOpThreads: o.intraOpThreads,
		RuntimeLibrary: o.runtimeLibrary,
	})
	c := &Classifier{engine: engine.New(engine.NewCache(loader.Load), o.model)}

	if !o.lazy {
		if _, err := c.engine.Load(ctx, ""); err != nil {
			c.Close()
			return nil, fmt.Errorf("mailclass: %w", err)
		}
	}
	return c, nil
}

// Model returns the identifier of the model in use.
func (c *Classifier) Model() string {
	return c.engine.DefaultIdentifier()
}

// Classify predicts the category of text.
func (c *Classifier) Classify(ctx context.Context, text string) (Prediction, error) {
	r, err := c.engine.Classify(ctx, text)
	if err != nil {
		return Prediction{}, err
	}
	return predictionFrom(r), nil
}

// ClassifyEmail classifies a subject and body together, the way the model
// saw emails during training.
func (c *Classifier) ClassifyEmail(ctx context.Context, subject, body string) (Prediction, error) {
	return c.Classify(ctx, model.Email{Subject: subject, Body: body}.Text())
}

// ClassifyBatch classifies several texts in batched forward passes.
// More efficient than calling Classify in a loop. One blank text fails the
// whole call with ErrEmptyInput.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string) ([]Prediction, error) {
	rs, err := c.engine.ClassifyBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(rs))
	for i, r := range rs {
		out[i] = predictionFrom(r)
	}
	return out, nil
}

// Close releases model resources (ONNX Runtime sessions).
func (c *Classifier) Close() error {
	return c.engine.Close()
}
