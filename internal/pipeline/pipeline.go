// Package pipeline feeds emails through a classifier into an output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/mailclass/internal/engine"
	"github.com/crimson-sun/mailclass/internal/model"
	"github.com/crimson-sun/mailclass/internal/output"
)

const (
	defaultBatchSize     = 32
	defaultFlushInterval = 200 * time.Millisecond
)

// Classifier is the slice of the engine the pipeline needs.
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Result, error)
	ClassifyBatch(ctx context.Context, texts []string) ([]model.Result, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many emails are classified per forward pass.
// Default: 32.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how long Stream holds a partial batch before
// classifying it. Default: 200ms.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// Pipeline connects a classifier and an output.
type Pipeline struct {
	classifier    Classifier
	output        output.Output
	batchSize     int
	flushInterval time.Duration

	skipped atomic.Int64

	mu      sync.Mutex
	summary Summary
}

// New creates a Pipeline from the given components.
func New(c Classifier, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier:    c,
		output:        out,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run classifies a fixed set of emails in batches, writing one record per
// email in input order.
func (p *Pipeline) Run(ctx context.Context, emails []model.Email) (Summary, error) {
	for start := 0; start < len(emails); start += p.batchSize {
		end := min(start+p.batchSize, len(emails))
		if err := p.process(ctx, emails[start:end]); err != nil {
			return p.Summary(), err
		}
	}
	return p.Summary(), nil
}

// Stream classifies emails as they arrive. A batch is sent to the model when
// it is full or when the flush interval passes. Stream returns when ch is
// closed or ctx is done; pending emails are classified before returning.
func (p *Pipeline) Stream(ctx context.Context, ch <-chan model.Email) (Summary, error) {
	buf := newStreamBuffer(p.process, p.flushInterval, p.batchSize)

	for {
		select {
		case <-ctx.Done():
			if err := buf.flush(context.WithoutCancel(ctx)); err != nil {
				return p.Summary(), err
			}
			return p.Summary(), ctx.Err()
		case email, ok := <-ch:
			if !ok {
				err := buf.flush(ctx)
				return p.Summary(), err
			}
			if buf.add(email) {
				if err := buf.flush(ctx); err != nil {
					return p.Summary(), err
				}
			}
		case <-buf.flushCh():
			if err := buf.flush(ctx); err != nil {
				return p.Summary(), err
			}
		}
	}
}

// process classifies one batch. When the batch call fails for a reason other
// than an unavailable model, each email is retried alone so one bad input
// does not sink its neighbours.
func (p *Pipeline) process(ctx context.Context, emails []model.Email) error {
	kept := make([]model.Email, 0, len(emails))
	texts := make([]string, 0, len(emails))
	for _, e := range emails {
		text := e.Text()
		if strings.TrimSpace(text) == "" {
			p.skip(e, engine.ErrEmptyInput)
			continue
		}
		kept = append(kept, e)
		texts = append(texts, text)
	}
	if len(kept) == 0 {
		return nil
	}

	results, err := p.classifier.ClassifyBatch(ctx, texts)
	if err == nil {
		for i, e := range kept {
			if err := p.write(ctx, e, results[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if fatal(ctx, err) {
		return fmt.Errorf("pipeline classify: %w", err)
	}

	slog.Debug("pipeline: batch failed, classifying individually", "size", len(kept), "error", err)
	for i, e := range kept {
		res, err := p.classifier.Classify(ctx, texts[i])
		if err != nil {
			if fatal(ctx, err) {
				return fmt.Errorf("pipeline classify: %w", err)
			}
			p.skip(e, err)
			continue
		}
		if err := p.write(ctx, e, res); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) write(ctx context.Context, e model.Email, res model.Result) error {
	rec := output.Record{
		ID:       e.ID,
		From:     e.From,
		Subject:  e.Subject,
		Result:   res,
		Expected: e.Expected,
	}
	if err := p.output.Write(ctx, rec); err != nil {
		return fmt.Errorf("pipeline output: %w", err)
	}
	p.mu.Lock()
	p.summary.add(rec)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) skip(e model.Email, err error) {
	p.skipped.Add(1)
	slog.Warn("pipeline: skipping email", "id", e.ID, "error", err)
}

// fatal reports errors that would fail every later email too.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, engine.ErrModelLoad)
}

// Summary returns the tallies so far.
func (p *Pipeline) Summary() Summary {
	p.mu.Lock()
	s := p.summary
	s.Counts = maps.Clone(p.summary.Counts)
	p.mu.Unlock()
	s.Skipped = int(p.skipped.Load())
	return s
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	if n := p.skipped.Load(); n > 0 {
		slog.Info("pipeline: closing", "skipped_emails", n)
	}
	return p.output.Close()
}
