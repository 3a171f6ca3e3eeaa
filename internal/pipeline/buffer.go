package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/crimson-sun/mailclass/internal/model"
)

// streamBuffer accumulates emails and hands them to process in batches,
// on a timer or when maxSize is reached.
type streamBuffer struct {
	process func(context.Context, []model.Email) error
	window  time.Duration
	maxSize int // 0 means unlimited

	mu      sync.Mutex
	pending []model.Email
	timer   *time.Timer
}

func newStreamBuffer(process func(context.Context, []model.Email) error, window time.Duration, maxSize int) *streamBuffer {
	return &streamBuffer{
		process: process,
		window:  window,
		maxSize: maxSize,
	}
}

// add appends an email to the buffer. If this is the first email, starts the
// flush timer. Returns true if the buffer is full and needs flushing.
func (b *streamBuffer) add(e model.Email) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, e)
	if len(b.pending) == 1 {
		b.timer = time.NewTimer(b.window)
	}
	return b.maxSize > 0 && len(b.pending) >= b.maxSize
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *streamBuffer) flushCh() <-chan time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// flush processes all pending emails.
func (b *streamBuffer) flush(ctx context.Context) error {
	b.mu.Lock()
	emails := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(emails) == 0 {
		return nil
	}
	return b.process(ctx, emails)
}
