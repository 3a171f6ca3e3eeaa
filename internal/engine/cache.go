package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCacheClosed is wrapped in the ModelLoadError returned after Close.
var ErrCacheClosed = errors.New("engine: cache closed")

// LoadFunc builds a handle for an identifier. Loader.Load is the production
// implementation.
type LoadFunc func(ctx context.Context, identifier string) (*Handle, error)

// Cache owns loaded handles keyed by identifier. Each identifier is loaded
// at most once at a time: concurrent callers share a single in-flight load.
// Failed loads leave no entry behind, so a later call tries again.
type Cache struct {
	load  LoadFunc
	group singleflight.Group

	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool

	waiting atomic.Int32 // callers blocked on an in-flight load
}

// NewCache creates an empty cache backed by load.
func NewCache(load LoadFunc) *Cache {
	return &Cache{load: load, handles: make(map[string]*Handle)}
}

// Load returns the handle for identifier, loading it on first use. Load
// failures are *ModelLoadError. A caller whose ctx ends while waiting gets
// ctx.Err(); the shared load keeps running for the remaining callers.
func (c *Cache) Load(ctx context.Context, identifier string) (*Handle, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, &ModelLoadError{Identifier: identifier, Err: errors.New("empty model identifier")}
	}
	if h, err := c.lookup(id); h != nil || err != nil {
		return h, err
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		if h, err := c.lookup(id); h != nil || err != nil {
			return h, err
		}

		start := time.Now()
		h, err := c.load(loadCtx, id)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			h.Close()
			return nil, ErrCacheClosed
		}
		c.handles[id] = h
		c.mu.Unlock()

		slog.Info("engine: model loaded", "model", id, "duration", time.Since(start))
		return h, nil
	})

	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			slog.Warn("engine: model load failed", "model", id, "shared", res.Shared, "error", res.Err)
			var le *ModelLoadError
			if errors.As(res.Err, &le) {
				return nil, res.Err
			}
			return nil, &ModelLoadError{Identifier: id, Err: res.Err}
		}
		return res.Val.(*Handle), nil
	}
}

func (c *Cache) lookup(id string) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, &ModelLoadError{Identifier: id, Err: ErrCacheClosed}
	}
	return c.handles[id], nil
}

// Loaded reports whether identifier has a cached handle.
func (c *Cache) Loaded(identifier string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.handles[strings.TrimSpace(identifier)]
	return ok
}

// Identifiers lists the cached identifiers in sorted order.
func (c *Cache) Identifiers() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.handles))
	for id := range c.handles {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close releases every handle. Later loads fail with ErrCacheClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for id, h := range c.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close %q: %w", id, err))
		}
	}
	c.handles = nil
	return errors.Join(errs...)
}
