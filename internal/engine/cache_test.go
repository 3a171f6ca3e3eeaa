package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/mailclass/internal/hub"
)

// countingLoader builds fake-model handles and counts how often it runs.
type countingLoader struct {
	t       *testing.T
	calls   atomic.Int32
	release chan struct{} // when set, loads block until closed
	started chan struct{} // when set, receives once per load that begins
	fail    func(id string) error
	models  sync.Map // id -> *fakeModel
}

func (l *countingLoader) load(ctx context.Context, id string) (*Handle, error) {
	l.calls.Add(1)
	if l.started != nil {
		select {
		case l.started <- struct{}{}:
		default:
		}
	}
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.fail != nil {
		if err := l.fail(id); err != nil {
			return nil, err
		}
	}
	m := newFakeModel()
	l.models.Store(id, m)
	return NewHandle(id, newTestTokenizer(l.t), m)
}

func TestCacheLoadIdempotent(t *testing.T) {
	l := &countingLoader{t: t}
	c := NewCache(l.load)

	h1, err := c.Load(context.Background(), "acme/mail")
	require.NoError(t, err)
	h2, err := c.Load(context.Background(), "acme/mail")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.EqualValues(t, 1, l.calls.Load())
	assert.True(t, c.Loaded("acme/mail"))
	assert.Equal(t, []string{"acme/mail"}, c.Identifiers())
}

func TestCacheDistinctIdentifiers(t *testing.T) {
	l := &countingLoader{t: t}
	c := NewCache(l.load)

	a, err := c.Load(context.Background(), "acme/a")
	require.NoError(t, err)
	b, err := c.Load(context.Background(), "acme/b")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, []string{"acme/a", "acme/b"}, c.Identifiers())
}

func TestCacheConcurrentLoadsCoalesce(t *testing.T) {
	l := &countingLoader{t: t, release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCache(l.load)

	const callers = 16
	handles := make([]*Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = c.Load(context.Background(), "acme/mail")
		}()
	}

	<-l.started
	require.Eventually(t, func() bool { return c.waiting.Load() == callers },
		time.Second, time.Millisecond, "every caller must be waiting on the in-flight load")
	assert.False(t, c.Loaded("acme/mail"))
	close(l.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.EqualValues(t, 1, l.calls.Load(), "concurrent loads must share one fetch")
}

func TestCacheWaiterSurvivesOtherCallerCancel(t *testing.T) {
	l := &countingLoader{t: t, release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCache(l.load)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Load(ctxA, "acme/mail")
		errA <- err
	}()
	<-l.started

	type result struct {
		h   *Handle
		err error
	}
	resB := make(chan result, 1)
	go func() {
		h, err := c.Load(context.Background(), "acme/mail")
		resB <- result{h, err}
	}()
	require.Eventually(t, func() bool { return c.waiting.Load() == 2 }, time.Second, time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrModelLoad, "a caller's own cancellation is not a load failure")

	close(l.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.NotNil(t, b.h)
	assert.True(t, c.Loaded("acme/mail"))
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestCacheCallerDeadlineWhileLoading(t *testing.T) {
	l := &countingLoader{t: t, release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := NewCache(l.load)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Load(ctx, "acme/mail")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrModelLoad)

	close(l.release)
	require.Eventually(t, func() bool { return c.Loaded("acme/mail") }, time.Second, time.Millisecond,
		"the load finishes in the background and is cached")

	h, err := c.Load(context.Background(), "acme/mail")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestCacheFailureNotCached(t *testing.T) {
	var attempts atomic.Int32
	l := &countingLoader{t: t, fail: func(string) error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("resolve: %w", hub.ErrNotFound)
		}
		return nil
	}}
	c := NewCache(l.load)

	_, err := c.Load(context.Background(), "acme/flaky")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.ErrorIs(t, err, hub.ErrNotFound)

	var le *ModelLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "acme/flaky", le.Identifier)
	assert.False(t, c.Loaded("acme/flaky"))

	h, err := c.Load(context.Background(), "acme/flaky")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestCacheFailureLeavesOthersIntact(t *testing.T) {
	l := &countingLoader{t: t, fail: func(id string) error {
		if id == "acme/broken" {
			return errors.New("corrupt artifact")
		}
		return nil
	}}
	c := NewCache(l.load)

	good, err := c.Load(context.Background(), "acme/good")
	require.NoError(t, err)
	_, err = c.Load(context.Background(), "acme/broken")
	require.ErrorIs(t, err, ErrModelLoad)

	again, err := c.Load(context.Background(), "acme/good")
	require.NoError(t, err)
	assert.Same(t, good, again)
	assert.Equal(t, []string{"acme/good"}, c.Identifiers())
}

func TestCacheEmptyIdentifier(t *testing.T) {
	l := &countingLoader{t: t}
	c := NewCache(l.load)

	_, err := c.Load(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.Zero(t, l.calls.Load())
}

func TestCacheClose(t *testing.T) {
	l := &countingLoader{t: t}
	c := NewCache(l.load)

	_, err := c.Load(context.Background(), "acme/mail")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	v, ok := l.models.Load("acme/mail")
	require.True(t, ok)
	assert.True(t, v.(*fakeModel).closed.Load())

	_, err = c.Load(context.Background(), "acme/mail")
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.NoError(t, c.Close(), "second Close is a no-op")
}

// An identifier the hub does not know fails with a ModelLoadError and leaves
// nothing in the cache.
func TestCacheUnresolvableIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := hub.New(srv.URL, hub.WithCacheDir(t.TempDir()))
	c := NewCache(NewLoader(client, LoaderConfig{}).Load)

	_, err := c.Load(context.Background(), "no/such-model")
	require.Error(t, err)

	var le *ModelLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "no/such-model", le.Identifier)
	assert.ErrorIs(t, err, hub.ErrNotFound)
	assert.False(t, c.Loaded("no/such-model"))
	assert.Empty(t, c.Identifiers())
}
