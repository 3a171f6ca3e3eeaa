// Package hub resolves model identifiers to local artifact directories,
// downloading from a Hugging Face compatible hub when needed.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sethvargo/go-retry"
)

// DefaultEndpoint is the public Hugging Face hub.
const DefaultEndpoint = "https://huggingface.co"

const (
	defaultTimeout    = 5 * time.Minute
	defaultBackoff    = time.Second
	defaultMaxRetries = 3
)

var (
	// ErrNotFound means the repository, revision or file does not exist, or
	// is private and no usable token was sent.
	ErrNotFound = errors.New("hub: not found")

	// ErrInvalidIdentifier means the identifier is neither a local directory
	// nor a well-formed repository reference.
	ErrInvalidIdentifier = errors.New("hub: invalid model identifier")
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	URL        string
	Body       string // first 512 bytes
	retryAfter string // Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub: GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithToken sets the Bearer token used for private repositories. An empty
// token sends no Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCacheDir sets where downloaded snapshots are stored.
func WithCacheDir(dir string) Option {
	return func(c *Client) { c.cacheDir = dir }
}

// WithTimeout sets the HTTP client timeout for a single file. Default: 5m.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithProgress renders a download progress bar for each file on w.
func WithProgress(w io.Writer) Option {
	return func(c *Client) { c.progress = w }
}

// WithBackoff sets the base delay and retry count for 429/5xx responses.
// Default: 1s doubling, 3 retries.
func WithBackoff(base time.Duration, maxRetries uint64) Option {
	return func(c *Client) {
		c.backoff = base
		c.maxRetries = maxRetries
	}
}

// Client downloads model snapshots from a hub.
type Client struct {
	endpoint   string
	token      string
	cacheDir   string
	httpClient *http.Client
	progress   io.Writer
	backoff    time.Duration
	maxRetries uint64
}

// New creates a Client for the given hub endpoint. An empty endpoint means
// DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		cacheDir:   DefaultCacheDir(),
		httpClient: &http.Client{Timeout: defaultTimeout},
		backoff:    defaultBackoff,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultCacheDir returns $XDG_CACHE_HOME/mailclass/models, falling back to
// a relative directory when no user cache dir is known.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".cache", "mailclass", "models")
	}
	return filepath.Join(base, "mailclass", "models")
}

// CacheDir returns the snapshot cache root.
func (c *Client) CacheDir() string {
	return c.cacheDir
}

// download fetches url into dest. The body is streamed to a temp file in the
// destination directory and renamed into place, so a failed transfer never
// leaves a partial artifact behind. 429 and 5xx responses are retried with
// exponential backoff, honoring Retry-After.
func (c *Client) download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("hub: %w", err)
	}

	var lastErr *APIError
	exp := retry.NewExponential(c.backoff)
	b := retry.WithMaxRetries(c.maxRetries, retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := exp.Next()
		if d, ok := retryAfter(lastErr); ok {
			return d, stop
		}
		return next, stop
	}))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.fetchOnce(ctx, url, dest)
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500) {
			lastErr = apiErr
			slog.Warn("hub: retrying download", "url", url, "status", apiErr.StatusCode)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
		case http.StatusTooManyRequests:
			apiErr.retryAfter = resp.Header.Get("Retry-After")
		}
		return apiErr
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	var w io.Writer = tmp
	if c.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(c.progress),
			progressbar.OptionSetDescription(filepath.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("hub: GET %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	return nil
}

// retryAfter returns the Retry-After delay of a 429 response, in seconds.
func retryAfter(lastErr *APIError) (time.Duration, bool) {
	if lastErr == nil || lastErr.StatusCode != http.StatusTooManyRequests || lastErr.retryAfter == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(lastErr.retryAfter)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
