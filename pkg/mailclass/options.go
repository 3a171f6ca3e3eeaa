package mailclass

import (
	"io"
	"net/http"

	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/model"
)

type options struct {
	model          string
	endpoint       string
	token          string
	cacheDir       string
	httpClient     *http.Client
	progress       io.Writer
	maxTokens      int
	intraOpThreads int
	runtimeLibrary string
	lazy           bool
}

// Option configures a Classifier.
type Option func(*options)

// WithModel sets the model: a local directory holding model.onnx and
// vocab.txt, or a hub repository "owner/name", optionally "@revision".
// Default: kaisarhossain/email_classifier_model.
func WithModel(identifier string) Option {
	return func(o *options) {
		o.model = identifier
	}
}

// WithHubEndpoint sets the hub base URL. Default: https://huggingface.co.
func WithHubEndpoint(url string) Option {
	return func(o *options) {
		o.endpoint = url
	}
}

// WithToken sets the hub access token for private repositories.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithCacheDir sets where downloaded models are stored.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithHTTPClient replaces the HTTP client used for downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithDownloadProgress renders a progress bar on w while model files download.
func WithDownloadProgress(w io.Writer) Option {
	return func(o *options) {
		o.progress = w
	}
}

// WithMaxTokens sets the token budget including [CLS] and [SEP]. Longer
// texts keep their beginning. Default: 256.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		o.maxTokens = n
	}
}

// WithIntraOpThreads bounds ONNX Runtime per-operator parallelism.
func WithIntraOpThreads(n int) Option {
	return func(o *options) {
		o.intraOpThreads = n
	}
}

// WithRuntimeLibrary sets the path to the ONNX Runtime shared library.
func WithRuntimeLibrary(path string) Option {
	return func(o *options) {
		o.runtimeLibrary = path
	}
}

// WithLazyLoad defers loading the model to the first Classify call.
func WithLazyLoad() Option {
	return func(o *options) {
		o.lazy = true
	}
}

func defaultOptions() options {
	return options{
		model:    model.DefaultIdentifier,
		endpoint: hub.DefaultEndpoint,
	}
}

func (o options) hubOptions() []hub.Option {
	var opts []hub.Option
	if o.token != "" {
		opts = append(opts, hub.WithToken(o.token))
	}
	if o.cacheDir != "" {
		opts = append(opts, hub.WithCacheDir(o.cacheDir))
	}
	if o.httpClient != nil {
		opts = append(opts, hub.WithHTTPClient(o.httpClient))
	}
	if o.progress != nil {
		opts = append(opts, hub.WithProgress(o.progress))
	}
	return opts
}
