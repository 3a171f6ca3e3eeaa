package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/crimson-sun/mailclass/internal/engine/onnx"
	"github.com/crimson-sun/mailclass/internal/engine/tokenizer"
	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/model"
)

// Resolver maps an identifier to local artifacts. *hub.Client implements it.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (hub.Snapshot, error)
}

// LoaderConfig holds the inference settings applied to every loaded model.
type LoaderConfig struct {
	// MaxTokens is the token budget including [CLS] and [SEP].
	// 0 means tokenizer.DefaultMaxTokens.
	MaxTokens      int
	IntraOpThreads int
	RuntimeLibrary string
}

// Loader resolves identifiers and assembles handles from their artifacts.
type Loader struct {
	resolver  Resolver
	cfg       LoaderConfig
	openModel func(path string, opts onnx.Options) (Model, error)
}

// NewLoader creates a Loader that runs models through ONNX Runtime.
func NewLoader(r Resolver, cfg LoaderConfig) *Loader {
	return &Loader{
		resolver: r,
		cfg:      cfg,
		openModel: func(path string, opts onnx.Options) (Model, error) {
			return onnx.NewSession(path, opts)
		},
	}
}

// Load implements LoadFunc.
func (l *Loader) Load(ctx context.Context, identifier string) (*Handle, error) {
	snap, err := l.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}

	tcfg, err := readTokenizerConfig(snap.TokenizerConfigPath)
	if err != nil {
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}
	if err := checkModelConfig(identifier, snap.ConfigPath); err != nil {
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}

	maxTokens := l.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = tokenizer.DefaultMaxTokens
	}
	if n := tcfg.maxLength(); n > 0 && n < maxTokens {
		maxTokens = n
	}
	tok, err := tokenizer.Load(snap.VocabPath,
		tokenizer.WithMaxTokens(maxTokens),
		tokenizer.WithLowercase(tcfg.lowercase()),
	)
	if err != nil {
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}

	m, err := l.openModel(snap.ModelPath, onnx.Options{
		RuntimeLibrary: l.cfg.RuntimeLibrary,
		IntraOpThreads: l.cfg.IntraOpThreads,
	})
	if err != nil {
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}

	h, err := NewHandle(identifier, tok, m)
	if err != nil {
		m.Close()
		return nil, &ModelLoadError{Identifier: identifier, Err: err}
	}
	slog.Debug("engine: handle assembled", "model", identifier, "dir", snap.Dir, "tokenizer", tok.String())
	return h, nil
}

// tokenizerConfig is the subset of tokenizer_config.json the engine reads.
type tokenizerConfig struct {
	DoLowerCase *bool `json:"do_lower_case"`
	// Tokenizers without a real limit report a huge sentinel value, which
	// does not fit an int.
	ModelMaxLength float64 `json:"model_max_length"`
}

func (c tokenizerConfig) lowercase() bool {
	return c.DoLowerCase == nil || *c.DoLowerCase
}

// maxLength returns the model's position limit, or 0 when there is none.
func (c tokenizerConfig) maxLength() int {
	if c.ModelMaxLength <= 0 || c.ModelMaxLength > 1<<20 {
		return 0
	}
	return int(c.ModelMaxLength)
}

// readTokenizerConfig returns defaults when path is empty.
func readTokenizerConfig(path string) (tokenizerConfig, error) {
	var cfg tokenizerConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("engine: read tokenizer config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("engine: parse %s: %w", path, err)
	}
	return cfg, nil
}

// modelConfig is the subset of config.json the engine reads.
type modelConfig struct {
	ID2Label map[string]string `json:"id2label"`
}

// checkModelConfig verifies that id2label agrees with the label schema. Names
// that parse as a known label must sit at that label's index; generic names
// such as LABEL_0 are accepted.
func checkModelConfig(id, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("engine: read model config: %w", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("engine: parse %s: %w", path, err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil
	}
	if len(cfg.ID2Label) != model.NumLabels {
		return fmt.Errorf("engine: id2label has %d entries, want %d", len(cfg.ID2Label), model.NumLabels)
	}

	names := make([]string, model.NumLabels)
	for i := range model.NumLabels {
		name, ok := cfg.ID2Label[strconv.Itoa(i)]
		if !ok {
			return fmt.Errorf("engine: id2label has no entry for index %d", i)
		}
		if l, err := model.ParseLabel(name); err == nil && int(l) != i {
			return fmt.Errorf("engine: id2label maps %d to %q, want %q", i, name, model.Label(i))
		}
		names[i] = name
	}
	slog.Debug("engine: model labels", "model", id, "id2label", names)
	return nil
}
