// Package config loads mailclass settings from compiled defaults, an
// optional YAML file, an optional .env file and the environment, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/crimson-sun/mailclass/internal/engine/tokenizer"
	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/model"
	"github.com/crimson-sun/mailclass/internal/output"
)

// EnvPrefix marks environment variables read into the configuration.
// MAILCLASS_HUB_CACHE_DIR sets hub.cache_dir.
const EnvPrefix = "MAILCLASS_"

// DotenvFile is read from the working directory when present.
const DotenvFile = ".env"

// Config holds all mailclass configuration.
type Config struct {
	Model  ModelConfig  `koanf:"model"`
	Hub    HubConfig    `koanf:"hub"`
	Engine EngineConfig `koanf:"engine"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	Output OutputConfig `koanf:"output"`
}

// ModelConfig selects the classifier.
type ModelConfig struct {
	// Identifier is a local directory or a hub repository owner/name.
	Identifier string `koanf:"identifier"`
	// Revision pins a hub branch, tag or commit. Ignored for directories.
	Revision string `koanf:"revision"`
}

// Ref returns the identifier with the revision appended in @rev form.
func (m ModelConfig) Ref() string {
	if m.Revision == "" || strings.Contains(m.Identifier, "@") {
		return m.Identifier
	}
	if info, err := os.Stat(m.Identifier); err == nil && info.IsDir() {
		return m.Identifier
	}
	return m.Identifier + "@" + m.Revision
}

// HubConfig holds model hub access settings.
type HubConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Token    string        `koanf:"token"`
	CacheDir string        `koanf:"cache_dir"`
	Timeout  time.Duration `koanf:"timeout"`
}

// EngineConfig holds inference settings.
type EngineConfig struct {
	MaxTokens      int    `koanf:"max_tokens"`
	IntraOpThreads int    `koanf:"intra_op_threads"`
	RuntimeLib     string `koanf:"runtime_lib"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "text", "json"
}

// OutputConfig holds batch output settings.
type OutputConfig struct {
	Format     string `koanf:"format"`    // "pretty", "ndjson"
	Verbosity  string `koanf:"verbosity"` // "minimal", "standard", "full"
	Path       string `koanf:"path"`      // optional NDJSON file, written alongside stdout
	MaxBytes   int64  `koanf:"max_bytes"`
	WebhookURL string `koanf:"webhook_url"`
}

// Defaults returns the compiled-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"model.identifier":        model.DefaultIdentifier,
		"model.revision":          "",
		"hub.endpoint":            hub.DefaultEndpoint,
		"hub.token":               "",
		"hub.cache_dir":           hub.DefaultCacheDir(),
		"hub.timeout":             "5m",
		"engine.max_tokens":       tokenizer.DefaultMaxTokens,
		"engine.intra_op_threads": 0,
		"engine.runtime_lib":      "",
		"server.addr":             ":8080",
		"server.shutdown_timeout": "10s",
		"log.level":               "info",
		"log.format":              "text",
		"output.format":           "pretty",
		"output.verbosity":        "standard",
		"output.webhook_url":      "",
		"output.path":             "",
		"output.max_bytes":        0,
	}
}

// Load reads configuration. configPath may be empty; a missing .env file is
// not an error.
func Load(configPath string) (*Config, error) {
	return load(configPath, DotenvFile)
}

func load(configPath, dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			vars, err := readDotenv(dotenvPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(confmap.Provider(vars, "."), nil); err != nil {
				return nil, fmt.Errorf("config: %s: %w", dotenvPath, err)
			}
		}
	}

	// Unprefixed variables first so MAILCLASS_* wins.
	if err := k.Load(env.Provider("", ".", legacyKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// readDotenv maps the variables of a .env file onto config keys with the
// same rules as the process environment.
func readDotenv(path string) (map[string]any, error) {
	raw := koanf.New(".")
	if err := raw.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	out := make(map[string]any)
	for name, v := range raw.All() {
		key := legacyKey(name)
		if strings.HasPrefix(name, EnvPrefix) {
			key = envKey(name)
		}
		if key != "" {
			out[key] = v
		}
	}
	return out, nil
}

// envKey turns MAILCLASS_SECTION_FIELD_NAME into section.field_name.
// Variables without a section are dropped.
func envKey(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(rest, "_")
	if !ok || section == "" || field == "" {
		return ""
	}
	return section + "." + field
}

// legacyKey accepts the unprefixed variable names of the hub tooling.
func legacyKey(name string) string {
	switch name {
	case "HF_TOKEN":
		return "hub.token"
	case "HF_ENDPOINT":
		return "hub.endpoint"
	case "MODEL_REPO":
		return "model.identifier"
	}
	return ""
}

// Validate checks all config values and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Model.Identifier) == "" {
		errs = append(errs, fmt.Errorf("model.identifier must not be empty"))
	}

	if u, err := url.Parse(c.Hub.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("hub.endpoint must be an http(s) URL, got %q", c.Hub.Endpoint))
	}
	if c.Hub.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("hub.timeout must be positive, got %v", c.Hub.Timeout))
	}

	if c.Engine.MaxTokens != 0 && (c.Engine.MaxTokens < 3 || c.Engine.MaxTokens > 512) {
		errs = append(errs, fmt.Errorf("engine.max_tokens must be between 3 and 512, got %d", c.Engine.MaxTokens))
	}
	if c.Engine.IntraOpThreads < 0 {
		errs = append(errs, fmt.Errorf("engine.intra_op_threads must be >= 0, got %d", c.Engine.IntraOpThreads))
	}
	if c.Engine.RuntimeLib != "" {
		if _, err := os.Stat(c.Engine.RuntimeLib); err != nil {
			errs = append(errs, fmt.Errorf("engine.runtime_lib: %w", err))
		}
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr must not be empty"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be >= 0, got %v", c.Server.ShutdownTimeout))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Output.Format {
	case "pretty", "ndjson":
	default:
		errs = append(errs, fmt.Errorf("output.format must be pretty or ndjson, got %q", c.Output.Format))
	}
	if _, err := output.ParseVerbosity(c.Output.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("output.verbosity must be minimal, standard or full, got %q", c.Output.Verbosity))
	}
	if c.Output.WebhookURL != "" {
		if u, err := url.Parse(c.Output.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("output.webhook_url must be an http(s) URL, got %q", c.Output.WebhookURL))
		}
	}
	if c.Output.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("output.max_bytes must be >= 0, got %d", c.Output.MaxBytes))
	}

	return errors.Join(errs...)
}
