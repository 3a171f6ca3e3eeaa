package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"

	"github.com/crimson-sun/mailclass/internal/config"
	"github.com/crimson-sun/mailclass/internal/engine"
	"github.com/crimson-sun/mailclass/internal/hub"
	"github.com/crimson-sun/mailclass/internal/output"
	"github.com/crimson-sun/mailclass/internal/output/async"
	"github.com/crimson-sun/mailclass/internal/output/file"
	"github.com/crimson-sun/mailclass/internal/output/multi"
	"github.com/crimson-sun/mailclass/internal/output/pretty"
	"github.com/crimson-sun/mailclass/internal/output/stdout"
	"github.com/crimson-sun/mailclass/internal/output/webhook"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
)

// newHubClient builds the hub client from configuration. progress may be nil.
func newHubClient(c *config.Config, progress io.Writer) *hub.Client {
	opts := []hub.Option{
		hub.WithToken(c.Hub.Token),
		hub.WithCacheDir(c.Hub.CacheDir),
		hub.WithTimeout(c.Hub.Timeout),
	}
	if progress != nil {
		opts = append(opts, hub.WithProgress(progress))
	}
	return hub.New(c.Hub.Endpoint, opts...)
}

// newEngine wires hub, loader and cache into an engine for the configured
// model. The caller closes it.
func newEngine(c *config.Config, progress io.Writer) *engine.Engine {
	loader := engine.NewLoader(newHubClient(c, progress), engine.LoaderConfig{
		MaxTokens:      c.Engine.MaxTokens,
		IntraOpThreads: c.Engine.IntraOpThreads,
		RuntimeLibrary: c.Engine.RuntimeLib,
	})
	return engine.New(engine.NewCache(loader.Load), c.Model.Ref())
}

// newOutput builds the record destinations: the terminal in the configured
// format, plus the NDJSON file and webhook when configured.
func newOutput(c *config.Config, w io.Writer, verbosity output.Verbosity) (output.Output, error) {
	var primary output.Output
	switch c.Output.Format {
	case "ndjson":
		primary = stdout.New(w, verbosity, false)
	default:
		primary = pretty.New(w, verbosity)
	}
	outs := []output.Output{primary}

	if c.Output.Path != "" {
		var opts []file.Option
		if c.Output.MaxBytes > 0 {
			opts = append(opts, file.WithMaxSize(c.Output.MaxBytes))
		}
		f, err := file.New(c.Output.Path, verbosity, opts...)
		if err != nil {
			return nil, err
		}
		outs = append(outs, f)
	}

	if c.Output.WebhookURL != "" {
		hook := webhook.New(c.Output.WebhookURL, webhook.WithVerbosity(verbosity))
		outs = append(outs, async.New(hook, async.WithOnError(func(err error) {
			slog.Warn("webhook delivery failed", "error", err)
		})))
	}

	if len(outs) == 1 {
		return primary, nil
	}
	return multi.New(outs...), nil
}

// hint suggests a fix for the common failure classes.
func hint(err error) string {
	switch {
	case errors.Is(err, hub.ErrNotFound):
		return "the model was not found; check --model, or set HF_TOKEN for private repositories"
	case errors.Is(err, engine.ErrModelLoad):
		return "the model could not be loaded; check network access and engine.runtime_lib, or run 'mailclass fetch'"
	case errors.Is(err, engine.ErrEmptyInput):
		return "pass the email text as arguments or on stdin"
	case errors.Is(err, engine.ErrInference):
		return "the model failed on this input; rerun with --log-level debug for details"
	}
	return ""
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
