package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/crimson-sun/mailclass/internal/output"
)

// Output writes JSON-encoded records, one per line, to a stream (normally
// os.Stdout).
type Output struct {
	mu        sync.Mutex
	enc       *json.Encoder
	verbosity output.Verbosity
}

// New creates a stream Output with verbosity-aware field omission and
// optional indented JSON.
func New(w io.Writer, verbosity output.Verbosity, indent bool) *Output {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return &Output{enc: enc, verbosity: verbosity}
}

func (o *Output) Write(_ context.Context, rec output.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.enc.Encode(output.FormatRecord(rec, o.verbosity)); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
