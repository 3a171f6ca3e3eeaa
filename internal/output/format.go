package output

import (
	"fmt"
	"strings"
)

// Verbosity controls how much of a record is serialized.
type Verbosity int

const (
	// Minimal keeps the id, label and confidence.
	Minimal Verbosity = iota
	// Standard adds sender, subject and the expected label.
	Standard
	// Full adds the probability distribution.
	Full
)

// ParseVerbosity converts "minimal", "standard" or "full".
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("output: unknown verbosity %q", s)
}

// RecordJSON is the wire form of a Record.
type RecordJSON struct {
	ID           string             `json:"id,omitempty"`
	From         string             `json:"from,omitempty"`
	Subject      string             `json:"subject,omitempty"`
	Label        string             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
	Expected     string             `json:"expected,omitempty"`
	Correct      *bool              `json:"correct,omitempty"`
}

// FormatRecord returns the wire form of rec with fields stripped according
// to verbosity.
func FormatRecord(rec Record, verbosity Verbosity) RecordJSON {
	out := RecordJSON{
		ID:         rec.ID,
		Label:      rec.Result.Label().String(),
		Confidence: rec.Result.Confidence(),
	}
	if verbosity >= Standard {
		out.From = rec.From
		out.Subject = rec.Subject
		if correct, known := rec.Correct(); known {
			out.Expected = rec.Expected.String()
			out.Correct = &correct
		}
	}
	if verbosity >= Full {
		out.Distribution = rec.Result.DistributionMap()
	}
	return out
}
