package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Result is the outcome of classifying one piece of text. It is immutable:
// fields are only reachable through accessors, and Distribution returns a copy.
type Result struct {
	label        Label
	confidence   float64
	distribution []float64
}

// sumTolerance bounds how far a distribution may drift from summing to 1.
const sumTolerance = 1e-4

// NewResult builds a Result from a probability vector over all labels. The
// vector must be non-negative and sum to 1. The predicted label is the
// argmax, with ties going to the lowest index.
func NewResult(dist []float64) (Result, error) {
	if len(dist) != NumLabels {
		return Result{}, fmt.Errorf("model: distribution has %d entries, want %d", len(dist), NumLabels)
	}
	var sum float64
	for i, p := range dist {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return Result{}, fmt.Errorf("model: distribution entry %d is %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > sumTolerance {
		return Result{}, fmt.Errorf("model: distribution sums to %v, want 1", sum)
	}
	best := 0
	for i := 1; i < len(dist); i++ {
		if dist[i] > dist[best] {
			best = i
		}
	}
	d := make([]float64, len(dist))
	copy(d, dist)
	return Result{label: Label(best), confidence: d[best], distribution: d}, nil
}

func (r Result) Label() Label { return r.label }

func (r Result) Confidence() float64 { return r.confidence }

// Distribution returns the probability for each label in index order.
func (r Result) Distribution() []float64 {
	out := make([]float64, len(r.distribution))
	copy(out, r.distribution)
	return out
}

// DistributionMap keys the distribution by label display name.
func (r Result) DistributionMap() map[string]float64 {
	m := make(map[string]float64, len(r.distribution))
	for i, p := range r.distribution {
		m[Label(i).String()] = p
	}
	return m
}

// IsZero reports whether r was never produced by NewResult.
func (r Result) IsZero() bool {
	return r.distribution == nil
}

type resultJSON struct {
	Label        string             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Distribution map[string]float64 `json:"distribution"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Label:        r.label.String(),
		Confidence:   r.confidence,
		Distribution: r.DistributionMap(),
	})
}
