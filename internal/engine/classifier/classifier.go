// Package classifier turns a model's logits into a probability distribution
// and a predicted label.
package classifier

import (
	"fmt"
	"math"

	"github.com/crimson-sun/mailclass/internal/model"
)

// Softmax converts logits to probabilities. The maximum logit is subtracted
// before exponentiation, so large logits do not overflow. Non-finite logits
// are rejected.
func Softmax(logits []float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("classifier: empty logits")
	}
	maxLogit := math.Inf(-1)
	for i, l := range logits {
		v := float64(l)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("classifier: logit %d is not finite (%v)", i, v)
		}
		if v > maxLogit {
			maxLogit = v
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(float64(l) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Decide classifies one row of logits.
func Decide(logits []float32) (model.Result, error) {
	if len(logits) != model.NumLabels {
		return model.Result{}, fmt.Errorf("classifier: got %d logits, want %d", len(logits), model.NumLabels)
	}
	probs, err := Softmax(logits)
	if err != nil {
		return model.Result{}, err
	}
	return model.NewResult(probs)
}

// DecideBatch classifies row-major [n * NumLabels] logits.
func DecideBatch(logits []float32, n int) ([]model.Result, error) {
	if len(logits) != n*model.NumLabels {
		return nil, fmt.Errorf("classifier: got %d logits for %d rows, want %d",
			len(logits), n, n*model.NumLabels)
	}
	results := make([]model.Result, n)
	for i := 0; i < n; i++ {
		r, err := Decide(logits[i*model.NumLabels : (i+1)*model.NumLabels])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		results[i] = r
	}
	return results, nil
}
