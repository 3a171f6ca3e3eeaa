package mailclass

import "github.com/crimson-sun/mailclass/internal/model"

// Prediction is the classification of one text.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Prediction struct {
	Label        string             `json:"label"`        // One of Labels()
	Confidence   float64            `json:"confidence"`   // Probability of Label, in [0, 1]
	Distribution map[string]float64 `json:"distribution"` // Probability per label, sums to 1
}

// Labels returns the category names in model output order.
func Labels() []string {
	return model.LabelNames()
}

func predictionFrom(r model.Result) Prediction {
	return Prediction{
		Label:        r.Label().String(),
		Confidence:   r.Confidence(),
		Distribution: r.DistributionMap(),
	}
}
