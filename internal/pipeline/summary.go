package pipeline

import "github.com/crimson-sun/mailclass/internal/output"

// Summary tallies a pipeline run.
type Summary struct {
	Classified int
	Skipped    int
	Counts     map[string]int // by label display name

	// Labeled counts emails that carried an expected label; Correct counts
	// those whose prediction matched it.
	Labeled int
	Correct int
}

func (s *Summary) add(rec output.Record) {
	if s.Counts == nil {
		s.Counts = make(map[string]int)
	}
	s.Classified++
	s.Counts[rec.Result.Label().String()]++
	if correct, known := rec.Correct(); known {
		s.Labeled++
		if correct {
			s.Correct++
		}
	}
}

// Accuracy is Correct/Labeled. ok is false when no email was labeled.
func (s Summary) Accuracy() (acc float64, ok bool) {
	if s.Labeled == 0 {
		return 0, false
	}
	return float64(s.Correct) / float64(s.Labeled), true
}
