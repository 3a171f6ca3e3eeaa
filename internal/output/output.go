// Package output delivers classification records to their destinations.
package output

import (
	"context"

	"github.com/crimson-sun/mailclass/internal/model"
)

// Record is the classification of one email.
type Record struct {
	ID       string
	From     string
	Subject  string
	Result   model.Result
	Expected *model.Label // nil when the true label is unknown
}

// Correct reports whether the prediction matches the expected label. known is
// false for unlabeled emails.
func (r Record) Correct() (correct, known bool) {
	if r.Expected == nil {
		return false, false
	}
	return r.Result.Label() == *r.Expected, true
}

// Output defines the interface for record destinations.
type Output interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}
