package model

import (
	"fmt"
	"strings"
)

// Label is one category of the six-way email schema. The numeric value is the
// index into the model's output vector, so the order below must match the
// order the model was trained with.
type Label int

const (
	Promotions Label = iota
	Spam
	SocialMediaUpdates
	ForumUpdates
	CodeVerification
	WorkUpdates
)

// DefaultIdentifier is the hub repository of the fine-tuned BERT email
// classifier whose output order matches the labels below.
const DefaultIdentifier = "kaisarhossain/email_classifier_model"

// NumLabels is the width of the model output vector.
const NumLabels = 6

var labelNames = [NumLabels]string{
	"Promotions",
	"Spam",
	"Social Media Updates",
	"Forum Updates",
	"Code Verification",
	"Work Updates",
}

// Labels returns every label in index order.
func Labels() []Label {
	out := make([]Label, NumLabels)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// LabelNames returns the display names in index order.
func LabelNames() []string {
	out := make([]string, NumLabels)
	copy(out, labelNames[:])
	return out
}

// Valid reports whether l is inside the schema.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < NumLabels
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return labelNames[l]
}

// ParseLabel matches a display name case-insensitively. Underscores and
// hyphens are accepted in place of spaces ("code_verification").
func ParseLabel(s string) (Label, error) {
	norm := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s)))
	for i, name := range labelNames {
		if strings.ToLower(name) == norm {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("model: unknown label %q", s)
}

func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("model: invalid label %d", int(l))
	}
	return []byte(labelNames[l]), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
