package model

import "strings"

// Email is a message handed to the classifier, either typed by a user or
// produced by the sample inbox.
type Email struct {
	ID      string `json:"id,omitempty"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	// Expected is the known label for fixture data. Nil for user input.
	Expected *Label `json:"expected,omitempty"`
}

// Text joins subject and body the way the model saw them during training.
func (e Email) Text() string {
	switch {
	case e.Subject == "":
		return e.Body
	case e.Body == "":
		return e.Subject
	default:
		return strings.TrimSpace(e.Subject) + "\n" + e.Body
	}
}
