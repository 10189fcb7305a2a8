// Package extract is the boundary to the model call that turns raw email
// text into structured job candidates. The pipeline treats it as a pure,
// possibly slow, possibly failing function.
package extract

import (
	"context"
	"time"
)

// EmailContext is the extractor input: sanitized text plus lightweight
// context about where it came from.
type EmailContext struct {
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Candidate mirrors the job entity minus identifier/timestamps. Optional
// fields are pointers: absent means unknown, not empty string.
type Candidate struct {
	Title       string
	Company     string
	Location    *string
	Remote      bool
	Description *string
	URL         string
	Salary      *string
	PostedAt    *string
	Source      string
	Relevance   *float64
}

type Extractor interface {
	// Extract may return an empty slice; it must not mutate persisted
	// state. Callers absorb a failure as "zero candidates" for that email.
	Extract(ctx context.Context, in EmailContext) ([]Candidate, error)
}
