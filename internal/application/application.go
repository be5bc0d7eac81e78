// Package application defines the submission lifecycle record and its
// status state machine.
//
// Valid status graph:
//
//	pending ──► submitted ──► responded | rejected | no_response
//	   │             │
//	   │             └──► failed_transient ──► pending (bounded retries)
//	   │                        │
//	   │                        └──► abandoned (attempts exhausted)
//	   └──► excluded
//
// responded, rejected, no_response, abandoned and excluded are terminal.
package application

import (
	"fmt"
	"time"
)

// Status values for an application. Persisted as strings.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSubmitted       Status = "submitted"
	StatusResponded       Status = "responded"
	StatusRejected        Status = "rejected"
	StatusNoResponse      Status = "no_response"
	StatusFailedTransient Status = "failed_transient"
	StatusAbandoned       Status = "abandoned"
	StatusExcluded        Status = "excluded"
)

// DefaultMaxAttempts bounds transient-failure retries before abandonment.
const DefaultMaxAttempts = 3

var validTransitions = map[Status][]Status{
	StatusPending:         {StatusSubmitted, StatusExcluded, StatusFailedTransient},
	StatusSubmitted:       {StatusResponded, StatusRejected, StatusNoResponse, StatusFailedTransient},
	StatusFailedTransient: {StatusPending, StatusAbandoned},
	// terminal states have no outgoing transitions
}

// ParseStatus converts a stored string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSubmitted, StatusResponded, StatusRejected,
		StatusNoResponse, StatusFailedTransient, StatusAbandoned, StatusExcluded:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTransitionAllowed reports whether moving from → to is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// Application records one submission attempt and its lifecycle for a posting
// under a user. Never deleted, only terminalized.
type Application struct {
	ID         int64
	User       string
	Platform   string
	PostingID  string
	PostingKey string // cross-source dedup key of the posting

	Title   string
	Company string
	URL     string
	Score   float64

	Status      Status
	SubmittedAt *time.Time
	Attempts    int
	LastError   string

	// FollowUps is the ordered schedule of pending send timestamps.
	// FollowUpsSent counts how many of them have already gone out.
	FollowUps     []time.Time
	FollowUpsSent int

	DocumentsRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition validates and applies a status change in memory. Persistence is
// the caller's responsibility and must happen before the caller moves on.
func (a *Application) Transition(to Status, now time.Time) error {
	if !IsTransitionAllowed(a.Status, to) {
		return fmt.Errorf("illegal application transition %s -> %s", a.Status, to)
	}

	a.Status = to
	a.UpdatedAt = now
	if to == StatusSubmitted {
		t := now
		a.SubmittedAt = &t
	}
	return nil
}

// NextFollowUp returns the next unsent follow-up timestamp, or false when the
// schedule is exhausted.
func (a *Application) NextFollowUp() (time.Time, bool) {
	if a.FollowUpsSent >= len(a.FollowUps) {
		return time.Time{}, false
	}
	return a.FollowUps[a.FollowUpsSent], true
}

// SeedFollowUps builds the follow-up schedule from configured day offsets
// relative to the submission time.
func (a *Application) SeedFollowUps(submittedAt time.Time, delayDays []int) {
	a.FollowUps = a.FollowUps[:0]
	for _, days := range delayDays {
		a.FollowUps = append(a.FollowUps, submittedAt.AddDate(0, 0, days))
	}
	a.FollowUpsSent = 0
}
