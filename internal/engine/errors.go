package engine

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors collaborators return to signal how a failure should be
// handled. Submitter and tailor implementations wrap these.
var (
	// ErrPostingGone means the posting no longer exists on the platform.
	ErrPostingGone = errors.New("posting no longer available")
	// ErrDuplicateSubmission means the platform itself rejected the
	// application as a duplicate.
	ErrDuplicateSubmission = errors.New("platform reported duplicate submission")
	// ErrRateLimited means the platform asked us to back off.
	ErrRateLimited = errors.New("platform rate limited the request")
	// ErrUnavailable means the collaborator is entirely down, not just
	// failing for this one item.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Class buckets a failure per the error-handling policy.
type Class int

const (
	// ClassTransient failures are retried on a later run, bounded by the
	// max-attempts limit; the quota slot is released immediately.
	ClassTransient Class = iota
	// ClassPermanent failures terminalize the application; never retried.
	ClassPermanent
	// ClassUnavailable failures skip the source or step for this run.
	ClassUnavailable
)

// Classify maps an error from a submission or tailoring call to its class.
// Unknown errors default to transient: retrying a broken item a bounded
// number of times is safer than silently terminalizing a good one.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrPostingGone), errors.Is(err, ErrDuplicateSubmission):
		return ClassPermanent
	case errors.Is(err, ErrUnavailable):
		return ClassUnavailable
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}
