// Package tailor produces the per-posting document set (tailored resume
// summary and cover letter) used for a submission. Generation is an external
// collaborator; this package defines the capability and two implementations.
package tailor

import (
	"context"

	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/scoring"
)

// DocumentSet is the generated material attached to one submission.
type DocumentSet struct {
	ResumeSummary string
	CoverLetter   string
	// Ref identifies the set in the application record.
	Ref string
}

// Tailor generates documents for a posting. Implementations must honor the
// context's deadline; a timed-out generation is a transient failure.
type Tailor interface {
	Tailor(ctx context.Context, p *posting.Posting, profile *scoring.Profile) (*DocumentSet, error)
}
