package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/tailor"
)

// SubmissionResult is what the platform-facing automation layer reports
// back after a successful submission.
type SubmissionResult struct {
	// Confirmation is a platform-provided reference, when one exists.
	Confirmation string
}

// Submitter performs the actual page interaction on a job board. The
// browser-automation implementation lives outside this module; failures
// must wrap the engine's sentinel errors for correct classification.
type Submitter interface {
	Submit(ctx context.Context, p *posting.Posting, docs *tailor.DocumentSet) (*SubmissionResult, error)
}

// DryRunSubmitter logs every would-be submission without touching any
// platform. The default submitter until a real automation layer is wired.
type DryRunSubmitter struct {
	Logger *zap.Logger
}

func (d *DryRunSubmitter) Submit(_ context.Context, p *posting.Posting, _ *tailor.DocumentSet) (*SubmissionResult, error) {
	d.Logger.Info("submission (dry run, not delivered)",
		zap.String("posting", p.ID()),
		zap.String("title", p.Title),
		zap.String("company", p.Company),
		zap.String("url", p.URL),
	)
	return &SubmissionResult{Confirmation: "dry-run"}, nil
}
