package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/scoring"
	"github.com/dealseek/ma-pilot/internal/store"
	"github.com/dealseek/ma-pilot/internal/tailor"
)

// schedule walks candidates in score order and attempts a submission for
// each. Per-candidate failures mark the application and move on; store
// errors abort because a half-recorded submission is worse than a stopped
// run.
func (e *Engine) schedule(ctx context.Context, now time.Time, candidates []scoring.ScoredPosting, report *RunReport) error {
	// One quota refusal stops that platform for the rest of the run;
	// later candidates for it stay pending without another reservation
	// round-trip.
	stopped := make(map[string]bool)

	// When the primary tailor is unavailable the run degrades to the
	// static fallback once, instead of burning the timeout per candidate.
	tailorer := e.deps.Tailor
	degraded := false

	for _, sp := range candidates {
		if ctx.Err() != nil {
			e.deps.Logger.Warn("run canceled mid-schedule", zap.Error(ctx.Err()))
			return nil
		}

		platform := sp.Posting.Source
		logger := e.deps.Logger.With(
			zap.String("posting", sp.Posting.ID()),
			zap.String("company", sp.Posting.Company),
			zap.Float64("score", sp.Score),
		)

		app, err := e.pendingApplication(ctx, sp, now)
		if err != nil {
			return fmt.Errorf("store integrity failure: %w", err)
		}
		if app == nil {
			report.SkippedExisting++
			continue
		}

		if stopped[platform] {
			report.SkippedQuota++
			continue
		}

		ok, err := e.deps.Quota.TryReserve(ctx, e.opts.User, platform, now)
		if err != nil {
			return fmt.Errorf("quota integrity failure: %w", err)
		}
		if !ok {
			logger.Info("quota exhausted, leaving pending", zap.String("platform", platform))
			stopped[platform] = true
			report.SkippedQuota++
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			if rerr := e.deps.Quota.Release(context.WithoutCancel(ctx), e.opts.User, platform, now); rerr != nil {
				return fmt.Errorf("quota integrity failure: %w", rerr)
			}
			logger.Warn("run canceled while pacing", zap.Error(err))
			return nil
		}

		docs, err := e.tailorDocs(ctx, sp, tailorer)
		if err != nil && Classify(err) == ClassUnavailable && !degraded && e.deps.Fallback != nil {
			logger.Warn("document tailor unavailable, degrading to static templates", zap.Error(err))
			tailorer = e.deps.Fallback
			degraded = true
			docs, err = e.tailorDocs(ctx, sp, tailorer)
		}
		if err != nil {
			if rerr := e.deps.Quota.Release(ctx, e.opts.User, platform, now); rerr != nil {
				return fmt.Errorf("quota integrity failure: %w", rerr)
			}
			if ferr := e.failCandidate(ctx, app, now, err, report); ferr != nil {
				return ferr
			}
			continue
		}

		submitCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		result, err := e.deps.Submitter.Submit(submitCtx, sp.Posting, docs)
		cancel()
		if err != nil {
			if rerr := e.deps.Quota.Release(ctx, e.opts.User, platform, now); rerr != nil {
				return fmt.Errorf("quota integrity failure: %w", rerr)
			}
			if ferr := e.failCandidate(ctx, app, now, err, report); ferr != nil {
				return ferr
			}
			continue
		}

		if err := app.Transition(application.StatusSubmitted, now); err != nil {
			return fmt.Errorf("recording submission for %s: %w", sp.Posting.ID(), err)
		}
		app.Score = sp.Score
		app.DocumentsRef = docs.Ref
		app.SeedFollowUps(now, e.opts.FollowUpDelayDays)
		if err := e.deps.Store.UpdateApplication(ctx, app); err != nil {
			return fmt.Errorf("store integrity failure: %w", err)
		}

		report.Submitted++
		logger.Info("application submitted",
			zap.String("platform", platform),
			zap.String("confirmation", result.Confirmation),
		)
	}
	return nil
}

// pendingApplication returns the application to act on for this candidate,
// creating a pending row if none exists. A nil application means the posting
// was already handled and must not be re-submitted.
func (e *Engine) pendingApplication(ctx context.Context, sp scoring.ScoredPosting, now time.Time) (*application.Application, error) {
	key := sp.Posting.DedupKey()

	existing, err := e.deps.Store.GetApplicationByPostingKey(ctx, e.opts.User, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// fall through to create
	case err != nil:
		return nil, err
	case existing.Status == application.StatusPending:
		return existing, nil
	default:
		return nil, nil
	}

	app := &application.Application{
		User:       e.opts.User,
		Platform:   sp.Posting.Source,
		PostingID:  sp.Posting.ID(),
		PostingKey: key,
		Title:      sp.Posting.Title,
		Company:    sp.Posting.Company,
		URL:        sp.Posting.URL,
		Score:      sp.Score,
		Status:     application.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.deps.Store.CreateApplication(ctx, app); err != nil {
		// A concurrent writer beat us to the key; treat as already handled.
		if errors.Is(err, store.ErrDuplicateApplication) {
			return nil, nil
		}
		return nil, err
	}
	return app, nil
}

func (e *Engine) tailorDocs(ctx context.Context, sp scoring.ScoredPosting, t tailor.Tailor) (*tailor.DocumentSet, error) {
	tailorCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return t.Tailor(tailorCtx, sp.Posting, e.opts.Profile)
}

// failCandidate records a failed attempt: permanent errors exclude the
// posting outright, transient ones keep it retryable until max attempts.
func (e *Engine) failCandidate(ctx context.Context, app *application.Application, now time.Time, cause error, report *RunReport) error {
	report.Failed++
	report.CandidateErrors = append(report.CandidateErrors,
		fmt.Sprintf("%s: %v", app.PostingID, cause))

	app.Attempts++
	app.LastError = cause.Error()

	var target application.Status
	switch Classify(cause) {
	case ClassPermanent:
		target = application.StatusExcluded
	default:
		target = application.StatusFailedTransient
	}

	if err := app.Transition(target, now); err != nil {
		return fmt.Errorf("recording failure for %s: %w", app.PostingID, err)
	}

	if target == application.StatusFailedTransient {
		next := application.StatusPending
		if app.Attempts >= e.opts.MaxAttempts {
			next = application.StatusAbandoned
		}
		if err := app.Transition(next, now); err != nil {
			return fmt.Errorf("recording failure for %s: %w", app.PostingID, err)
		}
	}

	if err := e.deps.Store.UpdateApplication(ctx, app); err != nil {
		return fmt.Errorf("store integrity failure: %w", err)
	}

	e.deps.Logger.Warn("submission attempt failed",
		zap.String("posting", app.PostingID),
		zap.Int("attempts", app.Attempts),
		zap.String("status", string(app.Status)),
		zap.Error(cause),
	)
	return nil
}
