// Package engine orchestrates one run end-to-end: fetch postings from every
// configured source, normalize and score them, drive submissions under the
// quota budget, and persist every lifecycle transition along the way.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dealseek/ma-pilot/internal/followup"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
	"github.com/dealseek/ma-pilot/internal/scoring"
	"github.com/dealseek/ma-pilot/internal/source"
	"github.com/dealseek/ma-pilot/internal/store"
	"github.com/dealseek/ma-pilot/internal/tailor"
)

const (
	defaultWorkers     = 4
	defaultCallTimeout = 60 * time.Second
)

// Options carries the profile-level knobs for a run. Everything stateful
// arrives through Deps.
type Options struct {
	User  string
	Query source.Query

	Normalizer posting.NormalizerConfig
	Profile    *scoring.Profile
	Weights    scoring.Weights

	FollowUpDelayDays []int
	MaxAttempts       int

	// Workers bounds concurrent source fetches; external calls never fan
	// out unbounded.
	Workers int
	// CallTimeout applies to each external call (fetch, tailor, submit,
	// send) individually.
	CallTimeout time.Duration
	// SubmissionsPerMinute paces submission bursts against platforms.
	SubmissionsPerMinute float64
}

// Deps aggregates the collaborators the engine drives.
type Deps struct {
	Store     store.Store
	Sources   []source.Fetcher
	Geocoder  posting.Geocoder
	Quota     *quota.Tracker
	Tailor    tailor.Tailor
	Fallback  tailor.Tailor
	Submitter Submitter
	FollowUps *followup.Scheduler
	Sender    followup.Sender
	Logger    *zap.Logger
}

// Engine drives orchestrated runs and follow-up ticks. Time enters only
// through the now parameters; the engine never reads a wall clock for
// scheduling decisions.
type Engine struct {
	opts    Options
	deps    Deps
	limiter *rate.Limiter
}

func New(opts Options, deps Deps) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.SubmissionsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.SubmissionsPerMinute/60), 1)
	}

	return &Engine{opts: opts, deps: deps, limiter: limiter}
}

// RunOnce executes one full run. Per-source and per-candidate failures are
// recorded in the report; only store failures abort, before any further
// submission can happen.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) (*RunReport, error) {
	report := &RunReport{
		StartedAt:      now,
		QuotaRemaining: make(map[string]quota.Remaining),
		SourceErrors:   make(map[string]string),
	}

	records := e.fetchAll(ctx, report)
	report.Fetched = len(records)

	normalizer := posting.NewNormalizer(e.opts.Normalizer, e.deps.Geocoder, e.deps.Logger)
	postings := normalizer.Normalize(ctx, records)
	report.Normalized = len(postings)

	// Postings are retained even when excluded from scheduling, so the
	// report pipeline can analyze what was seen.
	for _, p := range postings {
		if err := e.deps.Store.SavePosting(ctx, p); err != nil {
			return nil, fmt.Errorf("store integrity failure, aborting run before submissions: %w", err)
		}
	}

	candidates := e.scoreAndFilter(postings, report)

	e.deps.Logger.Info("scoring complete",
		zap.Int("scored", report.Scored),
		zap.Int("eligible", len(candidates)),
		zap.Int("excluded", report.Excluded),
	)

	if err := e.schedule(ctx, now, candidates, report); err != nil {
		return nil, err
	}

	for _, platform := range platformsOf(candidates) {
		remaining, err := e.deps.Quota.Remaining(ctx, e.opts.User, platform, now)
		if err != nil {
			return nil, fmt.Errorf("quota integrity failure: %w", err)
		}
		report.QuotaRemaining[platform] = remaining
	}

	report.FinishedAt = time.Now()
	e.saveSession(ctx, report)
	return report, nil
}

// Tick emits due follow-up actions and delivers them. Delivery failures are
// logged and reported, never fatal: the schedule advance already committed,
// so a lost email is not re-sent.
func (e *Engine) Tick(ctx context.Context, now time.Time) (int, error) {
	actions, err := e.deps.FollowUps.Tick(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, action := range actions {
		sendCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		err := e.deps.Sender.Send(sendCtx, action.Message)
		cancel()
		if err != nil {
			e.deps.Logger.Error("follow-up delivery failed",
				zap.Int64("application_id", action.ApplicationID),
				zap.String("company", action.Company),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}

// fetchAll queries every source with bounded concurrency. A failed source is
// reported and skipped; the run continues with degraded coverage.
func (e *Engine) fetchAll(ctx context.Context, report *RunReport) []posting.SourceRecord {
	var mu sync.Mutex
	var records []posting.SourceRecord

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Workers)

	for _, fetcher := range e.deps.Sources {
		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(groupCtx, e.opts.CallTimeout)
			defer cancel()

			batch, err := fetcher.Fetch(fetchCtx, e.opts.Query)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.SourceErrors[fetcher.Name()] = err.Error()
				e.deps.Logger.Warn("source fetch failed, continuing without it",
					zap.String("source", fetcher.Name()),
					zap.Error(err),
				)
			}
			records = append(records, batch...)
			return nil
		})
	}

	group.Wait()
	return records
}

func (e *Engine) scoreAndFilter(postings []*posting.Posting, report *RunReport) []scoring.ScoredPosting {
	var candidates []scoring.ScoredPosting
	for _, p := range postings {
		sp := scoring.Score(p, e.opts.Profile, e.opts.Weights)
		report.Scored++

		eligible := (sp.Tier == scoring.ScorePriority || sp.Tier == scoring.ScoreQualified) &&
			sp.Score >= e.opts.Profile.MinScore
		if !eligible {
			report.Excluded++
			continue
		}
		candidates = append(candidates, sp)
	}

	scoring.Order(candidates)
	return candidates
}

func (e *Engine) saveSession(ctx context.Context, report *RunReport) {
	session := &store.RunSession{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Fetched:    report.Fetched,
		Normalized: report.Normalized,
		Scored:     report.Scored,
		Excluded:   report.Excluded,
		Submitted:  report.Submitted,
		Failed:     report.Failed,
	}
	if len(report.SourceErrors) > 0 || len(report.CandidateErrors) > 0 {
		session.Notes = fmt.Sprintf("source_errors=%d candidate_errors=%d",
			len(report.SourceErrors), len(report.CandidateErrors))
	}

	// The run already happened; a failed stats row is not worth failing it.
	if err := e.deps.Store.SaveRunSession(ctx, session); err != nil {
		e.deps.Logger.Error("saving run session", zap.Error(err))
	}
}

func platformsOf(candidates []scoring.ScoredPosting) []string {
	seen := make(map[string]bool)
	var platforms []string
	for _, sp := range candidates {
		if !seen[sp.Posting.Source] {
			seen[sp.Posting.Source] = true
			platforms = append(platforms, sp.Posting.Source)
		}
	}
	return platforms
}
