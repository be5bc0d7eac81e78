package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/followup"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
	"github.com/dealseek/ma-pilot/internal/scoring"
	"github.com/dealseek/ma-pilot/internal/source"
	"github.com/dealseek/ma-pilot/internal/store"
	"github.com/dealseek/ma-pilot/internal/tailor"
)

const (
	testLat = 40.7128
	testLon = -74.0060
)

type fakeFetcher struct {
	name    string
	records []posting.SourceRecord
	err     error
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(_ context.Context, _ source.Query) ([]posting.SourceRecord, error) {
	return f.records, f.err
}

type fakeTailor struct {
	err   error
	calls int
}

func (f *fakeTailor) Tailor(_ context.Context, p *posting.Posting, _ *scoring.Profile) (*tailor.DocumentSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &tailor.DocumentSet{Ref: "docs/" + p.ExternalID}, nil
}

// fakeSubmitter fails submissions for the posting IDs in errs.
type fakeSubmitter struct {
	errs      map[string]error
	submitted []string
}

func (f *fakeSubmitter) Submit(_ context.Context, p *posting.Posting, _ *tailor.DocumentSet) (*SubmissionResult, error) {
	if err := f.errs[p.ExternalID]; err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, p.ExternalID)
	return &SubmissionResult{Confirmation: "ok-" + p.ExternalID}, nil
}

type nullGeocoder struct{}

func (nullGeocoder) Geocode(_ context.Context, address string) (float64, float64, error) {
	return 0, 0, fmt.Errorf("no geocoder in tests, resolve %q upstream", address)
}

// testRecord produces a record near the search center with a resolved
// location so the geocoder is never consulted.
func testRecord(id, company string) posting.SourceRecord {
	lat, lon := testLat, testLon
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return posting.SourceRecord{
		Source:      "adzuna",
		ExternalID:  id,
		Title:       "M&A Analyst",
		Company:     company,
		Location:    "New York, NY",
		Lat:         &lat,
		Lon:         &lon,
		Description: "Own valuation and due diligence on live deals.",
		PostedAt:    &at,
		URL:         "https://example.com/" + id,
	}
}

type harness struct {
	engine    *Engine
	store     *store.Memory
	submitter *fakeSubmitter
	tailor    *fakeTailor
	fallback  *fakeTailor
}

// newHarness builds an engine around three candidates ordered by company
// tier: bulge bracket (90) ahead of boutique (85) ahead of generic (75).
func newHarness(t *testing.T, daily int, fetchers ...source.Fetcher) *harness {
	t.Helper()

	if len(fetchers) == 0 {
		fetchers = []source.Fetcher{&fakeFetcher{name: "adzuna", records: []posting.SourceRecord{
			testRecord("a", "Goldman Sachs"),
			testRecord("b", "Evercore"),
			testRecord("c", "Midtown Advisory"),
		}}}
	}

	st := store.NewMemory()
	submitter := &fakeSubmitter{errs: map[string]error{}}
	primary := &fakeTailor{}
	fallback := &fakeTailor{}

	renderer, err := followup.NewRenderer("", "Jane Doe", "jane@example.com")
	require.NoError(t, err)

	profile := &scoring.Profile{
		TargetLat:   testLat,
		TargetLon:   testLon,
		RadiusMiles: 25,
		Keywords:    []scoring.WeightedKeyword{{Text: "m&a", Weight: 1}},
		Companies: map[string]scoring.CompanyTier{
			"goldman sachs":    scoring.TierBulgeBracket,
			"evercore":         scoring.TierBoutique,
			"midtown advisory": scoring.TierOther,
		},
		MinScore: 50,
	}

	eng := New(Options{
		User: "jane",
		Query: source.Query{
			Keywords:    []string{"M&A analyst"},
			Location:    "New York, NY",
			RadiusMiles: 25,
		},
		Normalizer: posting.NormalizerConfig{
			TargetLat:   testLat,
			TargetLon:   testLon,
			RadiusMiles: 25,
		},
		Profile:           profile,
		Weights:           scoring.DefaultWeights(),
		FollowUpDelayDays: []int{7, 14},
		MaxAttempts:       3,
	}, Deps{
		Store:     st,
		Sources:   fetchers,
		Geocoder:  nullGeocoder{},
		Quota:     quota.NewTracker(st, quota.Limits{Daily: daily, Weekly: 100, WeekStart: time.Monday}),
		Tailor:    primary,
		Fallback:  fallback,
		Submitter: submitter,
		FollowUps: followup.NewScheduler(st, renderer, "jane", zap.NewNop()),
		Sender:    &followup.LogSender{Logger: zap.NewNop()},
		Logger:    zap.NewNop(),
	})

	return &harness{engine: eng, store: st, submitter: submitter, tailor: primary, fallback: fallback}
}

func runNow() time.Time {
	return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
}

func (h *harness) app(t *testing.T, externalID string) *application.Application {
	t.Helper()
	apps, err := h.store.ListApplications(context.Background(), store.ApplicationFilter{User: "jane"})
	require.NoError(t, err)
	for _, app := range apps {
		if app.PostingID == "adzuna:"+externalID {
			return app
		}
	}
	t.Fatalf("no application for posting %s", externalID)
	return nil
}

func TestRunOnceSubmitsInScoreOrderUnderQuota(t *testing.T) {
	h := newHarness(t, 2)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Equal(t, 3, report.Fetched)
	require.Equal(t, 3, report.Normalized)
	require.Equal(t, 3, report.Scored)
	require.Equal(t, 2, report.Submitted)
	require.Equal(t, 1, report.SkippedQuota)
	require.Equal(t, 0, report.Failed)

	// Highest scores got the budget.
	require.Equal(t, []string{"a", "b"}, h.submitter.submitted)

	require.Equal(t, application.StatusSubmitted, h.app(t, "a").Status)
	require.Equal(t, application.StatusSubmitted, h.app(t, "b").Status)
	// The quota-refused candidate keeps a pending record for the next run.
	require.Equal(t, application.StatusPending, h.app(t, "c").Status)

	require.Equal(t, 0, report.QuotaRemaining["adzuna"].Daily)
}

func TestRunOnceSeedsFollowUps(t *testing.T) {
	h := newHarness(t, 10)
	now := runNow()

	_, err := h.engine.RunOnce(context.Background(), now)
	require.NoError(t, err)

	app := h.app(t, "a")
	require.Len(t, app.FollowUps, 2)
	require.True(t, app.FollowUps[0].Equal(now.AddDate(0, 0, 7)))
	require.Equal(t, "docs/a", app.DocumentsRef)
	require.NotNil(t, app.SubmittedAt)
}

func TestRunOnceIsIdempotentAcrossRuns(t *testing.T) {
	h := newHarness(t, 2)
	now := runNow()

	first, err := h.engine.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, first.Submitted)

	// Same day: the submitted pair is skipped, the pending one is retried
	// but the daily budget is still spent.
	second, err := h.engine.RunOnce(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, second.Submitted)
	require.Equal(t, 2, second.SkippedExisting)
	require.Equal(t, 1, second.SkippedQuota)

	// Next day the pending candidate goes out.
	third, err := h.engine.RunOnce(context.Background(), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 1, third.Submitted)
	require.Equal(t, 2, third.SkippedExisting)
	require.Equal(t, application.StatusSubmitted, h.app(t, "c").Status)
}

func TestRunOnceReleasesQuotaOnTransientFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.submitter.errs["a"] = fmt.Errorf("submit: %w", context.DeadlineExceeded)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Equal(t, 2, report.Submitted)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.CandidateErrors, 1)

	app := h.app(t, "a")
	require.Equal(t, application.StatusPending, app.Status)
	require.Equal(t, 1, app.Attempts)
	require.NotEmpty(t, app.LastError)

	// Only the two successes consumed budget.
	require.Equal(t, 8, report.QuotaRemaining["adzuna"].Daily)
}

// flakyWindows passes writes through until the budget of allowed puts is
// spent, then fails every PutWindow.
type flakyWindows struct {
	quota.WindowStore
	allowed int
}

func (f *flakyWindows) PutWindow(ctx context.Context, w *quota.Window) error {
	if f.allowed <= 0 {
		return fmt.Errorf("put window: disk I/O error")
	}
	f.allowed--
	return f.WindowStore.PutWindow(ctx, w)
}

func TestRunOnceAbortsWhenReleaseFails(t *testing.T) {
	h := newHarness(t, 10)
	h.submitter.errs["a"] = fmt.Errorf("submit: %w", context.DeadlineExceeded)

	// Let the reservation's two window writes succeed, then fail the
	// writes backing the post-failure release.
	h.engine.deps.Quota = quota.NewTracker(
		&flakyWindows{WindowStore: h.store, allowed: 2},
		quota.Limits{Daily: 10, Weekly: 100, WeekStart: time.Monday},
	)

	_, err := h.engine.RunOnce(context.Background(), runNow())
	require.ErrorContains(t, err, "quota integrity failure")
}

func TestRunOnceExcludesOnPermanentFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.submitter.errs["b"] = fmt.Errorf("submit: %w", ErrPostingGone)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Equal(t, 1, report.Failed)
	require.Equal(t, application.StatusExcluded, h.app(t, "b").Status)

	// Permanently failed postings are not retried on the next run.
	second, err := h.engine.RunOnce(context.Background(), runNow().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, second.Failed)
	require.Equal(t, 3, second.SkippedExisting)
}

func TestRunOnceAbandonsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, 10)
	h.engine.opts.MaxAttempts = 2
	h.submitter.errs["a"] = fmt.Errorf("submit: %w", ErrRateLimited)

	now := runNow()
	_, err := h.engine.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, application.StatusPending, h.app(t, "a").Status)

	_, err = h.engine.RunOnce(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)

	app := h.app(t, "a")
	require.Equal(t, application.StatusAbandoned, app.Status)
	require.Equal(t, 2, app.Attempts)

	// Terminal: later runs leave it alone.
	third, err := h.engine.RunOnce(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, third.SkippedExisting)
}

func TestRunOnceDegradesToFallbackTailor(t *testing.T) {
	h := newHarness(t, 10)
	h.tailor.err = fmt.Errorf("generate: %w", ErrUnavailable)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Equal(t, 3, report.Submitted)
	require.Equal(t, 0, report.Failed)
	// The primary was tried once, then the run switched over for good.
	require.Equal(t, 1, h.tailor.calls)
	require.Equal(t, 3, h.fallback.calls)
}

func TestRunOnceRecordsSourceFailures(t *testing.T) {
	broken := &fakeFetcher{name: "boards", err: fmt.Errorf("fetch: %w", ErrUnavailable)}
	working := &fakeFetcher{name: "adzuna", records: []posting.SourceRecord{
		testRecord("a", "Goldman Sachs"),
	}}
	h := newHarness(t, 10, working, broken)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Contains(t, report.SourceErrors, "boards")
	require.Equal(t, 1, report.Submitted, "healthy sources must still be processed")
}

func TestRunOnceScoresBelowThresholdExcluded(t *testing.T) {
	weak := testRecord("weak", "Acme Logistics")
	weak.Title = "Warehouse Supervisor"
	weak.Description = "Forklift operations."
	fetcher := &fakeFetcher{name: "adzuna", records: []posting.SourceRecord{
		weak,
		testRecord("a", "Goldman Sachs"),
	}}
	h := newHarness(t, 10, fetcher)

	report, err := h.engine.RunOnce(context.Background(), runNow())
	require.NoError(t, err)

	require.Equal(t, 2, report.Scored)
	require.Equal(t, 1, report.Excluded)
	require.Equal(t, 1, report.Submitted)

	// The low scorer never gets an application record.
	apps, err := h.store.ListApplications(context.Background(), store.ApplicationFilter{User: "jane"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
}

func TestTickSendsDueFollowUps(t *testing.T) {
	h := newHarness(t, 10)
	now := runNow()

	_, err := h.engine.RunOnce(context.Background(), now)
	require.NoError(t, err)

	sent, err := h.engine.Tick(context.Background(), now.AddDate(0, 0, 8))
	require.NoError(t, err)
	require.Equal(t, 3, sent)

	// Idempotent at the same tick time.
	again, err := h.engine.Tick(context.Background(), now.AddDate(0, 0, 8))
	require.NoError(t, err)
	require.Equal(t, 0, again)
}
