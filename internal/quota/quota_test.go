package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memWindows is a minimal WindowStore for tracker tests. Thread safety comes
// from the tracker's per-key locking, but the map is guarded anyway so the
// concurrency test stays race-clean.
type memWindows struct {
	mu      sync.Mutex
	windows map[string]Window
}

func newMemWindows() *memWindows {
	return &memWindows{windows: make(map[string]Window)}
}

func (m *memWindows) key(user, platform string, period Period) string {
	return user + "|" + platform + "|" + string(period)
}

func (m *memWindows) GetWindow(_ context.Context, user, platform string, period Period) (*Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[m.key(user, platform, period)]
	if !ok {
		return nil, ErrWindowNotFound
	}
	copied := w
	return &copied, nil
}

func (m *memWindows) PutWindow(_ context.Context, w *Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[m.key(w.User, w.Platform, w.Period)] = *w
	return nil
}

func testNow() time.Time {
	// A Wednesday.
	return time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)
}

func TestTryReserveDailyLimit(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 2, Weekly: 10, WeekStart: time.Monday})
	now := testNow()

	for i := 0; i < 2; i++ {
		ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
		require.NoError(t, err)
		require.True(t, ok, "reservation %d should fit the daily budget", i+1)
	}

	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.False(t, ok, "third reservation must be refused")

	remaining, err := tracker.Remaining(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.Equal(t, 0, remaining.Daily)
	require.Equal(t, 8, remaining.Weekly)
}

func TestRefusalHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 1, Weekly: 10, WeekStart: time.Monday})
	now := testNow()

	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.True(t, ok)

	before, err := tracker.Remaining(ctx, "jane", "adzuna", now)
	require.NoError(t, err)

	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.False(t, ok)

	after, err := tracker.Remaining(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.Equal(t, before, after, "a refused reservation must not consume weekly budget")
}

func TestReleaseReturnsSlot(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 1, Weekly: 5, WeekStart: time.Monday})
	now := testNow()

	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tracker.Release(ctx, "jane", "adzuna", now))

	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.True(t, ok, "released slot must be reusable")
}

func TestDailyRollover(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 1, Weekly: 10, WeekStart: time.Monday})
	now := testNow()

	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.False(t, ok)

	tomorrow := now.AddDate(0, 0, 1)
	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", tomorrow)
	require.NoError(t, err)
	require.True(t, ok, "daily budget must reset at midnight")
}

func TestWeeklyBudgetSpansDays(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 2, Weekly: 3, WeekStart: time.Monday})
	now := testNow()

	for i := 0; i < 2; i++ {
		ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Thursday: the daily window reset, the weekly one did not.
	thursday := now.AddDate(0, 0, 1)
	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", thursday)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", thursday)
	require.NoError(t, err)
	require.False(t, ok, "weekly budget of 3 is spent")

	// Next Monday both windows reset.
	monday := now.AddDate(0, 0, 5)
	ok, err = tracker.TryReserve(ctx, "jane", "adzuna", monday)
	require.NoError(t, err)
	require.True(t, ok, "weekly budget must reset at the configured week start")
}

func TestPlatformsAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newMemWindows(), Limits{Daily: 1, Weekly: 5, WeekStart: time.Monday})
	now := testNow()

	ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tracker.TryReserve(ctx, "jane", "linkedin", now)
	require.NoError(t, err)
	require.True(t, ok, "budgets are per platform")
}

func TestConcurrentReservationsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	const limit = 5
	tracker := NewTracker(newMemWindows(), Limits{Daily: limit, Weekly: 100, WeekStart: time.Monday})
	now := testNow()

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tracker.TryReserve(ctx, "jane", "adzuna", now)
			if err != nil {
				t.Error(err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	require.Equal(t, limit, granted, "exactly the daily limit must be granted")
}
