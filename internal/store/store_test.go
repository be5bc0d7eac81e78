package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
)

// forEachStore runs a test against both implementations; the contract is the
// interface, not the engine behind it.
func forEachStore(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		st, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		fn(t, st)
	})
}

func testApp(user, key string) *application.Application {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &application.Application{
		User:       user,
		Platform:   "adzuna",
		PostingID:  "adzuna:1",
		PostingKey: key,
		Title:      "M&A Analyst",
		Company:    "Evercore",
		URL:        "https://example.com/1",
		Score:      72,
		Status:     application.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateApplicationEnforcesUniqueness(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		first := testApp("jane", "key-1")
		require.NoError(t, st.CreateApplication(ctx, first))
		require.NotZero(t, first.ID)

		dup := testApp("jane", "key-1")
		dup.PostingID = "boards:x9"
		err := st.CreateApplication(ctx, dup)
		require.ErrorIs(t, err, ErrDuplicateApplication)

		// Another user may apply to the same posting.
		other := testApp("john", "key-1")
		require.NoError(t, st.CreateApplication(ctx, other))
	})
}

func TestCreateApplicationUniquenessUnderContention(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		// Race writers through the same (user, posting key); exactly one
		// row may land no matter who wins.
		const writers = 20
		var created atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				app := testApp("jane", "key-race")
				app.PostingID = fmt.Sprintf("adzuna:%d", i)
				err := st.CreateApplication(ctx, app)
				switch {
				case err == nil:
					created.Add(1)
				case !errors.Is(err, ErrDuplicateApplication):
					t.Error(err)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), created.Load())

		apps, err := st.ListApplications(ctx, ApplicationFilter{User: "jane"})
		require.NoError(t, err)
		require.Len(t, apps, 1)
	})
}

func TestGetApplicationByPostingKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.GetApplicationByPostingKey(ctx, "jane", "missing")
		require.ErrorIs(t, err, ErrNotFound)

		app := testApp("jane", "key-1")
		require.NoError(t, st.CreateApplication(ctx, app))

		got, err := st.GetApplicationByPostingKey(ctx, "jane", "key-1")
		require.NoError(t, err)
		require.Equal(t, app.ID, got.ID)
		require.Equal(t, application.StatusPending, got.Status)
		require.Equal(t, "Evercore", got.Company)
	})
}

func TestUpdateApplicationRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		app := testApp("jane", "key-1")
		require.NoError(t, st.CreateApplication(ctx, app))

		submitted := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		require.NoError(t, app.Transition(application.StatusSubmitted, submitted))
		app.SeedFollowUps(submitted, []int{7, 14})
		app.DocumentsRef = "docs/abc"
		require.NoError(t, st.UpdateApplication(ctx, app))

		got, err := st.GetApplicationByPostingKey(ctx, "jane", "key-1")
		require.NoError(t, err)
		require.Equal(t, application.StatusSubmitted, got.Status)
		require.NotNil(t, got.SubmittedAt)
		require.True(t, got.SubmittedAt.Equal(submitted))
		require.Len(t, got.FollowUps, 2)
		require.True(t, got.FollowUps[0].Equal(submitted.AddDate(0, 0, 7)))
		require.Equal(t, "docs/abc", got.DocumentsRef)

		missing := testApp("jane", "other")
		missing.ID = 9999
		require.ErrorIs(t, st.UpdateApplication(ctx, missing), ErrNotFound)
	})
}

func TestListApplicationsFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		pending := testApp("jane", "key-1")
		require.NoError(t, st.CreateApplication(ctx, pending))

		submittedApp := testApp("jane", "key-2")
		require.NoError(t, st.CreateApplication(ctx, submittedApp))
		require.NoError(t, submittedApp.Transition(application.StatusSubmitted, submittedApp.CreatedAt.Add(time.Hour)))
		require.NoError(t, st.UpdateApplication(ctx, submittedApp))

		otherUser := testApp("john", "key-1")
		require.NoError(t, st.CreateApplication(ctx, otherUser))

		all, err := st.ListApplications(ctx, ApplicationFilter{User: "jane"})
		require.NoError(t, err)
		require.Len(t, all, 2)

		onlySubmitted, err := st.ListApplications(ctx, ApplicationFilter{
			User:     "jane",
			Statuses: []application.Status{application.StatusSubmitted},
		})
		require.NoError(t, err)
		require.Len(t, onlySubmitted, 1)
		require.Equal(t, submittedApp.ID, onlySubmitted[0].ID)
	})
}

func TestDueFollowUps(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		submitted := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

		due := testApp("jane", "key-1")
		require.NoError(t, st.CreateApplication(ctx, due))
		require.NoError(t, due.Transition(application.StatusSubmitted, submitted))
		due.SeedFollowUps(submitted, []int{7, 14})
		require.NoError(t, st.UpdateApplication(ctx, due))

		notYet := testApp("jane", "key-2")
		require.NoError(t, st.CreateApplication(ctx, notYet))
		require.NoError(t, notYet.Transition(application.StatusSubmitted, submitted))
		notYet.SeedFollowUps(submitted.AddDate(0, 0, 10), []int{7})
		require.NoError(t, st.UpdateApplication(ctx, notYet))

		stillPending := testApp("jane", "key-3")
		require.NoError(t, st.CreateApplication(ctx, stillPending))

		// Eight days after submission: only the first schedule is due.
		now := submitted.AddDate(0, 0, 8)
		got, err := st.DueFollowUps(ctx, "jane", now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, due.ID, got[0].ID)

		// Advancing the schedule clears the due entry until day 14.
		got[0].FollowUpsSent = 1
		require.NoError(t, st.UpdateApplication(ctx, got[0]))

		again, err := st.DueFollowUps(ctx, "jane", now)
		require.NoError(t, err)
		require.Empty(t, again)

		later, err := st.DueFollowUps(ctx, "jane", submitted.AddDate(0, 0, 15))
		require.NoError(t, err)
		require.Len(t, later, 1)
	})
}

func TestQuotaWindowRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.GetWindow(ctx, "jane", "adzuna", quota.PeriodDay)
		require.ErrorIs(t, err, quota.ErrWindowNotFound)

		w := &quota.Window{
			User:     "jane",
			Platform: "adzuna",
			Period:   quota.PeriodDay,
			Start:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Count:    3,
			Limit:    10,
		}
		require.NoError(t, st.PutWindow(ctx, w))

		got, err := st.GetWindow(ctx, "jane", "adzuna", quota.PeriodDay)
		require.NoError(t, err)
		require.Equal(t, 3, got.Count)
		require.True(t, got.Start.Equal(w.Start))

		w.Count = 4
		require.NoError(t, st.PutWindow(ctx, w))
		got, err = st.GetWindow(ctx, "jane", "adzuna", quota.PeriodDay)
		require.NoError(t, err)
		require.Equal(t, 4, got.Count)
	})
}

func TestSavePostingIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p := &posting.Posting{
			Source:     "adzuna",
			ExternalID: "1",
			Title:      "M&A Analyst",
			Company:    "Evercore",
			PostedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, st.SavePosting(ctx, p))

		p.Description = "refreshed"
		require.NoError(t, st.SavePosting(ctx, p))
	})
}

func TestStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

		for i, status := range []application.Status{
			application.StatusSubmitted,
			application.StatusSubmitted,
			application.StatusResponded,
			application.StatusExcluded,
		} {
			app := testApp("jane", "key-"+string(rune('a'+i)))
			require.NoError(t, st.CreateApplication(ctx, app))
			if status != application.StatusPending {
				require.NoError(t, app.Transition(application.Status(firstHop(status)), app.CreatedAt))
				if app.Status != status {
					require.NoError(t, app.Transition(status, app.CreatedAt))
				}
				require.NoError(t, st.UpdateApplication(ctx, app))
			}
		}

		stats, err := st.Stats(ctx, "jane", now)
		require.NoError(t, err)
		require.Equal(t, 4, stats.Total)
		require.Equal(t, 2, stats.ByStatus[application.StatusSubmitted])
		require.Equal(t, 1, stats.ByStatus[application.StatusResponded])
		require.InDelta(t, 25.0, stats.ResponseRate, 0.01)
		require.NotEmpty(t, stats.TopCompanies)
		require.Equal(t, "Evercore", stats.TopCompanies[0].Company)
	})
}

// firstHop picks the legal step out of pending toward the wanted status.
func firstHop(want application.Status) application.Status {
	switch want {
	case application.StatusExcluded:
		return application.StatusExcluded
	default:
		return application.StatusSubmitted
	}
}
