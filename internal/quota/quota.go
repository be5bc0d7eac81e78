// Package quota implements rolling daily/weekly submission counters used for
// admission control. Counters roll over lazily at access time; nothing in
// this package reads a wall clock.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Period identifies which rolling window a counter covers.
type Period string

const (
	PeriodDay  Period = "day"
	PeriodWeek Period = "week"
)

// ErrWindowNotFound is returned by WindowStore when no counter exists yet
// for a (user, platform, period) key. The tracker creates one lazily.
var ErrWindowNotFound = errors.New("quota window not found")

// Window is a rolling counter keyed by (user, platform, period). Reset, not
// deleted, when the window rolls over.
type Window struct {
	User     string
	Platform string
	Period   Period
	Start    time.Time
	Count    int
	Limit    int
}

// WindowStore persists quota windows. The tracker serializes access per
// (user, platform) key, so implementations only need plain get/put.
type WindowStore interface {
	GetWindow(ctx context.Context, user, platform string, period Period) (*Window, error)
	PutWindow(ctx context.Context, w *Window) error
}

// Limits configures the admission budgets.
type Limits struct {
	Daily     int
	Weekly    int
	WeekStart time.Weekday
}

// Remaining reports unused budget in both windows.
type Remaining struct {
	Daily  int
	Weekly int
}

// Tracker answers admission-control queries against two independent rolling
// counters per (user, platform). TryReserve and Release are atomic with
// respect to each other for a given key; different keys never contend.
type Tracker struct {
	store  WindowStore
	limits Limits

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTracker(store WindowStore, limits Limits) *Tracker {
	return &Tracker{
		store:  store,
		limits: limits,
		locks:  make(map[string]*sync.Mutex),
	}
}

// TryReserve checks both budgets and increments them when both have room.
// Returns false with no side effects when either budget is exhausted.
func (t *Tracker) TryReserve(ctx context.Context, user, platform string, now time.Time) (bool, error) {
	unlock := t.lockKey(user, platform)
	defer unlock()

	day, week, err := t.loadWindows(ctx, user, platform, now)
	if err != nil {
		return false, err
	}

	if day.Count >= day.Limit || week.Count >= week.Limit {
		return false, nil
	}

	day.Count++
	week.Count++
	if err := t.putBoth(ctx, day, week); err != nil {
		return false, err
	}

	return true, nil
}

// Release returns a reserved slot after a confirmed failure so the budget is
// not wasted on a submission that never happened.
func (t *Tracker) Release(ctx context.Context, user, platform string, now time.Time) error {
	unlock := t.lockKey(user, platform)
	defer unlock()

	day, week, err := t.loadWindows(ctx, user, platform, now)
	if err != nil {
		return err
	}

	if day.Count > 0 {
		day.Count--
	}
	if week.Count > 0 {
		week.Count--
	}

	return t.putBoth(ctx, day, week)
}

// Remaining reports the unused daily and weekly budget for a key.
func (t *Tracker) Remaining(ctx context.Context, user, platform string, now time.Time) (Remaining, error) {
	unlock := t.lockKey(user, platform)
	defer unlock()

	day, week, err := t.loadWindows(ctx, user, platform, now)
	if err != nil {
		return Remaining{}, err
	}

	return Remaining{
		Daily:  max(0, day.Limit-day.Count),
		Weekly: max(0, week.Limit-week.Count),
	}, nil
}

// loadWindows fetches both counters, creating or rolling them as needed.
// Must be called with the key lock held.
func (t *Tracker) loadWindows(ctx context.Context, user, platform string, now time.Time) (day, week *Window, err error) {
	day, err = t.loadWindow(ctx, user, platform, PeriodDay, now)
	if err != nil {
		return nil, nil, err
	}
	week, err = t.loadWindow(ctx, user, platform, PeriodWeek, now)
	if err != nil {
		return nil, nil, err
	}
	return day, week, nil
}

func (t *Tracker) loadWindow(ctx context.Context, user, platform string, period Period, now time.Time) (*Window, error) {
	w, err := t.store.GetWindow(ctx, user, platform, period)
	if errors.Is(err, ErrWindowNotFound) {
		return &Window{
			User:     user,
			Platform: platform,
			Period:   period,
			Start:    t.windowStart(period, now),
			Limit:    t.limit(period),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s quota window: %w", period, err)
	}

	// Lazy rollover: a stale window resets in place.
	if start := t.windowStart(period, now); start.After(w.Start) {
		w.Start = start
		w.Count = 0
	}
	w.Limit = t.limit(period)

	return w, nil
}

func (t *Tracker) putBoth(ctx context.Context, day, week *Window) error {
	if err := t.store.PutWindow(ctx, day); err != nil {
		return fmt.Errorf("persist daily quota window: %w", err)
	}
	if err := t.store.PutWindow(ctx, week); err != nil {
		return fmt.Errorf("persist weekly quota window: %w", err)
	}
	return nil
}

func (t *Tracker) limit(period Period) int {
	if period == PeriodDay {
		return t.limits.Daily
	}
	return t.limits.Weekly
}

// windowStart computes the boundary the current window began at: local
// midnight for days, the configured weekday's midnight for weeks.
func (t *Tracker) windowStart(period Period, now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if period == PeriodDay {
		return midnight
	}

	offset := (int(now.Weekday()) - int(t.limits.WeekStart) + 7) % 7
	return midnight.AddDate(0, 0, -offset)
}

func (t *Tracker) lockKey(user, platform string) func() {
	key := user + "\x00" + platform

	t.mu.Lock()
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
