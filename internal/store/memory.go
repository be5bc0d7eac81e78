package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
)

// Memory is an in-memory Store used by tests and dry runs. Safe for
// concurrent use; contents vanish with the process.
type Memory struct {
	mu       sync.Mutex
	postings map[string]*posting.Posting
	apps     map[int64]*application.Application
	byKey    map[string]int64 // user\x00postingKey -> app id
	windows  map[string]*quota.Window
	sessions []*RunSession
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		postings: make(map[string]*posting.Posting),
		apps:     make(map[int64]*application.Application),
		byKey:    make(map[string]int64),
		windows:  make(map[string]*quota.Window),
		nextID:   1,
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SavePosting(_ context.Context, p *posting.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.postings[p.ID()] = &copied
	return nil
}

func (m *Memory) CreateApplication(_ context.Context, app *application.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := app.User + "\x00" + app.PostingKey
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicateApplication
	}

	app.ID = m.nextID
	m.nextID++

	copied := cloneApp(app)
	m.apps[app.ID] = copied
	m.byKey[key] = app.ID
	return nil
}

func (m *Memory) UpdateApplication(_ context.Context, app *application.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[app.ID]; !ok {
		return ErrNotFound
	}
	m.apps[app.ID] = cloneApp(app)
	return nil
}

func (m *Memory) GetApplicationByPostingKey(_ context.Context, user, postingKey string) (*application.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[user+"\x00"+postingKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApp(m.apps[id]), nil
}

func (m *Memory) ListApplications(_ context.Context, f ApplicationFilter) ([]*application.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*application.Application
	for _, app := range m.apps {
		if f.User != "" && app.User != f.User {
			continue
		}
		if !f.Since.IsZero() && app.CreatedAt.Before(f.Since) {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(app.Status, f.Statuses) {
			continue
		}
		out = append(out, cloneApp(app))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DueFollowUps(_ context.Context, user string, now time.Time) ([]*application.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*application.Application
	for _, app := range m.apps {
		if app.User != user || app.Status != application.StatusSubmitted {
			continue
		}
		next, ok := app.NextFollowUp()
		if !ok || next.After(now) {
			continue
		}
		out = append(out, cloneApp(app))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetWindow(_ context.Context, user, platform string, period quota.Period) (*quota.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[user+"\x00"+platform+"\x00"+string(period)]
	if !ok {
		return nil, quota.ErrWindowNotFound
	}
	copied := *w
	return &copied, nil
}

func (m *Memory) PutWindow(_ context.Context, w *quota.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *w
	m.windows[w.User+"\x00"+w.Platform+"\x00"+string(w.Period)] = &copied
	return nil
}

func (m *Memory) SaveRunSession(_ context.Context, s *RunSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = int64(len(m.sessions) + 1)
	copied := *s
	m.sessions = append(m.sessions, &copied)
	return nil
}

func (m *Memory) Stats(_ context.Context, user string, now time.Time) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{ByStatus: make(map[application.Status]int)}
	companies := make(map[string]int)
	weekAgo := now.AddDate(0, 0, -7)

	for _, app := range m.apps {
		if app.User != user {
			continue
		}
		stats.Total++
		stats.ByStatus[app.Status]++
		companies[app.Company]++
		if app.CreatedAt.After(weekAgo) {
			stats.RecentWeek++
		}
	}

	if stats.Total > 0 {
		stats.ResponseRate = float64(stats.ByStatus[application.StatusResponded]) / float64(stats.Total) * 100
	}
	for company, count := range companies {
		stats.TopCompanies = append(stats.TopCompanies, CompanyCount{Company: company, Count: count})
	}
	sort.Slice(stats.TopCompanies, func(i, j int) bool {
		if stats.TopCompanies[i].Count != stats.TopCompanies[j].Count {
			return stats.TopCompanies[i].Count > stats.TopCompanies[j].Count
		}
		return stats.TopCompanies[i].Company < stats.TopCompanies[j].Company
	})
	return stats, nil
}

func cloneApp(app *application.Application) *application.Application {
	copied := *app
	copied.FollowUps = append([]time.Time(nil), app.FollowUps...)
	if app.SubmittedAt != nil {
		t := *app.SubmittedAt
		copied.SubmittedAt = &t
	}
	return &copied
}

func statusIn(s application.Status, list []application.Status) bool {
	for _, candidate := range list {
		if s == candidate {
			return true
		}
	}
	return false
}
