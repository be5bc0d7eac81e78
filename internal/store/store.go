// Package store persists postings, applications, quota windows and run
// sessions. The engine treats any store failure as a data-integrity error
// and aborts before submitting anything.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateApplication is returned when an application already
	// exists for the same (user, posting) pair.
	ErrDuplicateApplication = errors.New("application already exists for posting")
)

// ApplicationFilter narrows ListApplications. Zero values match everything.
type ApplicationFilter struct {
	User     string
	Statuses []application.Status
	Since    time.Time
}

// RunSession records the outcome of one orchestrated run for analytics.
type RunSession struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Normalized int
	Scored     int
	Excluded   int
	Submitted  int
	Failed     int
	Notes      string
}

// CompanyCount is one row of the top-companies breakdown.
type CompanyCount struct {
	Company string
	Count   int
}

// Stats summarizes application history for reporting.
type Stats struct {
	Total        int
	ByStatus     map[application.Status]int
	ResponseRate float64
	RecentWeek   int
	TopCompanies []CompanyCount
}

// Store is the record store consumed by the engine. Implementations must
// make CreateApplication atomic with respect to the uniqueness invariant,
// and GetWindow/PutWindow safe under the quota tracker's per-key locking.
type Store interface {
	quota.WindowStore

	SavePosting(ctx context.Context, p *posting.Posting) error

	CreateApplication(ctx context.Context, app *application.Application) error
	UpdateApplication(ctx context.Context, app *application.Application) error
	GetApplicationByPostingKey(ctx context.Context, user, postingKey string) (*application.Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*application.Application, error)
	DueFollowUps(ctx context.Context, user string, now time.Time) ([]*application.Application, error)

	SaveRunSession(ctx context.Context, s *RunSession) error
	Stats(ctx context.Context, user string, now time.Time) (*Stats, error)

	Close() error
}
