// Package followup emits follow-up actions for submitted applications whose
// scheduled check-in time has passed. Time only ever enters through the
// explicit now parameter.
package followup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/store"
)

// Action is one follow-up to deliver: the application it belongs to and the
// rendered message. Delivery itself is the caller's concern.
type Action struct {
	ApplicationID int64
	Company       string
	Title         string
	Message       Message
}

// Scheduler scans submitted applications and advances their follow-up
// schedules. The schedule advance is the durability boundary: it is
// persisted before the action is emitted, so a re-run at the same now never
// double-emits.
type Scheduler struct {
	store    store.Store
	renderer *Renderer
	user     string
	logger   *zap.Logger
}

func NewScheduler(st store.Store, renderer *Renderer, user string, logger *zap.Logger) *Scheduler {
	return &Scheduler{store: st, renderer: renderer, user: user, logger: logger}
}

// Tick emits at most one action per due application. An application whose
// schedule fails to persist is skipped for this tick and logged; it stays
// due and is retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]Action, error) {
	due, err := s.store.DueFollowUps(ctx, s.user, now)
	if err != nil {
		return nil, fmt.Errorf("load due follow-ups: %w", err)
	}

	actions := make([]Action, 0, len(due))
	for _, app := range due {
		action, err := s.advance(ctx, app, now)
		if err != nil {
			s.logger.Error("skipping follow-up for this tick",
				zap.Int64("application_id", app.ID),
				zap.String("company", app.Company),
				zap.Error(err),
			)
			continue
		}
		actions = append(actions, *action)
	}

	if len(actions) > 0 {
		s.logger.Info("follow-up tick complete",
			zap.Int("due", len(due)),
			zap.Int("emitted", len(actions)),
		)
	}
	return actions, nil
}

func (s *Scheduler) advance(ctx context.Context, app *application.Application, now time.Time) (*Action, error) {
	message, err := s.renderer.Render(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}

	// Commit the advance before emitting. A crash between commit and
	// delivery loses one email, never duplicates one.
	app.FollowUpsSent++
	app.UpdatedAt = now
	if err := s.store.UpdateApplication(ctx, app); err != nil {
		app.FollowUpsSent--
		return nil, fmt.Errorf("persist schedule advance: %w", err)
	}

	return &Action{
		ApplicationID: app.ID,
		Company:       app.Company,
		Title:         app.Title,
		Message:       message,
	}, nil
}
