package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/application"
	"github.com/dealseek/ma-pilot/internal/posting"
	"github.com/dealseek/ma-pilot/internal/quota"
)

const schema = `
CREATE TABLE IF NOT EXISTS postings (
	id             TEXT PRIMARY KEY,
	dedup_key      TEXT NOT NULL,
	source         TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	title          TEXT NOT NULL,
	company        TEXT NOT NULL,
	location_text  TEXT NOT NULL DEFAULT '',
	lat            REAL NOT NULL DEFAULT 0,
	lon            REAL NOT NULL DEFAULT 0,
	description    TEXT NOT NULL DEFAULT '',
	salary_min     INTEGER,
	salary_max     INTEGER,
	posted_at      TIMESTAMP,
	url            TEXT NOT NULL DEFAULT '',
	distance_miles REAL NOT NULL DEFAULT 0,
	ingested_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_postings_dedup_key ON postings(dedup_key);

CREATE TABLE IF NOT EXISTS applications (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user             TEXT NOT NULL,
	platform         TEXT NOT NULL,
	posting_id       TEXT NOT NULL,
	posting_key      TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	company          TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	score            REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	submitted_at     TIMESTAMP,
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	follow_ups       TEXT NOT NULL DEFAULT '[]',
	follow_ups_sent  INTEGER NOT NULL DEFAULT 0,
	next_follow_up   TIMESTAMP,
	documents_ref    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	UNIQUE(user, posting_key)
);
CREATE INDEX IF NOT EXISTS idx_applications_followup ON applications(status, next_follow_up);

CREATE TABLE IF NOT EXISTS quota_windows (
	user      TEXT NOT NULL,
	platform  TEXT NOT NULL,
	period    TEXT NOT NULL,
	start     TIMESTAMP NOT NULL,
	count     INTEGER NOT NULL,
	max_count INTEGER NOT NULL,
	PRIMARY KEY(user, platform, period)
);

CREATE TABLE IF NOT EXISTS run_sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	fetched     INTEGER NOT NULL,
	normalized  INTEGER NOT NULL,
	scored      INTEGER NOT NULL,
	excluded    INTEGER NOT NULL,
	submitted   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	notes       TEXT NOT NULL DEFAULT ''
);
`

// SQLite is the embedded record store. WAL mode keeps concurrent readers
// from blocking the scheduler's writes during a run.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("opened application store", zap.String("path", path))

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SavePosting(ctx context.Context, p *posting.Posting) error {
	var salaryMin, salaryMax *int
	if p.Salary != nil {
		salaryMin, salaryMax = p.Salary.Min, p.Salary.Max
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO postings (id, dedup_key, source, external_id, title, company,
			location_text, lat, lon, description, salary_min, salary_max,
			posted_at, url, distance_miles, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			salary_min = excluded.salary_min,
			salary_max = excluded.salary_max,
			distance_miles = excluded.distance_miles`,
		p.ID(), p.DedupKey(), p.Source, p.ExternalID, p.Title, p.Company,
		p.Location.Text, p.Location.Lat, p.Location.Lon, p.Description,
		salaryMin, salaryMax, p.PostedAt, p.URL, p.DistanceMiles, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save posting %s: %w", p.ID(), err)
	}
	return nil
}

func (s *SQLite) CreateApplication(ctx context.Context, app *application.Application) error {
	followUps, err := json.Marshal(app.FollowUps)
	if err != nil {
		return fmt.Errorf("encode follow-up schedule: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (user, platform, posting_id, posting_key,
			title, company, url, score, status, submitted_at, attempts,
			last_error, follow_ups, follow_ups_sent, next_follow_up,
			documents_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.User, app.Platform, app.PostingID, app.PostingKey,
		app.Title, app.Company, app.URL, app.Score, string(app.Status),
		app.SubmittedAt, app.Attempts, app.LastError, string(followUps),
		app.FollowUpsSent, nextFollowUp(app), app.DocumentsRef,
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("posting %s for user %s: %w", app.PostingID, app.User, ErrDuplicateApplication)
		}
		return fmt.Errorf("create application for %s: %w", app.PostingID, err)
	}

	app.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("application id for %s: %w", app.PostingID, err)
	}
	return nil
}

func (s *SQLite) UpdateApplication(ctx context.Context, app *application.Application) error {
	followUps, err := json.Marshal(app.FollowUps)
	if err != nil {
		return fmt.Errorf("encode follow-up schedule: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET status = ?, submitted_at = ?, attempts = ?,
			last_error = ?, follow_ups = ?, follow_ups_sent = ?,
			next_follow_up = ?, documents_ref = ?, updated_at = ?
		WHERE id = ?`,
		string(app.Status), app.SubmittedAt, app.Attempts, app.LastError,
		string(followUps), app.FollowUpsSent, nextFollowUp(app),
		app.DocumentsRef, app.UpdatedAt, app.ID,
	)
	if err != nil {
		return fmt.Errorf("update application %d: %w", app.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application %d: %w", app.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update application %d: %w", app.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) GetApplicationByPostingKey(ctx context.Context, user, postingKey string) (*application.Application, error) {
	row := s.db.QueryRowContext(ctx, selectApplications+` WHERE user = ? AND posting_key = ?`, user, postingKey)

	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application for posting key %s: %w", postingKey, err)
	}
	return app, nil
}

func (s *SQLite) ListApplications(ctx context.Context, f ApplicationFilter) ([]*application.Application, error) {
	query := selectApplications + ` WHERE 1=1`
	args := []any{}

	if f.User != "" {
		query += ` AND user = ?`
		args = append(args, f.User)
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(f.Statuses)-1) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

func (s *SQLite) DueFollowUps(ctx context.Context, user string, now time.Time) ([]*application.Application, error) {
	rows, err := s.db.QueryContext(ctx, selectApplications+`
		WHERE user = ? AND status = ? AND next_follow_up IS NOT NULL AND next_follow_up <= ?
		ORDER BY next_follow_up`,
		user, string(application.StatusSubmitted), now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due follow-ups: %w", err)
	}
	defer rows.Close()

	return collectApplications(rows)
}

func (s *SQLite) GetWindow(ctx context.Context, user, platform string, period quota.Period) (*quota.Window, error) {
	w := &quota.Window{User: user, Platform: platform, Period: period}

	err := s.db.QueryRowContext(ctx, `
		SELECT start, count, max_count FROM quota_windows
		WHERE user = ? AND platform = ? AND period = ?`,
		user, platform, string(period),
	).Scan(&w.Start, &w.Count, &w.Limit)
	if err == sql.ErrNoRows {
		return nil, quota.ErrWindowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quota window (%s, %s, %s): %w", user, platform, period, err)
	}
	return w, nil
}

func (s *SQLite) PutWindow(ctx context.Context, w *quota.Window) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_windows (user, platform, period, start, count, max_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user, platform, period) DO UPDATE SET
			start = excluded.start,
			count = excluded.count,
			max_count = excluded.max_count`,
		w.User, w.Platform, string(w.Period), w.Start, w.Count, w.Limit,
	)
	if err != nil {
		return fmt.Errorf("put quota window (%s, %s, %s): %w", w.User, w.Platform, w.Period, err)
	}
	return nil
}

func (s *SQLite) SaveRunSession(ctx context.Context, sess *RunSession) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_sessions (started_at, finished_at, fetched, normalized,
			scored, excluded, submitted, failed, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.StartedAt, sess.FinishedAt, sess.Fetched, sess.Normalized,
		sess.Scored, sess.Excluded, sess.Submitted, sess.Failed, sess.Notes,
	)
	if err != nil {
		return fmt.Errorf("save run session: %w", err)
	}

	sess.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLite) Stats(ctx context.Context, user string, now time.Time) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[application.Status]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM applications WHERE user = ? GROUP BY status`, user)
	if err != nil {
		return nil, fmt.Errorf("query status breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status breakdown: %w", err)
		}
		stats.ByStatus[application.Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}

	responded := stats.ByStatus[application.StatusResponded]
	if stats.Total > 0 {
		stats.ResponseRate = float64(responded) / float64(stats.Total) * 100
	}

	weekAgo := now.AddDate(0, 0, -7)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE user = ? AND created_at > ?`,
		user, weekAgo,
	).Scan(&stats.RecentWeek); err != nil {
		return nil, fmt.Errorf("query recent activity: %w", err)
	}

	companyRows, err := s.db.QueryContext(ctx, `
		SELECT company, COUNT(*) AS cnt FROM applications
		WHERE user = ? GROUP BY company ORDER BY cnt DESC LIMIT 10`, user)
	if err != nil {
		return nil, fmt.Errorf("query top companies: %w", err)
	}
	defer companyRows.Close()

	for companyRows.Next() {
		var cc CompanyCount
		if err := companyRows.Scan(&cc.Company, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan top companies: %w", err)
		}
		stats.TopCompanies = append(stats.TopCompanies, cc)
	}
	return stats, companyRows.Err()
}

const selectApplications = `
	SELECT id, user, platform, posting_id, posting_key, title, company, url,
		score, status, submitted_at, attempts, last_error, follow_ups,
		follow_ups_sent, documents_ref, created_at, updated_at
	FROM applications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*application.Application, error) {
	app := &application.Application{}
	var status, followUps string
	var submittedAt sql.NullTime

	err := row.Scan(&app.ID, &app.User, &app.Platform, &app.PostingID,
		&app.PostingKey, &app.Title, &app.Company, &app.URL, &app.Score,
		&status, &submittedAt, &app.Attempts, &app.LastError, &followUps,
		&app.FollowUpsSent, &app.DocumentsRef, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}

	app.Status, err = application.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		app.SubmittedAt = &t
	}
	if err := json.Unmarshal([]byte(followUps), &app.FollowUps); err != nil {
		return nil, fmt.Errorf("decode follow-up schedule: %w", err)
	}
	return app, nil
}

func collectApplications(rows *sql.Rows) ([]*application.Application, error) {
	var apps []*application.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// nextFollowUp derives the denormalized due column from the schedule.
func nextFollowUp(app *application.Application) *time.Time {
	if next, ok := app.NextFollowUp(); ok {
		return &next
	}
	return nil
}
