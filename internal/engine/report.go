package engine

import (
	"time"

	"github.com/dealseek/ma-pilot/internal/quota"
)

// RunReport summarizes one orchestrated run. Every dropped or failed item
// shows up in a count or an error entry; nothing is dropped silently.
type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched    int `json:"fetched"`
	Normalized int `json:"normalized"`
	Scored     int `json:"scored"`
	Excluded   int `json:"excluded"`
	Submitted  int `json:"submitted"`
	Failed     int `json:"failed"`
	// SkippedExisting counts candidates already covered by a previous
	// application; SkippedQuota counts candidates left pending because a
	// platform's budget ran out mid-run.
	SkippedExisting int `json:"skipped_existing"`
	SkippedQuota    int `json:"skipped_quota"`

	// QuotaRemaining is keyed by platform.
	QuotaRemaining map[string]quota.Remaining `json:"quota_remaining"`
	// SourceErrors is keyed by source name; a failed source degrades
	// coverage but never aborts the run.
	SourceErrors map[string]string `json:"source_errors,omitempty"`
	// CandidateErrors lists per-candidate failures with reasons.
	CandidateErrors []string `json:"candidate_errors,omitempty"`
}
