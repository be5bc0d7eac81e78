// Package source implements the job-board adapters the orchestrator fetches
// raw records from. Each adapter understands one board's shape; nothing
// outside the posting normalizer ever sees those shapes.
package source

import (
	"context"
	"net/http"
	"time"

	"github.com/dealseek/ma-pilot/internal/posting"
)

const httpTimeout = 15 * time.Second

// Query carries the search parameters shared by all boards.
type Query struct {
	Keywords    []string
	Location    string
	RadiusMiles float64
}

// Fetcher retrieves raw postings from one job board. Failures are per-source;
// the orchestrator records them and keeps going with the other boards.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]posting.SourceRecord, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}
