package posting

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
)

// geohashPrecision of 5 gives cells a few kilometres across, coarse enough
// that two offices of the same firm in one neighborhood land in one bucket.
const geohashPrecision = 5

// SalaryRange holds optional salary bounds in whole currency units per year.
// A nil bound means the source did not state it.
type SalaryRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Location pairs the free-text location of a posting with resolved
// coordinates. Lat/Lon are zero until geocoded.
type Location struct {
	Text string  `json:"text"`
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
}

// SourceRecord is a raw job listing as returned by a single source adapter.
// Field shapes differ per board; the normalizer is the only consumer that
// understands them. Optional fields stay nil, never fabricated.
type SourceRecord struct {
	Source      string
	ExternalID  string
	Title       string
	Company     string
	Location    string
	Lat         *float64
	Lon         *float64
	Description string
	SalaryMin   *int
	SalaryMax   *int
	PostedAt    *time.Time
	URL         string
}

// Posting is the canonical job listing after normalization. Immutable once
// created; a fresher duplicate supersedes it rather than mutating it.
type Posting struct {
	Source        string       `json:"source"`
	ExternalID    string       `json:"external_id"`
	Title         string       `json:"title"`
	Company       string       `json:"company"`
	Location      Location     `json:"location"`
	Description   string       `json:"description"`
	Salary        *SalaryRange `json:"salary,omitempty"`
	PostedAt      time.Time    `json:"posted_at"`
	URL           string       `json:"url"`
	DistanceMiles float64      `json:"distance_miles"`
}

// ID uniquely identifies a posting by (source, external id).
func (p *Posting) ID() string {
	return fmt.Sprintf("%s:%s", p.Source, p.ExternalID)
}

// DedupKey buckets postings that describe the same role regardless of
// source: normalized company + normalized title + coarse location cell.
func (p *Posting) DedupKey() string {
	bucket := geohash.EncodeWithPrecision(p.Location.Lat, p.Location.Lon, geohashPrecision)
	sum := sha256.Sum256([]byte(normalizeText(p.Company) + "|" + normalizeText(p.Title) + "|" + bucket))
	return fmt.Sprintf("%x", sum[:12])
}

// normalizeText lowercases and collapses runs of whitespace to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
