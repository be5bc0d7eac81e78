package posting

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NormalizerConfig carries the profile-derived settings the normalizer needs.
type NormalizerConfig struct {
	TargetLat   float64
	TargetLon   float64
	RadiusMiles float64
	// DedupWindow bounds how far apart two postings may be published and
	// still count as the same role. Zero means any distance in time.
	DedupWindow time.Duration
}

// Normalizer converts raw source records into canonical postings,
// deduplicating across sources and dropping postings outside the search
// radius. It never mutates its input.
type Normalizer struct {
	cfg      NormalizerConfig
	geocoder Geocoder
	logger   *zap.Logger
}

func NewNormalizer(cfg NormalizerConfig, geocoder Geocoder, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		cfg:      cfg,
		geocoder: NewCachingGeocoder(geocoder),
		logger:   logger,
	}
}

// Normalize maps records to postings, filters by distance, and collapses
// duplicates. Records that cannot be mapped are dropped with a log line,
// never an error: one malformed listing must not sink the batch.
func (n *Normalizer) Normalize(ctx context.Context, records []SourceRecord) []*Posting {
	byKey := make(map[string]*Posting)
	order := make([]string, 0, len(records))

	for i := range records {
		p := n.toPosting(ctx, &records[i])
		if p == nil {
			continue
		}

		if p.DistanceMiles > n.cfg.RadiusMiles {
			n.logger.Debug("posting outside search radius",
				zap.String("posting", p.ID()),
				zap.String("location", p.Location.Text),
				zap.Float64("distance_miles", p.DistanceMiles),
			)
			continue
		}

		key := p.DedupKey()
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = p
			order = append(order, key)
			continue
		}

		merged := n.merge(existing, p)
		byKey[key] = merged
		if merged != existing {
			n.logger.Debug("posting superseded by cross-source duplicate",
				zap.String("kept", merged.ID()),
				zap.String("dropped", existing.ID()),
			)
		}
	}

	out := make([]*Posting, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

func (n *Normalizer) toPosting(ctx context.Context, rec *SourceRecord) *Posting {
	if rec.Title == "" || rec.Company == "" {
		n.logger.Warn("dropping record without title or company",
			zap.String("source", rec.Source),
			zap.String("external_id", rec.ExternalID),
		)
		return nil
	}

	p := &Posting{
		Source:      rec.Source,
		ExternalID:  rec.ExternalID,
		Title:       rec.Title,
		Company:     rec.Company,
		Location:    Location{Text: rec.Location},
		Description: rec.Description,
		URL:         rec.URL,
	}

	if rec.PostedAt != nil {
		p.PostedAt = *rec.PostedAt
	}

	if rec.SalaryMin != nil || rec.SalaryMax != nil {
		p.Salary = &SalaryRange{Min: rec.SalaryMin, Max: rec.SalaryMax}
	} else if extracted := ExtractSalaryRange(rec.Description); extracted != nil {
		p.Salary = extracted
	}

	switch {
	case rec.Lat != nil && rec.Lon != nil:
		p.Location.Lat, p.Location.Lon = *rec.Lat, *rec.Lon
	case rec.Location != "":
		lat, lon, err := n.geocoder.Geocode(ctx, rec.Location)
		if err != nil {
			n.logger.Warn("geocoding failed, keeping posting at radius edge",
				zap.String("posting", p.ID()),
				zap.String("location", rec.Location),
				zap.Error(err),
			)
			// Unresolvable locations stay eligible but never outrank a
			// posting with a known nearby address.
			p.DistanceMiles = n.cfg.RadiusMiles
			return p
		}
		p.Location.Lat, p.Location.Lon = lat, lon
	default:
		p.DistanceMiles = n.cfg.RadiusMiles
		return p
	}

	p.DistanceMiles = DistanceMiles(n.cfg.TargetLat, n.cfg.TargetLon, p.Location.Lat, p.Location.Lon)
	return p
}

// merge applies the supersede rules for two postings sharing a dedup key:
// within the window the more complete record wins and salary ranges are
// unioned when compatible; outside the window only the most recent survives.
func (n *Normalizer) merge(a, b *Posting) *Posting {
	if n.cfg.DedupWindow > 0 {
		gap := a.PostedAt.Sub(b.PostedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > n.cfg.DedupWindow {
			return newer(a, b)
		}
	}

	kept := a
	if len(b.Description) > len(a.Description) {
		kept = b
	}
	other := a
	if kept == a {
		other = b
	}

	if kept.Salary.Overlaps(other.Salary) {
		merged := *kept
		merged.Salary = kept.Salary.Union(other.Salary)
		return &merged
	}
	if kept.Salary == nil && other.Salary != nil {
		merged := *kept
		merged.Salary = other.Salary
		return &merged
	}
	if kept.Salary != nil && other.Salary != nil {
		// Disjoint salary claims: trust the most recent listing.
		return newer(a, b)
	}

	return kept
}

func newer(a, b *Posting) *Posting {
	if b.PostedAt.After(a.PostedAt) {
		return b
	}
	return a
}
