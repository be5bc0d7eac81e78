package posting

import (
	"context"
	"math"
	"sync"
)

const earthRadiusMiles = 3958.8

// Geocoder resolves a free-text address to coordinates. Implementations live
// outside this package; the normalizer only needs the capability.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// DistanceMiles returns the great-circle distance between two coordinates.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// cachingGeocoder resolves each unique location string at most once per run.
type cachingGeocoder struct {
	inner Geocoder

	mu    sync.Mutex
	cache map[string]geoResult
}

type geoResult struct {
	lat, lon float64
	err      error
}

// NewCachingGeocoder wraps a geocoder with a process-wide cache scoped to the
// wrapper's lifetime. Failed lookups are cached too, so a dead geocoding
// service is hit once per address, not once per posting.
func NewCachingGeocoder(inner Geocoder) Geocoder {
	return &cachingGeocoder{inner: inner, cache: make(map[string]geoResult)}
}

func (g *cachingGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	key := normalizeText(address)

	g.mu.Lock()
	if res, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return res.lat, res.lon, res.err
	}
	g.mu.Unlock()

	lat, lon, err := g.inner.Geocode(ctx, address)

	g.mu.Lock()
	g.cache[key] = geoResult{lat: lat, lon: lon, err: err}
	g.mu.Unlock()

	return lat, lon, err
}
