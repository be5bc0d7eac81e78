package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org/search"

// Nominatim resolves free-text addresses via the OpenStreetMap geocoding
// API. Callers are expected to wrap it in the normalizer's per-run cache;
// Nominatim's usage policy does not tolerate a lookup per posting.
type Nominatim struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

func NewNominatim(userAgent string, logger *zap.Logger) *Nominatim {
	return &Nominatim{client: newHTTPClient(), userAgent: userAgent, logger: logger}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (n *Nominatim) Geocode(ctx context.Context, address string) (float64, float64, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nominatimBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocode %q: unexpected status %s", address, resp.Status)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, fmt.Errorf("geocode %q: decode response: %w", address, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("geocode %q: no results", address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: bad latitude: %w", address, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: bad longitude: %w", address, err)
	}

	n.logger.Debug("geocoded address",
		zap.String("address", address),
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
	)
	return lat, lon, nil
}
