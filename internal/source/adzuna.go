package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/posting"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3
)

// AdzunaConfig holds credentials and search scope for the Adzuna API.
type AdzunaConfig struct {
	AppID   string `mapstructure:"app-id"`
	AppKey  string `mapstructure:"app-key"`
	Country string `mapstructure:"country"`
}

// Adzuna fetches postings from the Adzuna public API. Listings come with
// coordinates, so these records never need geocoding.
type Adzuna struct {
	cfg    AdzunaConfig
	client *http.Client
	logger *zap.Logger
}

func NewAdzuna(cfg AdzunaConfig, logger *zap.Logger) *Adzuna {
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	return &Adzuna{cfg: cfg, client: newHTTPClient(), logger: logger}
}

func (a *Adzuna) Name() string { return "adzuna" }

type adzunaResponse struct {
	Results []map[string]any `json:"results"`
	Count   int              `json:"count"`
}

type adzunaResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	SalaryMin   float64  `json:"salary_min"`
	SalaryMax   float64  `json:"salary_max"`
	RedirectURL string   `json:"redirect_url"`
	Created     string   `json:"created"`
}

// Fetch retrieves results for every keyword, paging until the board runs dry
// or the page cap is reached.
func (a *Adzuna) Fetch(ctx context.Context, q Query) ([]posting.SourceRecord, error) {
	if a.cfg.AppID == "" || a.cfg.AppKey == "" {
		return nil, fmt.Errorf("adzuna credentials are not configured")
	}

	var records []posting.SourceRecord
	for _, keyword := range q.Keywords {
		for page := 1; page <= adzunaMaxPages; page++ {
			batch, err := a.fetchPage(ctx, keyword, q, page)
			if err != nil {
				return records, fmt.Errorf("keyword %q page %d: %w", keyword, page, err)
			}
			records = append(records, batch...)
			if len(batch) < adzunaPageSize {
				break
			}
		}
	}

	a.logger.Debug("adzuna fetch finished", zap.Int("records", len(records)))
	return records, nil
}

func (a *Adzuna) fetchPage(ctx context.Context, keyword string, q Query, page int) ([]posting.SourceRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", adzunaBaseURL, a.cfg.Country, page)

	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("app_key", a.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", keyword)
	params.Set("where", q.Location)
	params.Set("distance", strconv.Itoa(int(q.RadiusMiles*1609))) // adzuna wants metres
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The board is loose with field types (ids arrive as numbers or
	// strings), so results go through a weakly typed decode.
	var results []adzunaResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &results,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build result decoder: %w", err)
	}
	if err := decoder.Decode(apiResp.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}

	records := make([]posting.SourceRecord, 0, len(results))
	for _, r := range results {
		rec := posting.SourceRecord{
			Source:      a.Name(),
			ExternalID:  r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Lat:         r.Latitude,
			Lon:         r.Longitude,
			Description: r.Description,
			URL:         r.RedirectURL,
		}
		if r.SalaryMin > 0 {
			min := int(r.SalaryMin)
			rec.SalaryMin = &min
		}
		if r.SalaryMax > 0 {
			max := int(r.SalaryMax)
			rec.SalaryMax = &max
		}
		if created, err := time.Parse(time.RFC3339, r.Created); err == nil {
			rec.PostedAt = &created
		}
		records = append(records, rec)
	}

	return records, nil
}
