package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/dealseek/ma-pilot/internal/posting"
)

const boardUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// HTMLBoardConfig describes how to scrape one HTML job board: a search URL
// template plus the CSS selectors that locate the listing fields. Boards
// without an API (most boutique career pages) are wired through this.
type HTMLBoardConfig struct {
	Name        string `mapstructure:"name"`
	SearchURL   string `mapstructure:"search-url"` // {{query}} and {{location}} placeholders
	CardSel     string `mapstructure:"card-selector"`
	TitleSel    string `mapstructure:"title-selector"`
	CompanySel  string `mapstructure:"company-selector"`
	LocationSel string `mapstructure:"location-selector"`
	LinkSel     string `mapstructure:"link-selector"`
	DescSel     string `mapstructure:"description-selector"`
	// Company overrides CompanySel for single-employer career pages.
	Company string `mapstructure:"company"`
}

// HTMLBoard scrapes listings out of a board's search results page.
type HTMLBoard struct {
	cfg    HTMLBoardConfig
	client *http.Client
	logger *zap.Logger
}

func NewHTMLBoard(cfg HTMLBoardConfig, logger *zap.Logger) (*HTMLBoard, error) {
	if cfg.Name == "" || cfg.SearchURL == "" || cfg.CardSel == "" || cfg.TitleSel == "" {
		return nil, fmt.Errorf("html board needs at least name, search-url, card-selector and title-selector")
	}
	if cfg.Company == "" && cfg.CompanySel == "" {
		return nil, fmt.Errorf("html board %s needs either company or company-selector", cfg.Name)
	}
	return &HTMLBoard{cfg: cfg, client: newHTTPClient(), logger: logger}, nil
}

func (b *HTMLBoard) Name() string { return b.cfg.Name }

func (b *HTMLBoard) Fetch(ctx context.Context, q Query) ([]posting.SourceRecord, error) {
	var records []posting.SourceRecord

	for _, keyword := range q.Keywords {
		batch, err := b.fetchKeyword(ctx, keyword, q.Location)
		if err != nil {
			return records, fmt.Errorf("keyword %q: %w", keyword, err)
		}
		records = append(records, batch...)
	}

	b.logger.Debug("html board fetch finished",
		zap.String("board", b.cfg.Name),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (b *HTMLBoard) fetchKeyword(ctx context.Context, keyword, location string) ([]posting.SourceRecord, error) {
	searchURL := strings.NewReplacer(
		"{{query}}", url.QueryEscape(keyword),
		"{{location}}", url.QueryEscape(location),
	).Replace(b.cfg.SearchURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", boardUserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var records []posting.SourceRecord
	doc.Find(b.cfg.CardSel).Each(func(_ int, card *goquery.Selection) {
		rec := b.extractCard(card, searchURL)
		if rec == nil {
			return
		}
		records = append(records, *rec)
	})

	return records, nil
}

func (b *HTMLBoard) extractCard(card *goquery.Selection, base string) *posting.SourceRecord {
	title := strings.TrimSpace(card.Find(b.cfg.TitleSel).First().Text())
	if title == "" {
		return nil
	}

	company := b.cfg.Company
	if company == "" {
		company = strings.TrimSpace(card.Find(b.cfg.CompanySel).First().Text())
	}

	link, _ := card.Find(b.cfg.LinkSel).First().Attr("href")
	link = absoluteURL(base, link)

	rec := &posting.SourceRecord{
		Source:      b.cfg.Name,
		ExternalID:  externalIDFromLink(link, company, title),
		Title:       title,
		Company:     company,
		Description: strings.TrimSpace(card.Find(b.cfg.DescSel).Text()),
		URL:         link,
	}
	if b.cfg.LocationSel != "" {
		rec.Location = strings.TrimSpace(card.Find(b.cfg.LocationSel).First().Text())
	}
	return rec
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return parsed.ResolveReference(ref).String()
}

// externalIDFromLink prefers the listing URL as a stable id and falls back
// to company+title for boards that render links client-side.
func externalIDFromLink(link, company, title string) string {
	if link != "" {
		return link
	}
	return strings.ToLower(company + "/" + title)
}
