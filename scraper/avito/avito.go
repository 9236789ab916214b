// Package avito scrapes camera listings from Avito search results.
//
// One search is driven by one exclusive browser session, one page at a
// time: the session holds challenge/cookie state and may require manual
// operator interaction, so pages of the same search are never fetched
// concurrently.
package avito

import (
	"fmt"
	"time"

	"camera-tracker/config"
	"camera-tracker/models"
	"camera-tracker/utils"
)

// PageFetcher returns the raw markup of one page. *Session implements
// it; tests substitute canned pages.
type PageFetcher interface {
	Fetch(pageURL string) (string, error)
}

// Scraper composes the pager, the session fetcher and the markup
// extractor across all pages of one search.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	fetcher PageFetcher
}

// New creates a Scraper driving the given fetcher.
func New(cfg *config.Config, logger *utils.Logger, fetcher PageFetcher) *Scraper {
	return &Scraper{cfg: cfg, logger: logger, fetcher: fetcher}
}

// Search fetches up to limit unique listings for one search URL,
// deduplicated by external id across pages (first seen wins). Fewer
// than limit items is a normal outcome, not an error. When a page fetch
// fails after retries the error is returned together with the items
// collected so far; callers must not reconcile against a partial
// result.
func (s *Scraper) Search(searchURL, regionFallback string, limit int) ([]models.ScrapedItem, error) {
	s.logger.Info("[avito] Starting search — limit %d, region fallback %q", limit, regionFallback)

	html, err := s.fetcher.Fetch(searchURL)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}

	total, hasTotal := ExtractTotalCount(html)
	if hasTotal {
		s.logger.Debug("[avito] Reported total: %d ads", total)
	} else {
		s.logger.Warn("[avito] No total count on page 1 — falling back to %d pages", fallbackPageCount)
	}

	// Uncapped parse: page 1's real item count doubles as the page size.
	pageItems, err := ParseSearchHTML(html, regionFallback, 0)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}
	perPage := len(pageItems)
	if perPage < 1 {
		perPage = 1
	}
	maxPages := PageCount(total, hasTotal, perPage)
	s.logger.Info("[avito] Page 1 — %d items, plan: %d page(s)", len(pageItems), maxPages)

	seen := make(map[string]struct{})
	var items []models.ScrapedItem
	items = merge(items, pageItems, seen, limit)
	if limit > 0 && len(items) >= limit {
		return items, nil
	}

	for page := 2; page <= maxPages; page++ {
		time.Sleep(time.Duration(s.cfg.RateLimitMs) * time.Millisecond)

		pageURL, err := SetPage(searchURL, page)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}

		html, err := s.fetcher.Fetch(pageURL)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}

		pageItems, err := ParseSearchHTML(html, regionFallback, 0)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}
		s.logger.Debug("[avito] Page %d — %d items, %d unique so far", page, len(pageItems), len(items))

		items = merge(items, pageItems, seen, limit)
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	s.logger.Info("[avito] Search complete — %d unique items", len(items))
	return items, nil
}

// merge folds one page's items into the accumulated result, skipping
// external ids already seen and stopping once limit is reached.
func merge(items, pageItems []models.ScrapedItem, seen map[string]struct{}, limit int) []models.ScrapedItem {
	for _, it := range pageItems {
		if _, dup := seen[it.ExternalID]; dup {
			continue
		}
		seen[it.ExternalID] = struct{}{}
		items = append(items, it)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items
}
