package scraper

import (
	"context"

	"torrent-rating-notifier/internal/fetcher"
	"torrent-rating-notifier/internal/observability"
)

type listingFetcher interface {
	FetchWithRetry(ctx context.Context, urlStr string) (*fetcher.FetchResponse, error)
}

// Lister scrapes the torrent listing page. It never fails: problems are
// logged and yield an empty result.
type Lister struct {
	fetcher listingFetcher
	scraper *Scraper
	url     string
	logger  *observability.Logger
}

func NewLister(f listingFetcher, s *Scraper, listingURL string, logger *observability.Logger) *Lister {
	return &Lister{fetcher: f, scraper: s, url: listingURL, logger: logger}
}

func (l *Lister) ListCandidates(ctx context.Context) []Candidate {
	resp, err := l.fetcher.FetchWithRetry(ctx, l.url)
	if err != nil {
		l.logger.Error("Listing fetch failed", "url", l.url, "error", err.Error())
		return nil
	}

	candidates, err := l.scraper.ParseListing(string(resp.Body), resp.URL)
	if err != nil {
		l.logger.Error("Listing parse failed", "url", l.url, "error", err.Error())
		return nil
	}

	l.logger.Info("Listing scraped", "url", l.url, "candidates", len(candidates))
	return candidates
}
