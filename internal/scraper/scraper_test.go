package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/fetcher"
	"torrent-rating-notifier/internal/observability"
)

const listingHTML = `
<html><body>
  <nav>
    <a href="/peliculas/">Peliculas</a>
    <a href="/series/">Series</a>
  </nav>
  <div class="list">
    <a href="/pelicula/1234/dune">Dune (2021) [1080p] BluRay</a>
    <a href="/pelicula/1235/dune-720">  Dune (2021) [1080p]   BluRay </a>
    <a href="https://www40.mejortorrent.eu/serie/88/99/the-bear#top">The Bear S02E05</a>
    <a href="/pelicula/77/x">Up</a>
    <a href="/pelicula/sin-id">Sin Identificador</a>
    <a href="/serie/12/34/shogun"><b>Shogun</b> 1ª Temporada</a>
  </div>
</body></html>`

func newTestScraper(t *testing.T) *Scraper {
	s, err := NewScraper(config.Default().Listing.Selectors)
	require.NoError(t, err)
	return s
}

func TestParseListing(t *testing.T) {
	cards, err := newTestScraper(t).ParseListing(listingHTML, "https://www40.mejortorrent.eu/torrents")
	require.NoError(t, err)

	require.Equal(t, []Candidate{
		{RawTitle: "Dune (2021) [1080p] BluRay", SourceURL: "https://www40.mejortorrent.eu/pelicula/1234/dune"},
		{RawTitle: "The Bear S02E05", SourceURL: "https://www40.mejortorrent.eu/serie/88/99/the-bear"},
		{RawTitle: "Shogun 1ª Temporada", SourceURL: "https://www40.mejortorrent.eu/serie/12/34/shogun"},
	}, cards)
}

func TestNewScraperRejectsBadPattern(t *testing.T) {
	_, err := NewScraper(config.ListingSelectors{Links: "a", HrefPattern: "("})
	assert.Error(t, err)
}

type stubListingFetcher struct {
	resp *fetcher.FetchResponse
	err  error
}

func (s stubListingFetcher) FetchWithRetry(context.Context, string) (*fetcher.FetchResponse, error) {
	return s.resp, s.err
}

func TestListCandidates(t *testing.T) {
	resp := &fetcher.FetchResponse{StatusCode: 200, Body: []byte(listingHTML), URL: "https://www40.mejortorrent.eu/torrents"}
	l := NewLister(stubListingFetcher{resp: resp}, newTestScraper(t), resp.URL, observability.NewNop())

	assert.Len(t, l.ListCandidates(context.Background()), 3)
}

func TestListCandidatesFailureIsEmpty(t *testing.T) {
	l := NewLister(stubListingFetcher{err: errors.New("boom")}, newTestScraper(t), "https://example.com", observability.NewNop())

	assert.Empty(t, l.ListCandidates(context.Background()))
}
