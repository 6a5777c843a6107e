package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/normalize"
)

type Scraper struct {
	selectors   config.ListingSelectors
	hrefPattern *regexp.Regexp
}

func NewScraper(selectors config.ListingSelectors) (*Scraper, error) {
	s := &Scraper{selectors: selectors}
	if selectors.HrefPattern != "" {
		re, err := regexp.Compile(selectors.HrefPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid href pattern: %w", err)
		}
		s.hrefPattern = re
	}
	return s, nil
}

// ParseListing returns the candidates on a listing page in document order.
// Navigation links, short labels and repeated titles are dropped; relative
// links are resolved against pageURL.
func (s *Scraper) ParseListing(html, pageURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	var candidates []Candidate
	seen := make(map[string]struct{})

	doc.Find(s.selectors.Links).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if s.hrefPattern != nil && !s.hrefPattern.MatchString(href) {
			return
		}

		title := strings.Join(strings.Fields(sel.Text()), " ")
		if len([]rune(title)) < s.selectors.MinTitleLength {
			return
		}
		if _, dup := seen[title]; dup {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}

		seen[title] = struct{}{}
		candidates = append(candidates, Candidate{
			RawTitle:  title,
			SourceURL: normalize.NormalizeURL(base.ResolveReference(ref).String()),
		})
	})

	return candidates, nil
}
