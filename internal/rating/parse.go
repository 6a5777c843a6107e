package rating

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"torrent-rating-notifier/internal/config"
)

// Parser extracts results from the rating site's search and detail pages.
type Parser struct {
	sel           config.RatingSelectors
	detailPattern *regexp.Regexp
}

func NewParser(sel config.RatingSelectors) (*Parser, error) {
	re, err := regexp.Compile(sel.DetailURLPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid detail url pattern: %w", err)
	}
	return &Parser{sel: sel, detailPattern: re}, nil
}

// IsDetailURL reports whether the search landed directly on a title page.
func (p *Parser) IsDetailURL(pageURL string) bool {
	return p.sel.DetailURLPattern != "" && p.detailPattern.MatchString(pageURL)
}

// FirstCandidateLink returns the absolute link of the first search result,
// or "" when the listing has no candidate entries.
func (p *Parser) FirstCandidateLink(doc *goquery.Document, base *url.URL) string {
	for _, cardSel := range p.sel.ResultCards {
		card := doc.Find(cardSel).First()
		if card.Length() == 0 {
			continue
		}
		for _, linkSel := range p.sel.ResultLinks {
			href, ok := card.Find(linkSel).First().Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return base.ResolveReference(ref).String()
		}
	}
	return ""
}

// ExtractRating returns the first parseable rating. Comma decimals are
// accepted.
func (p *Parser) ExtractRating(doc *goquery.Document) (float64, bool) {
	for _, selector := range p.sel.Rating {
		el := doc.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		candidates := []string{el.Text()}
		if content, ok := el.Attr("content"); ok {
			candidates = append(candidates, content)
		}
		for _, raw := range candidates {
			if v, ok := parseRating(raw); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// ParseDetail builds a Result from a title page. It returns nil when the page
// has no usable rating, whatever else it contains.
func (p *Parser) ParseDetail(doc *goquery.Document, pageURL string) *Result {
	rating, ok := p.ExtractRating(doc)
	if !ok {
		return nil
	}

	return &Result{
		Title:       p.title(doc),
		Rating:      rating,
		Genre:       p.genre(doc),
		AvailableOn: p.platforms(doc),
		DetailURL:   pageURL,
	}
}

func (p *Parser) title(doc *goquery.Document) string {
	for _, selector := range p.sel.Title {
		if text := cleanText(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		return cleanText(og)
	}
	return ""
}

func (p *Parser) genre(doc *goquery.Document) string {
	var genres []string
	for _, selector := range p.sel.Genre {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			genres = append(genres, cleanText(s.Text()))
		})
		if len(genres) > 0 {
			break
		}
	}

	if len(genres) == 0 && p.sel.GenreLabel != "" {
		doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
			if !strings.Contains(dt.Text(), p.sel.GenreLabel) {
				return true
			}
			genres = append(genres, cleanText(dt.NextFiltered("dd").Text()))
			return false
		})
	}

	return strings.Join(unique(genres), ", ")
}

func (p *Parser) platforms(doc *goquery.Document) []string {
	var labels []string
	for _, selector := range p.sel.Platforms {
		doc.Find(selector).Each(func(_ int, img *goquery.Selection) {
			alt, _ := img.Attr("alt")
			labels = append(labels, cleanText(alt))
		})
	}
	for _, selector := range p.sel.PlatformLinks {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			labels = append(labels, cleanText(a.Text()))
		})
	}
	return unique(labels)
}

func parseRating(raw string) (float64, bool) {
	text := strings.ReplaceAll(cleanText(raw), ",", ".")
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// cleanText collapses whitespace, NBSP included.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
