package rating

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/fetcher"
	"torrent-rating-notifier/internal/observability"
)

// ErrNoMatch means the site answered but nothing on the page resolved to a
// rated title.
var ErrNoMatch = errors.New("no rated match")

type Options struct {
	// SearchURL is the search endpoint; the escaped query is appended.
	SearchURL         string
	MaxAttempts       int
	DetailMaxAttempts int
	// SearchDelay precedes the first search attempt, RetryDelay every later one.
	SearchDelay      fetcher.Window
	RetryDelay       fetcher.Window
	DetailDelay      fetcher.Window
	RateLimitUnit    time.Duration
	AccessDeniedUnit time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	searchMin, searchMax := cfg.GetSearchDelay()
	retryMin, retryMax := cfg.GetRetryDelay()
	detailMin, detailMax := cfg.GetDetailDelay()
	return Options{
		SearchURL:         cfg.Rating.SearchURL,
		MaxAttempts:       cfg.Lookup.MaxAttempts,
		DetailMaxAttempts: cfg.Lookup.DetailMaxAttempts,
		SearchDelay:       fetcher.Window{Min: searchMin, Max: searchMax},
		RetryDelay:        fetcher.Window{Min: retryMin, Max: retryMax},
		DetailDelay:       fetcher.Window{Min: detailMin, Max: detailMax},
		RateLimitUnit:     cfg.GetRateLimitUnit(),
		AccessDeniedUnit:  cfg.GetAccessDeniedUnit(),
	}
}

// Client looks titles up on the rating site. It is built once per run and is
// not safe for concurrent use.
type Client struct {
	fetcher  fetcher.PageFetcher
	parser   *Parser
	pacer    *fetcher.Pacer
	opts     Options
	policies map[Class]retryPolicy
	logger   *observability.Logger
}

func NewClient(f fetcher.PageFetcher, parser *Parser, pacer *fetcher.Pacer, opts Options, logger *observability.Logger) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.DetailMaxAttempts < 1 {
		opts.DetailMaxAttempts = 1
	}
	return &Client{
		fetcher:  f,
		parser:   parser,
		pacer:    pacer,
		opts:     opts,
		policies: policyTable(opts.RateLimitUnit, opts.AccessDeniedUnit),
		logger:   logger,
	}
}

// Search never returns an error: exhausted retries and unresolvable pages end
// in StateNotFound, cancellation in StateFailed.
func (c *Client) Search(ctx context.Context, query string) Lookup {
	lookup := Lookup{State: StateSearching}
	searchURL := c.opts.SearchURL + url.QueryEscape(query)

	resp, attempts, err := c.retrieve(ctx, searchURL, c.opts.MaxAttempts, c.opts.SearchDelay, c.opts.RetryDelay)
	lookup.Attempts = attempts
	if err != nil {
		return c.settle(lookup, query, err)
	}

	lookup.State = StateResolving
	result, err := c.resolve(ctx, resp)
	if err != nil {
		return c.settle(lookup, query, err)
	}

	lookup.State = StateFetched
	lookup.Result = result
	c.logger.Info("Rating found",
		"query", query,
		"title", result.Title,
		"rating", result.Rating,
		"attempts", attempts,
	)
	return lookup
}

func (c *Client) settle(lookup Lookup, query string, err error) Lookup {
	lookup.Err = err
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		lookup.State = StateFailed
		c.logger.Warn("Lookup interrupted", "query", query, "error", err.Error())
		return lookup
	}
	lookup.State = StateNotFound
	c.logger.Info("No rating found", "query", query, "attempts", lookup.Attempts, "reason", err.Error())
	return lookup
}

// resolve turns a successful search response into a result:
// a direct detail page, else the first listed candidate, else a rating
// embedded in the listing itself.
func (c *Client) resolve(ctx context.Context, resp *fetcher.FetchResponse) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	if c.parser.IsDetailURL(resp.URL) {
		return c.detail(doc, resp.URL)
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid search page url: %w", err)
	}

	if link := c.parser.FirstCandidateLink(doc, base); link != "" {
		page, _, err := c.retrieve(ctx, link, c.opts.DetailMaxAttempts, c.opts.DetailDelay, c.opts.DetailDelay)
		if err != nil {
			return nil, fmt.Errorf("fetch detail page: %w", err)
		}
		detailDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return nil, fmt.Errorf("parse detail page: %w", err)
		}
		return c.detail(detailDoc, page.URL)
	}

	if _, ok := c.parser.ExtractRating(doc); ok {
		return c.detail(doc, resp.URL)
	}

	return nil, ErrNoMatch
}

func (c *Client) detail(doc *goquery.Document, pageURL string) (*Result, error) {
	result := c.parser.ParseDetail(doc, pageURL)
	if result == nil {
		return nil, fmt.Errorf("%w: no rating on %s", ErrNoMatch, pageURL)
	}
	return result, nil
}

// retrieve fetches urlStr with up to maxAttempts requests. Every attempt is
// preceded by a courtesy delay (first for attempt one, later for the rest);
// failed attempts back off according to the policy of their class.
func (c *Client) retrieve(ctx context.Context, urlStr string, maxAttempts int, first, later fetcher.Window) (*fetcher.FetchResponse, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		window := later
		if attempt == 1 {
			window = first
		}
		if _, err := c.pacer.Wait(ctx, window); err != nil {
			return nil, attempt - 1, err
		}

		resp, err := c.fetcher.Fetch(ctx, urlStr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, ctxErr
		}

		class, classErr := classify(urlStr, resp, err)
		if class == ClassOK {
			return resp, attempt, nil
		}
		lastErr = classErr

		if attempt == maxAttempts {
			break
		}

		wait := c.policies[class].backoff(attempt)
		c.logger.Warn("Request failed, retrying",
			"url", urlStr,
			"class", class.String(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", wait.String(),
			"error", classErr.Error(),
		)
		if wait > 0 {
			if err := c.pacer.Pause(ctx, wait); err != nil {
				return nil, attempt, err
			}
		}
	}

	c.logger.Warn("Retry budget exhausted", "url", urlStr, "attempts", maxAttempts, "error", lastErr.Error())
	return nil, maxAttempts, &ExhaustedError{URL: urlStr, Attempts: maxAttempts, Last: lastErr}
}
