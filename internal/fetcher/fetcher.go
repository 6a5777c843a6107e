package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/observability"
)

const maxBodyBytes = 8 << 20

// ErrBodyTooLarge is returned instead of a truncated page.
var ErrBodyTooLarge = errors.New("response body too large")

// PageFetcher performs a single GET. Non-2xx statuses are not errors; callers
// classify them.
type PageFetcher interface {
	Fetch(ctx context.Context, urlStr string) (*FetchResponse, error)
}

type Fetcher struct {
	client *http.Client
	cfg    *config.Config
	logger *observability.Logger
}

type FetchResponse struct {
	StatusCode int
	Body       []byte
	// URL is the final URL after redirects.
	URL     string
	Headers http.Header
}

func NewFetcher(cfg *config.Config, logger *observability.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.GetTotalTimeout(),
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: cfg.GetConnectTimeout()}).DialContext,
			TLSHandshakeTimeout: cfg.GetConnectTimeout(),
			MaxIdleConns:        cfg.HTTP.MaxIdleConnections,
			MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnectionsPerHost,
			IdleConnTimeout:     cfg.GetIdleConnectionTimeout(),
		},
	}

	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch performs one request.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req.Header.Set("User-Agent", f.cfg.HTTP.UserAgent)
	req.Header.Set("Accept-Language", f.cfg.HTTP.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("Failed to close response body", "url", urlStr, "error", err.Error())
		}
	}()

	reader := io.Reader(resp.Body)
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("malformed gzip body: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, urlStr, maxBodyBytes)
	}

	f.logger.Debug("Fetched",
		"url", urlStr,
		"final_url", resp.Request.URL.String(),
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes", len(body),
	)

	return &FetchResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		URL:        resp.Request.URL.String(),
		Headers:    resp.Header,
	}, nil
}

// FetchWithRetry retries transport errors, 5xx and 429 with jittered
// exponential backoff and returns an error unless the final status is 2xx.
func (f *Fetcher) FetchWithRetry(ctx context.Context, urlStr string) (*FetchResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.HTTP.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.calculateBackoff(attempt)
			f.logger.Debug("Retrying fetch", "url", urlStr, "attempt", attempt, "backoff", backoff.String())
			if err := Sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := f.Fetch(ctx, urlStr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("fetch failed after %d retries: %w", f.cfg.HTTP.MaxRetries, lastErr)
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	minMS := f.cfg.Backoff.MinMS
	maxMS := f.cfg.Backoff.MaxMS
	jitterPct := f.cfg.Backoff.JitterPct

	// Exponential backoff: min * 2^(attempt-1)
	exponential := minMS * (1 << uint(attempt-1))
	if exponential > maxMS || exponential <= 0 {
		exponential = maxMS
	}

	// Apply jitter: ±jitterPct%
	jitterRange := float64(exponential) * float64(jitterPct) / 100
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange
	finalMS := float64(exponential) + jitter

	if finalMS < float64(minMS) {
		finalMS = float64(minMS)
	}

	return time.Duration(math.Max(finalMS, 0)) * time.Millisecond
}
