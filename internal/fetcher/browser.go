package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/observability"
)

// BrowserFetcher loads pages in headless Chrome. Sites that answer plain HTTP
// clients with a JavaScript challenge serve the real page once it has run.
type BrowserFetcher struct {
	cfg      *config.Config
	logger   *observability.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
}

var _ PageFetcher = (*BrowserFetcher)(nil)

func NewBrowserFetcher(cfg *config.Config, logger *observability.Logger) (*BrowserFetcher, error) {
	l := launcher.New().Headless(true)
	if cfg.Rod.ChromePath != "" {
		l = l.Bin(cfg.Rod.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.Info("Headless browser started", "control_url", controlURL)
	return &BrowserFetcher{cfg: cfg, logger: logger, launcher: l, browser: browser}, nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	page, err := b.browser.Context(pageCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Debug("Failed to close page", "url", urlStr, "error", err.Error())
		}
	}()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      b.cfg.HTTP.UserAgent,
		AcceptLanguage: b.cfg.HTTP.AcceptLanguage,
	}); err != nil {
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	// The last document response wins: challenge pages answer 403 first and
	// then reload into the real page.
	var (
		mu     sync.Mutex
		status int
	)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument {
			return
		}
		mu.Lock()
		status = e.Response.Status
		mu.Unlock()
	})
	go wait()

	timed := page.Timeout(b.cfg.GetRodPageTimeout())
	if err := timed.Navigate(urlStr); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(b.cfg.GetRodWaitLoadTimeout()).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if err := Sleep(ctx, b.cfg.GetRodLazyLoadDelay()); err != nil {
		return nil, err
	}

	html, err := timed.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	info, err := timed.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	mu.Lock()
	code := status
	mu.Unlock()
	if code == 0 {
		code = http.StatusOK
	}

	b.logger.Debug("Fetched with browser", "url", urlStr, "final_url", info.URL, "status", code, "bytes", len(html))

	return &FetchResponse{
		StatusCode: code,
		Body:       []byte(html),
		URL:        info.URL,
		Headers:    http.Header{},
	}, nil
}

func (b *BrowserFetcher) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}
