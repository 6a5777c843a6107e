package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	Listing       ListingConfig       `yaml:"listing"`
	Rating        RatingConfig        `yaml:"rating"`
	Lookup        LookupConfig        `yaml:"lookup"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HttpConfig          `yaml:"http"`
	Backoff       BackoffConfig       `yaml:"backoff"`
	Rod           RodConfig           `yaml:"rod"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ListingConfig struct {
	URL       string           `yaml:"url"`
	Selectors ListingSelectors `yaml:"selectors"`
}

// ListingSelectors describes where candidate titles live on the torrent listing.
type ListingSelectors struct {
	Links          string `yaml:"links"`
	HrefPattern    string `yaml:"href_pattern"`
	MinTitleLength int    `yaml:"min_title_length"`
}

type RatingConfig struct {
	// SearchURL is the search endpoint; the escaped query is appended. Result
	// links are resolved against the page they were found on.
	SearchURL string          `yaml:"search_url"`
	Selectors RatingSelectors `yaml:"selectors"`
}

// RatingSelectors describes the rating site's search and detail pages.
// Every list is tried in order; the first selector yielding a value wins.
type RatingSelectors struct {
	DetailURLPattern string   `yaml:"detail_url_pattern"`
	ResultCards      []string `yaml:"result_cards"`
	ResultLinks      []string `yaml:"result_links"`
	Title            []string `yaml:"title"`
	Rating           []string `yaml:"rating"`
	Genre            []string `yaml:"genre"`
	GenreLabel       string   `yaml:"genre_label"`
	Platforms        []string `yaml:"platforms"`
	PlatformLinks    []string `yaml:"platform_links"`
}

type LookupConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	DetailMaxAttempts int `yaml:"detail_max_attempts"`
	SearchDelayMinMS  int `yaml:"search_delay_min_ms"`
	SearchDelayMaxMS  int `yaml:"search_delay_max_ms"`
	RetryDelayMinMS   int `yaml:"retry_delay_min_ms"`
	RetryDelayMaxMS   int `yaml:"retry_delay_max_ms"`
	DetailDelayMinMS  int `yaml:"detail_delay_min_ms"`
	DetailDelayMaxMS  int `yaml:"detail_delay_max_ms"`
	RateLimitUnitS    int `yaml:"rate_limit_unit_s"`
	AccessDeniedUnitS int `yaml:"access_denied_unit_s"`
}

type PipelineConfig struct {
	RatingThreshold float64 `yaml:"rating_threshold"`
	MaxTitlesPerRun int     `yaml:"max_titles_per_run"`
	// RunTimeoutMin bounds a whole run; 0 means no deadline.
	RunTimeoutMin int `yaml:"run_timeout_min"`
}

type DedupConfig struct {
	IncludeYear bool `yaml:"include_year"`
}

type StorageConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

type HttpConfig struct {
	UserAgent                 string `yaml:"user_agent"`
	AcceptLanguage            string `yaml:"accept_language"`
	ConnectTimeoutMS          int    `yaml:"connect_timeout_ms"`
	TotalTimeoutMS            int    `yaml:"total_timeout_ms"`
	MaxRetries                int    `yaml:"max_retries"`
	MaxIdleConnections        int    `yaml:"max_idle_connections"`
	MaxIdleConnectionsPerHost int    `yaml:"max_idle_connections_per_host"`
	IdleConnectionTimeoutS    int    `yaml:"idle_connection_timeout_s"`
}

type BackoffConfig struct {
	MinMS     int `yaml:"min_ms"`
	MaxMS     int `yaml:"max_ms"`
	JitterPct int `yaml:"jitter_pct"`
}

type RodConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ChromePath       string `yaml:"chrome_path"`
	PageTimeoutS     int    `yaml:"page_timeout_s"`
	WaitLoadTimeoutS int    `yaml:"wait_load_timeout_s"`
	LazyLoadDelayS   int    `yaml:"lazy_load_delay_s"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

type ObservabilityConfig struct {
	LogPath       string `yaml:"log_path"`
	LogLevel      string `yaml:"log_level"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	LogCompress   bool   `yaml:"log_compress"`
}

// Default returns a configuration that works against the sites the tool was
// written for. Files and environment variables are layered on top of it.
func Default() *Config {
	return &Config{
		Listing: ListingConfig{
			URL: "https://www40.mejortorrent.eu/torrents",
			Selectors: ListingSelectors{
				Links:          "a[href*='/pelicula/'], a[href*='/serie/']",
				HrefPattern:    `/(pelicula|serie)/\d+`,
				MinTitleLength: 4,
			},
		},
		Rating: RatingConfig{
			SearchURL: "https://www.filmaffinity.com/es/search.php?stext=",
			Selectors: RatingSelectors{
				DetailURLPattern: `/film\d+\.html|movie\.php`,
				ResultCards:      []string{".se-it", ".movie-card", "[data-movie-id]"},
				ResultLinks:      []string{"a[href*='/film']", ".mc-title a"},
				Title:            []string{"#main-title span", "h1#main-title", ".movie-title", "h1[itemprop='name']"},
				Rating:           []string{"#movie-rat-avg", ".avg-rating", "[itemprop='ratingValue']", ".avgrat-box", ".rat-avg"},
				Genre:            []string{"[itemprop='genre']", ".genres span"},
				GenreLabel:       "Género",
				Platforms:        []string{".just-watch-prov img", ".streaming-providers img", ".vwine-p .vwine-p-item img"},
				PlatformLinks:    []string{"a[href*='justwatch']", ".wtp-links a"},
			},
		},
		Lookup: LookupConfig{
			MaxAttempts:       3,
			DetailMaxAttempts: 2,
			SearchDelayMinMS:  3000,
			SearchDelayMaxMS:  6000,
			RetryDelayMinMS:   10000,
			RetryDelayMaxMS:   20000,
			DetailDelayMinMS:  2000,
			DetailDelayMaxMS:  4000,
			RateLimitUnitS:    30,
			AccessDeniedUnitS: 15,
		},
		Pipeline: PipelineConfig{
			RatingThreshold: 7.0,
			MaxTitlesPerRun: 20,
		},
		Storage: StorageConfig{
			Path: "historial.json",
		},
		HTTP: HttpConfig{
			UserAgent:                 "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			AcceptLanguage:            "es-ES,es;q=0.9,en;q=0.8",
			ConnectTimeoutMS:          15000,
			TotalTimeoutMS:            20000,
			MaxRetries:                2,
			MaxIdleConnections:        20,
			MaxIdleConnectionsPerHost: 4,
			IdleConnectionTimeoutS:    90,
		},
		Backoff: BackoffConfig{
			MinMS:     500,
			MaxMS:     4000,
			JitterPct: 20,
		},
		Rod: RodConfig{
			PageTimeoutS:     60,
			WaitLoadTimeoutS: 30,
			LazyLoadDelayS:   2,
		},
		Telegram: TelegramConfig{
			APIBaseURL: "https://api.telegram.org",
			TimeoutMS:  10000,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			LogMaxAgeDays: 28,
		},
	}
}

// Validation
func (c *Config) Validate() error {
	if c.Listing.URL == "" {
		return fmt.Errorf("listing.url is required")
	}
	if c.Listing.Selectors.Links == "" {
		return fmt.Errorf("listing.selectors.links is required")
	}
	if c.Listing.Selectors.HrefPattern != "" {
		if _, err := regexp.Compile(c.Listing.Selectors.HrefPattern); err != nil {
			return fmt.Errorf("listing.selectors.href_pattern is invalid: %w", err)
		}
	}
	if c.Rating.SearchURL == "" {
		return fmt.Errorf("rating.search_url is required")
	}
	if _, err := regexp.Compile(c.Rating.Selectors.DetailURLPattern); err != nil {
		return fmt.Errorf("rating.selectors.detail_url_pattern is invalid: %w", err)
	}
	if len(c.Rating.Selectors.Rating) == 0 {
		return fmt.Errorf("rating.selectors.rating is required")
	}
	if c.Lookup.MaxAttempts < 1 {
		return fmt.Errorf("lookup.max_attempts must be >= 1")
	}
	if c.Lookup.DetailMaxAttempts < 1 {
		return fmt.Errorf("lookup.detail_max_attempts must be >= 1")
	}
	if err := validateRange("lookup.search_delay", c.Lookup.SearchDelayMinMS, c.Lookup.SearchDelayMaxMS); err != nil {
		return err
	}
	if err := validateRange("lookup.retry_delay", c.Lookup.RetryDelayMinMS, c.Lookup.RetryDelayMaxMS); err != nil {
		return err
	}
	if err := validateRange("lookup.detail_delay", c.Lookup.DetailDelayMinMS, c.Lookup.DetailDelayMaxMS); err != nil {
		return err
	}
	if c.Lookup.RateLimitUnitS < 0 || c.Lookup.AccessDeniedUnitS < 0 {
		return fmt.Errorf("lookup backoff units must be >= 0")
	}
	if c.Pipeline.RatingThreshold < 0 {
		return fmt.Errorf("pipeline.rating_threshold must be >= 0")
	}
	if c.Pipeline.MaxTitlesPerRun <= 0 {
		return fmt.Errorf("pipeline.max_titles_per_run must be > 0")
	}
	if c.Pipeline.RunTimeoutMin < 0 {
		return fmt.Errorf("pipeline.run_timeout_min must be >= 0")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("http.connect_timeout_ms must be > 0")
	}
	if c.HTTP.TotalTimeoutMS <= 0 {
		return fmt.Errorf("http.total_timeout_ms must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Backoff.MinMS <= 0 {
		return fmt.Errorf("backoff.min_ms must be > 0")
	}
	if c.Backoff.MinMS > c.Backoff.MaxMS {
		return fmt.Errorf("backoff.min_ms must be <= backoff.max_ms")
	}
	if c.Backoff.JitterPct < 0 || c.Backoff.JitterPct > 100 {
		return fmt.Errorf("backoff.jitter_pct must be between 0 and 100")
	}
	if c.Rod.Enabled {
		if c.Rod.PageTimeoutS <= 0 {
			return fmt.Errorf("rod.page_timeout_s must be > 0")
		}
		if c.Rod.WaitLoadTimeoutS <= 0 {
			return fmt.Errorf("rod.wait_load_timeout_s must be > 0")
		}
		if c.Rod.LazyLoadDelayS < 0 {
			return fmt.Errorf("rod.lazy_load_delay_s must be >= 0")
		}
	}
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.log_level must be one of debug, info, warn, error")
	}
	return nil
}

func validateRange(name string, minMS, maxMS int) error {
	if minMS < 0 {
		return fmt.Errorf("%s_min_ms must be >= 0", name)
	}
	if minMS > maxMS {
		return fmt.Errorf("%s_min_ms must be <= %s_max_ms", name, name)
	}
	return nil
}

// Getters
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.HTTP.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) GetTotalTimeout() time.Duration {
	return time.Duration(c.HTTP.TotalTimeoutMS) * time.Millisecond
}

func (c *Config) GetIdleConnectionTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleConnectionTimeoutS) * time.Second
}

func (c *Config) GetBackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinMS) * time.Millisecond
}

func (c *Config) GetBackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMS) * time.Millisecond
}

func (c *Config) GetSearchDelay() (time.Duration, time.Duration) {
	return ms(c.Lookup.SearchDelayMinMS), ms(c.Lookup.SearchDelayMaxMS)
}

func (c *Config) GetRetryDelay() (time.Duration, time.Duration) {
	return ms(c.Lookup.RetryDelayMinMS), ms(c.Lookup.RetryDelayMaxMS)
}

func (c *Config) GetDetailDelay() (time.Duration, time.Duration) {
	return ms(c.Lookup.DetailDelayMinMS), ms(c.Lookup.DetailDelayMaxMS)
}

func (c *Config) GetRateLimitUnit() time.Duration {
	return time.Duration(c.Lookup.RateLimitUnitS) * time.Second
}

func (c *Config) GetAccessDeniedUnit() time.Duration {
	return time.Duration(c.Lookup.AccessDeniedUnitS) * time.Second
}

func (c *Config) GetRunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutMin) * time.Minute
}

func (c *Config) GetTelegramTimeout() time.Duration {
	return ms(c.Telegram.TimeoutMS)
}

func (c *Config) GetRodPageTimeout() time.Duration {
	return time.Duration(c.Rod.PageTimeoutS) * time.Second
}

func (c *Config) GetRodWaitLoadTimeout() time.Duration {
	return time.Duration(c.Rod.WaitLoadTimeoutS) * time.Second
}

func (c *Config) GetRodLazyLoadDelay() time.Duration {
	return time.Duration(c.Rod.LazyLoadDelayS) * time.Second
}

// GetLockPath defaults to a sibling of the state document.
func (c *Config) GetLockPath() string {
	if c.Storage.LockPath != "" {
		return c.Storage.LockPath
	}
	return c.Storage.Path + ".lock"
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
