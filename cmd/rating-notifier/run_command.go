package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"torrent-rating-notifier/internal/app"
	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/fetcher"
	"torrent-rating-notifier/internal/normalize"
	"torrent-rating-notifier/internal/notify"
	"torrent-rating-notifier/internal/observability"
	"torrent-rating-notifier/internal/rating"
	"torrent-rating-notifier/internal/scraper"
	"torrent-rating-notifier/internal/storage"
	"torrent-rating-notifier/internal/storage/jsonfile"
)

func newRunCommand(cc *commandContext) *cobra.Command {
	var resetCorrupt bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over the torrent listing (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cc, resetCorrupt)
		},
	}
	cmd.Flags().BoolVar(&resetCorrupt, "reset-corrupt", false, "Move a corrupt state document aside and start with an empty history")
	return cmd
}

func runPipeline(cmd *cobra.Command, cc *commandContext, resetCorrupt bool) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}

	baseLogger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer baseLogger.Close()
	logger := baseLogger.With("run_id", uuid.NewString())

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	lockPath := cfg.GetLockPath()
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		logger.Error("Another run holds the lock", "lock", lockPath)
		return fmt.Errorf("another run is already in progress (lock %s)", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	store := jsonfile.New(cfg.Storage.Path)
	if err := loadStore(store, resetCorrupt, logger); err != nil {
		return err
	}
	logger.Info("History loaded", "path", store.Path(), "titles", store.Len())

	ctx, cancel := app.GracefulShutdown(cmd.Context(), logger, cfg.GetRunTimeout())
	defer cancel()

	httpFetcher := fetcher.NewFetcher(cfg, logger)
	var pageFetcher fetcher.PageFetcher = httpFetcher
	if cfg.Rod.Enabled {
		browser, err := fetcher.NewBrowserFetcher(cfg, logger)
		if err != nil {
			return err
		}
		defer browser.Close()
		pageFetcher = browser
	}

	parser, err := rating.NewParser(cfg.Rating.Selectors)
	if err != nil {
		return err
	}
	pacer := fetcher.NewPacer(nil, time.Now().UnixNano())
	client := rating.NewClient(pageFetcher, parser, pacer, rating.OptionsFromConfig(cfg), logger)

	scr, err := scraper.NewScraper(cfg.Listing.Selectors)
	if err != nil {
		return err
	}
	lister := scraper.NewLister(httpFetcher, scr, cfg.Listing.URL, logger)

	pipeline := app.NewPipeline(
		lister,
		normalize.NewNormalizer(cfg.Dedup),
		store,
		client,
		notify.New(cfg, logger),
		pipelineOptions(cfg),
		logger,
	)

	if _, err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("run stopped: %w", err)
	}
	return nil
}

func pipelineOptions(cfg *config.Config) app.PipelineOptions {
	return app.PipelineOptions{
		RatingThreshold: cfg.Pipeline.RatingThreshold,
		MaxTitlesPerRun: cfg.Pipeline.MaxTitlesPerRun,
	}
}

// loadStore loads the history. A corrupt document is fatal unless reset is
// set, in which case it is moved aside and the run starts from nothing.
func loadStore(store *jsonfile.Store, reset bool, logger *observability.Logger) error {
	_, err := store.Load()
	if err == nil {
		return nil
	}

	var corrupt *storage.CorruptStateError
	if !errors.As(err, &corrupt) || !reset {
		return err
	}

	moved, qerr := jsonfile.Quarantine(store.Path(), time.Now())
	if qerr != nil {
		return fmt.Errorf("quarantine corrupt state: %w", qerr)
	}
	logger.Warn("Corrupt history moved aside, starting fresh",
		"path", store.Path(),
		"moved_to", moved,
		"error", corrupt.Err.Error(),
	)

	_, err = store.Load()
	return err
}
