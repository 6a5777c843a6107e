package app

import (
	"context"
	"fmt"
	"time"

	"torrent-rating-notifier/internal/normalize"
	"torrent-rating-notifier/internal/notify"
	"torrent-rating-notifier/internal/observability"
	"torrent-rating-notifier/internal/rating"
	"torrent-rating-notifier/internal/scraper"
	"torrent-rating-notifier/internal/storage"
)

type Lister interface {
	ListCandidates(ctx context.Context) []scraper.Candidate
}

type Searcher interface {
	Search(ctx context.Context, query string) rating.Lookup
}

type PipelineOptions struct {
	RatingThreshold float64
	MaxTitlesPerRun int
}

// Pipeline runs one pass: list candidates, skip what is already processed,
// look the rest up, record every outcome and notify the good ones.
type Pipeline struct {
	lister     Lister
	normalizer *normalize.Normalizer
	store      storage.Repository
	searcher   Searcher
	notifier   notify.Notifier
	opts       PipelineOptions
	logger     *observability.Logger
	now        func() time.Time
}

func NewPipeline(
	lister Lister,
	normalizer *normalize.Normalizer,
	store storage.Repository,
	searcher Searcher,
	notifier notify.Notifier,
	opts PipelineOptions,
	logger *observability.Logger,
) *Pipeline {
	return &Pipeline{
		lister:     lister,
		normalizer: normalizer,
		store:      store,
		searcher:   searcher,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type RunStats struct {
	Candidates     int
	Skipped        int
	Processed      int
	Notified       int
	NotFound       int
	Degenerate     int
	Deferred       int
	NotifyFailures int
	StoppedReason  string
}

// Run processes the current listing. The store must already be loaded.
// Lookup outcomes never fail a run; a cancelled lookup or a failed store
// write stops it and is returned.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	started := time.Now()
	stats := &RunStats{}

	candidates := p.lister.ListCandidates(ctx)
	stats.Candidates = len(candidates)

	p.logger.Info("Starting run",
		"candidates", len(candidates),
		"already_processed", p.store.Len(),
		"threshold", p.opts.RatingThreshold,
		"max_titles_per_run", p.opts.MaxTitlesPerRun,
	)

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			stats.StoppedReason = fmt.Sprintf("interrupted before candidate %d", i+1)
			p.finish(stats, started)
			return stats, err
		}

		query := normalize.ToSearchQuery(candidate.RawTitle)
		key := p.normalizer.Key(candidate.RawTitle)
		if query == "" || key == "" {
			stats.Degenerate++
			p.logger.Warn("Degenerate title skipped", "raw_title", candidate.RawTitle, "url", candidate.SourceURL)
			continue
		}

		if p.store.Contains(key) {
			stats.Skipped++
			p.logger.Debug("Already processed", "key", key, "raw_title", candidate.RawTitle)
			continue
		}

		if stats.Processed >= p.opts.MaxTitlesPerRun {
			stats.Deferred++
			p.logger.Debug("Deferred to next run", "key", key)
			continue
		}

		p.logger.Info("Looking up title",
			"index", i+1,
			"of", len(candidates),
			"key", key,
			"query", query,
		)

		lookup := p.searcher.Search(ctx, query)
		if lookup.State == rating.StateFailed {
			stats.StoppedReason = fmt.Sprintf("lookup interrupted for %q", key)
			p.finish(stats, started)
			return stats, fmt.Errorf("lookup %q: %w", key, lookup.Err)
		}

		rec := storage.Record{
			Key:          key,
			DisplayTitle: candidate.RawTitle,
			ProcessedAt:  p.now(),
		}
		if lookup.Found() {
			r := lookup.Result.Rating
			rec.Rating = &r
			rec.Notified = r >= p.opts.RatingThreshold
		} else {
			stats.NotFound++
		}

		if err := p.store.Record(key, rec); err != nil {
			stats.StoppedReason = fmt.Sprintf("store write failed for %q", key)
			p.logger.Error("Failed to record title", "key", key, "error", err.Error())
			p.finish(stats, started)
			return stats, err
		}
		stats.Processed++

		if !rec.Notified {
			continue
		}
		stats.Notified++

		err := p.notifier.Notify(ctx, notify.Notification{
			Record:     rec,
			Result:     lookup.Result,
			TorrentURL: candidate.SourceURL,
		})
		if err != nil {
			stats.NotifyFailures++
			p.logger.Error("Notification failed", "key", key, "error", err.Error())
		}
	}

	stats.StoppedReason = "listing exhausted"
	p.finish(stats, started)
	return stats, nil
}

func (p *Pipeline) finish(stats *RunStats, started time.Time) {
	p.logger.Info("Run completed",
		"candidates", stats.Candidates,
		"skipped", stats.Skipped,
		"processed", stats.Processed,
		"notified", stats.Notified,
		"not_found", stats.NotFound,
		"degenerate", stats.Degenerate,
		"deferred", stats.Deferred,
		"notify_failures", stats.NotifyFailures,
		"reason", stats.StoppedReason,
		"duration", time.Since(started).Round(time.Millisecond).String(),
	)
}
