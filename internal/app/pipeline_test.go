package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/normalize"
	"torrent-rating-notifier/internal/notify"
	"torrent-rating-notifier/internal/observability"
	"torrent-rating-notifier/internal/rating"
	"torrent-rating-notifier/internal/scraper"
	"torrent-rating-notifier/internal/storage"
	"torrent-rating-notifier/internal/storage/jsonfile"
)

type staticLister []scraper.Candidate

func (l staticLister) ListCandidates(context.Context) []scraper.Candidate {
	return l
}

// fakeSearcher answers from a query → rating table; unknown queries are not found.
type fakeSearcher struct {
	ratings map[string]float64
	failOn  string
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) rating.Lookup {
	f.queries = append(f.queries, query)
	if query == f.failOn {
		return rating.Lookup{State: rating.StateFailed, Err: context.Canceled}
	}
	r, ok := f.ratings[query]
	if !ok {
		return rating.Lookup{State: rating.StateNotFound, Attempts: 1, Err: rating.ErrNoMatch}
	}
	return rating.Lookup{
		State:    rating.StateFetched,
		Attempts: 1,
		Result:   &rating.Result{Title: query, Rating: r, DetailURL: "https://rating.example/" + query},
	}
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note notify.Notification) error {
	n.sent = append(n.sent, note)
	return n.err
}

type failingStore struct {
	storage.Repository
}

func (failingStore) Record(string, storage.Record) error {
	return errors.New("disk full")
}

type harness struct {
	path     string
	store    *jsonfile.Store
	searcher *fakeSearcher
	notifier *recordingNotifier
}

func newHarness(t *testing.T, ratings map[string]float64) *harness {
	t.Helper()
	h := &harness{
		path:     filepath.Join(t.TempDir(), "historial.json"),
		searcher: &fakeSearcher{ratings: ratings},
		notifier: &recordingNotifier{},
	}
	h.reload(t)
	return h
}

func (h *harness) reload(t *testing.T) {
	t.Helper()
	h.store = jsonfile.New(h.path)
	_, err := h.store.Load()
	require.NoError(t, err)
}

func (h *harness) pipeline(candidates []scraper.Candidate, opts PipelineOptions) *Pipeline {
	return h.pipelineWithStore(candidates, opts, h.store)
}

func (h *harness) pipelineWithStore(candidates []scraper.Candidate, opts PipelineOptions, store storage.Repository) *Pipeline {
	p := NewPipeline(
		staticLister(candidates),
		normalize.NewNormalizer(config.DedupConfig{}),
		store,
		h.searcher,
		h.notifier,
		opts,
		observability.NewNop(),
	)
	p.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }
	return p
}

func defaultOptions() PipelineOptions {
	return PipelineOptions{RatingThreshold: 7.0, MaxTitlesPerRun: 20}
}

func TestRunDuneEndToEnd(t *testing.T) {
	h := newHarness(t, map[string]float64{"Dune": 7.8})
	candidates := []scraper.Candidate{
		{RawTitle: "Dune (2021) [1080p] BluRay", SourceURL: "https://torrent.example/pelicula/1/dune"},
	}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Dune"}, h.searcher.queries)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Notified)

	rec, ok := h.store.Get("dune")
	require.True(t, ok)
	require.NotNil(t, rec.Rating)
	assert.Equal(t, 7.8, *rec.Rating)
	assert.True(t, rec.Notified)
	assert.Equal(t, "Dune (2021) [1080p] BluRay", rec.DisplayTitle)

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "https://torrent.example/pelicula/1/dune", h.notifier.sent[0].TorrentURL)
	assert.Equal(t, "https://rating.example/Dune", h.notifier.sent[0].Result.DetailURL)

	// Second run over the same listing, fresh process.
	h.reload(t)
	h.searcher.queries = nil
	stats, err = h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.searcher.queries)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Processed)
	assert.Len(t, h.notifier.sent, 1)
}

func TestRunSkipsTitlesFromLegacyHistory(t *testing.T) {
	h := newHarness(t, map[string]float64{"Schindler's List": 8.9, "Ocean's Eleven": 7.2})
	legacy := `{
  "peliculas": {
    "schindlers list": {"titulo": "Schindler's List", "nota": 8.9, "fecha": "2025-03-01", "notificado": true},
    "oceans eleven": {"titulo": "Ocean's Eleven", "nota": 7.2, "fecha": "2025-03-01", "notificado": true}
  }
}`
	require.NoError(t, os.WriteFile(h.path, []byte(legacy), 0o644))
	h.reload(t)

	candidates := []scraper.Candidate{
		{RawTitle: "Schindler's List (1993) [1080p] BluRay"},
		{RawTitle: "Ocean’s Eleven [720p]"},
	}
	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.searcher.queries)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Notified)
	assert.Empty(t, h.notifier.sent)
}

func TestRunThresholdBoundary(t *testing.T) {
	h := newHarness(t, map[string]float64{"Exact": 7.0, "Below": 6.0})
	candidates := []scraper.Candidate{{RawTitle: "Exact"}, {RawTitle: "Below"}}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Notified)

	exact, _ := h.store.Get("exact")
	below, _ := h.store.Get("below")
	assert.True(t, exact.Notified)
	assert.False(t, below.Notified)
	require.NotNil(t, below.Rating)
	assert.Equal(t, 6.0, *below.Rating)
}

func TestRunRecordsNotFound(t *testing.T) {
	h := newHarness(t, nil)

	stats, err := h.pipeline([]scraper.Candidate{{RawTitle: "Unknown Film"}}, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NotFound)
	rec, ok := h.store.Get("unknown film")
	require.True(t, ok)
	assert.Nil(t, rec.Rating)
	assert.False(t, rec.Notified)
	assert.Empty(t, h.notifier.sent)
}

func TestRunSkipsDegenerateTitles(t *testing.T) {
	h := newHarness(t, nil)
	candidates := []scraper.Candidate{{RawTitle: "[1080p] (2021)"}, {RawTitle: "!!"}}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Degenerate)
	assert.Empty(t, h.searcher.queries)
	assert.Equal(t, 0, h.store.Len())
}

func TestRunDedupsWithinListing(t *testing.T) {
	h := newHarness(t, map[string]float64{"Dune": 8.0})
	candidates := []scraper.Candidate{
		{RawTitle: "Dune (2021) [1080p]"},
		{RawTitle: "DUNE [4K] 1080p"},
	}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.searcher.queries, 1)
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, h.notifier.sent, 1)
}

func TestRunDefersBeyondCap(t *testing.T) {
	h := newHarness(t, nil)
	candidates := []scraper.Candidate{{RawTitle: "First"}, {RawTitle: "Second"}, {RawTitle: "Third"}}
	opts := defaultOptions()
	opts.MaxTitlesPerRun = 2

	stats, err := h.pipeline(candidates, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Deferred)
	assert.False(t, h.store.Contains("third"))

	h.reload(t)
	stats, err = h.pipeline(candidates, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Skipped)
	assert.True(t, h.store.Contains("third"))
}

func TestRunNotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, map[string]float64{"Alpha": 9.0, "Beta": 8.0})
	h.notifier.err = errors.New("telegram down")
	candidates := []scraper.Candidate{{RawTitle: "Alpha"}, {RawTitle: "Beta"}}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NotifyFailures)
	assert.Len(t, h.notifier.sent, 2)
	rec, _ := h.store.Get("alpha")
	assert.True(t, rec.Notified)
}

func TestRunStopsOnFailedLookup(t *testing.T) {
	h := newHarness(t, map[string]float64{"Alpha": 9.0})
	h.searcher.failOn = "Beta"
	candidates := []scraper.Candidate{{RawTitle: "Alpha"}, {RawTitle: "Beta"}, {RawTitle: "Gamma"}}

	stats, err := h.pipeline(candidates, defaultOptions()).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []string{"Alpha", "Beta"}, h.searcher.queries)

	// Alpha survived the interruption on disk; Beta was not recorded.
	h.reload(t)
	assert.True(t, h.store.Contains("alpha"))
	assert.False(t, h.store.Contains("beta"))
}

func TestRunStopsWhenCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline([]scraper.Candidate{{RawTitle: "Alpha"}}, defaultOptions()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.searcher.queries)
}

func TestRunAbortsOnStoreWriteFailure(t *testing.T) {
	h := newHarness(t, map[string]float64{"Alpha": 9.0})
	candidates := []scraper.Candidate{{RawTitle: "Alpha"}, {RawTitle: "Beta"}}

	stats, err := h.pipelineWithStore(candidates, defaultOptions(), failingStore{h.store}).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, []string{"Alpha"}, h.searcher.queries)
	assert.Empty(t, h.notifier.sent)
}

func TestGracefulShutdownTimeout(t *testing.T) {
	ctx, cancel := GracefulShutdown(context.Background(), observability.NewNop(), 10*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled by the run timeout")
	}
}
