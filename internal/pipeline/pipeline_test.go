package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/patrasense/article-enricher/internal/observability"
	"github.com/patrasense/article-enricher/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawArticle
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawArticle, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockEnricher struct{}

func (m *mockEnricher) Enrich(_ context.Context, article domain.Article) domain.EnrichedArticle {
	rec := domain.NewEnrichedArticle(article)
	rec.Relevancy = domain.Relevant
	return rec
}

type mockStore struct {
	mu        sync.Mutex
	records   map[string]domain.EnrichedArticle
	errByURL  map[string]error
	failTimes map[string]int // transient failures remaining per URL
	inserts   int
}

func newMockStore() *mockStore {
	return &mockStore{
		records:   make(map[string]domain.EnrichedArticle),
		errByURL:  make(map[string]error),
		failTimes: make(map[string]int),
	}
}

func (m *mockStore) Exists(_ context.Context, sourceURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[sourceURL]
	return ok, nil
}

func (m *mockStore) InsertIfAbsent(_ context.Context, rec domain.EnrichedArticle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if n := m.failTimes[rec.SourceURL]; n > 0 {
		m.failTimes[rec.SourceURL] = n - 1
		return false, errors.New("database locked")
	}
	if err := m.errByURL[rec.SourceURL]; err != nil {
		return false, err
	}
	if _, ok := m.records[rec.SourceURL]; ok {
		return false, nil
	}
	m.records[rec.SourceURL] = rec
	return true, nil
}

type mockSink struct {
	mu        sync.Mutex
	published []domain.EnrichedArticle
	err       error
}

func (m *mockSink) PublishBatch(_ context.Context, recs []domain.EnrichedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, recs...)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(ext pipeline.BatchExtractor, store pipeline.Store, sink pipeline.SinkPublisher, opts pipeline.Options) *pipeline.Pipeline {
	if opts.BatchSize == 0 {
		opts.BatchSize = 10
	}
	return pipeline.New(ext, &mockEnricher{}, store, sink, discardLogger(), newTestMetrics(), opts)
}

// --- tests ---

func TestPipelineRunHappyPath(t *testing.T) {
	raw := makeRawArticle(t, "https://news.example/a")
	ext := &mockExtractor{batches: [][]domain.RawArticle{{raw}}}
	store := newMockStore()
	sink := &mockSink{}

	p := newTestPipeline(ext, store, sink, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)

	assert.Len(t, store.records, 1)
	assert.Contains(t, store.records, "https://news.example/a")
	assert.Len(t, sink.published, 1)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipelineRunContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, store.records)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipelineRunParseErrorSkipsMessage(t *testing.T) {
	committed := false
	bad := domain.RawArticle{
		Value:  []byte("not json"),
		Commit: func(_ context.Context) error { committed = true; return nil },
	}
	good := makeRawArticle(t, "https://news.example/good")

	ext := &mockExtractor{batches: [][]domain.RawArticle{{bad, good}}}
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 1)
	assert.Contains(t, store.records, "https://news.example/good")
	assert.True(t, committed, "unparsable messages still get their offset committed")
}

func TestPipelineRunDeduplicatesBySourceURL(t *testing.T) {
	first := makeRawArticle(t, "https://news.example/dup")
	second := makeRawArticle(t, "https://news.example/dup")

	ext := &mockExtractor{batches: [][]domain.RawArticle{{first}, {second}}}
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 1)
	// The second delivery is caught by the pre-check; only one insert
	// ever reaches the store.
	assert.Equal(t, 1, store.inserts)
}

func TestPipelineRunStorageFailureIsolation(t *testing.T) {
	failing := makeRawArticle(t, "https://news.example/failing")
	healthy := makeRawArticle(t, "https://news.example/healthy")

	ext := &mockExtractor{batches: [][]domain.RawArticle{{failing, healthy}}}
	store := newMockStore()
	store.errByURL["https://news.example/failing"] = errors.New("disk full")
	sink := &mockSink{}

	p := newTestPipeline(ext, store, sink, pipeline.Options{StoreAttempts: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	// The failing article is dropped after its retries; the healthy one
	// is stored and published as if nothing happened.
	assert.Len(t, store.records, 1)
	assert.Contains(t, store.records, "https://news.example/healthy")
	assert.Len(t, sink.published, 1)
	assert.Equal(t, "https://news.example/healthy", sink.published[0].SourceURL)
}

func TestPipelineRunRetriesTransientStoreErrors(t *testing.T) {
	raw := makeRawArticle(t, "https://news.example/flaky")

	ext := &mockExtractor{batches: [][]domain.RawArticle{{raw}}}
	store := newMockStore()
	store.failTimes["https://news.example/flaky"] = 1

	p := newTestPipeline(ext, store, nil, pipeline.Options{StoreAttempts: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 1)
	assert.Equal(t, 2, store.inserts, "one failed attempt plus one successful retry")
}

func TestPipelineRunCommitsAfterProcessing(t *testing.T) {
	commitCalled := false
	raw := makeRawArticle(t, "https://news.example/commit")
	raw.Topic = "scraped-articles"
	raw.Commit = func(_ context.Context) error {
		commitCalled = true
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawArticle{{raw}}}
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.True(t, commitCalled)
}

func TestPipelineRunSinkFailureDoesNotDropRecords(t *testing.T) {
	raw := makeRawArticle(t, "https://news.example/sink-down")

	ext := &mockExtractor{batches: [][]domain.RawArticle{{raw}}}
	store := newMockStore()
	sink := &mockSink{err: errors.New("broker unreachable")}

	p := newTestPipeline(ext, store, sink, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 1)
	assert.Empty(t, sink.published)
}

func TestPipelineRunWorkerPoolProcessesWholeBatch(t *testing.T) {
	batch := []domain.RawArticle{
		makeRawArticle(t, "https://news.example/1"),
		makeRawArticle(t, "https://news.example/2"),
		makeRawArticle(t, "https://news.example/3"),
		makeRawArticle(t, "https://news.example/4"),
		makeRawArticle(t, "https://news.example/5"),
	}

	ext := &mockExtractor{batches: [][]domain.RawArticle{batch}}
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{Workers: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 5)
}

func TestPipelineRunExtractErrorBacksOffAndRecovers(t *testing.T) {
	raw := makeRawArticle(t, "https://news.example/after-outage")
	ext := &erroringThenOKExtractor{raw: raw}
	store := newMockStore()

	p := newTestPipeline(ext, store, nil, pipeline.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, store.records, 1)
}

type erroringThenOKExtractor struct {
	calls atomic.Int64
	raw   domain.RawArticle
}

func (e *erroringThenOKExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawArticle, error) {
	switch e.calls.Add(1) {
	case 1:
		return nil, errors.New("broker unreachable")
	case 2:
		return []domain.RawArticle{e.raw}, nil
	default:
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// --- helpers ---

func makeRawArticle(t *testing.T, sourceURL string) domain.RawArticle {
	t.Helper()
	data, err := json.Marshal(domain.Article{
		SourceURL:   sourceURL,
		Title:       "Road closed downtown",
		Description: "The main avenue will be closed for roadworks on Friday.",
		PublishedAt: time.Date(2026, 4, 10, 7, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return domain.RawArticle{
		Key:   []byte(sourceURL),
		Value: data,
	}
}
