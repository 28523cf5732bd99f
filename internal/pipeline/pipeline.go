// Package pipeline drives the extract-enrich-persist loop: batches of
// raw articles come in from the source topic, each article is enriched
// independently, and the resulting records are written to storage and
// optionally republished to a sink topic.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/patrasense/article-enricher/internal/observability"
)

// BatchExtractor reads up to batchSize raw articles from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawArticle, error)
}

// Enricher derives an enrichment record from a parsed article.
type Enricher interface {
	Enrich(ctx context.Context, article domain.Article) domain.EnrichedArticle
}

// Store persists enrichment records keyed by source URL.
type Store interface {
	Exists(ctx context.Context, sourceURL string) (bool, error)
	InsertIfAbsent(ctx context.Context, rec domain.EnrichedArticle) (bool, error)
}

// SinkPublisher republishes enrichment records downstream.
type SinkPublisher interface {
	PublishBatch(ctx context.Context, recs []domain.EnrichedArticle) error
}

// Options tunes the pipeline loop.
type Options struct {
	BatchSize     int
	Workers       int // concurrent enrichments within a batch
	StoreAttempts int // bounded retries for a single record's insert
}

// Pipeline orchestrates the extract-enrich-persist loop.
type Pipeline struct {
	extractor BatchExtractor
	enricher  Enricher
	store     Store
	sink      SinkPublisher // nil disables republishing
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	opts      Options
}

// New creates a Pipeline with the given stages and observability. A nil
// sink disables republishing.
func New(e BatchExtractor, enricher Enricher, store Store, sink SinkPublisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.StoreAttempts <= 0 {
		opts.StoreAttempts = 1
	}
	return &Pipeline{
		extractor: e,
		enricher:  enricher,
		store:     store,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil if the pipeline has processed at least one
// message, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"batch_size", p.opts.BatchSize,
		"workers", p.opts.Workers,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-enrich-persist cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.opts.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ArticlesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	inserted := p.enrichBatch(ctx, rawBatch)

	if len(inserted) > 0 {
		p.publishToSink(ctx, inserted)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return ctx.Err() == nil
}

// enrichBatch fans the batch out over the worker pool. Each article is
// processed independently: a failure in one never touches the others.
// Returns the records that were freshly inserted this cycle.
func (p *Pipeline) enrichBatch(ctx context.Context, rawBatch []domain.RawArticle) []domain.EnrichedArticle {
	jobs := make(chan domain.RawArticle)
	results := make(chan *domain.EnrichedArticle, len(rawBatch))

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range jobs {
				results <- p.processArticle(ctx, raw)
			}
		}()
	}

	for _, raw := range rawBatch {
		jobs <- raw
	}
	close(jobs)
	wg.Wait()
	close(results)

	var inserted []domain.EnrichedArticle
	for rec := range results {
		if rec != nil {
			inserted = append(inserted, *rec)
		}
	}
	return inserted
}

// processArticle handles one raw message end to end and commits its
// offset. Returns the record when it was freshly inserted, nil otherwise.
func (p *Pipeline) processArticle(ctx context.Context, raw domain.RawArticle) *domain.EnrichedArticle {
	defer p.commitOffset(ctx, raw)

	article, err := domain.ParseRawArticle(raw)
	if err != nil {
		p.logger.Warn("parse failed, skipping message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.ParseErrors.Inc()
		return nil
	}

	// Cheap pre-check so an already-enriched URL skips the whole LLM
	// chain. The insert below is still the authoritative dedup.
	if exists, err := p.store.Exists(ctx, article.SourceURL); err != nil {
		p.logger.Warn("dedup check failed, continuing", "source_url", article.SourceURL, "error", err)
	} else if exists {
		p.logger.Debug("article already enriched, skipping", "source_url", article.SourceURL)
		p.metrics.ArticlesSkipped.Inc()
		return nil
	}

	rec := p.enricher.Enrich(ctx, article)

	inserted, err := p.insertWithRetry(ctx, rec)
	if err != nil {
		p.logger.Error("persisting record failed, dropping article",
			"source_url", rec.SourceURL,
			"attempts", p.opts.StoreAttempts,
			"error", err,
		)
		p.metrics.ArticlesDropped.Inc()
		return nil
	}
	if !inserted {
		// Lost a race with a concurrent insert of the same URL.
		p.metrics.ArticlesSkipped.Inc()
		return nil
	}

	p.metrics.ArticlesEnriched.Inc()
	p.logger.Info("article enriched",
		"source_url", rec.SourceURL,
		"relevancy", rec.Relevancy,
		"sensors", len(rec.SensorIDs),
	)
	return &rec
}

// insertWithRetry retries transient storage failures with the same
// doubling backoff the outer loop uses, bounded by StoreAttempts.
func (p *Pipeline) insertWithRetry(ctx context.Context, rec domain.EnrichedArticle) (bool, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= p.opts.StoreAttempts; attempt++ {
		inserted, err := p.store.InsertIfAbsent(ctx, rec)
		if err == nil {
			return inserted, nil
		}
		lastErr = err

		if attempt < p.opts.StoreAttempts {
			p.metrics.StoreRetries.Inc()
			p.logger.Warn("storage write failed, retrying",
				"source_url", rec.SourceURL,
				"attempt", attempt,
				"error", err,
			)
			if !sleepWithContext(ctx, backoff) {
				break
			}
			backoff = nextBackoff(backoff, maxBackoff)
		}
	}
	return false, lastErr
}

func (p *Pipeline) publishToSink(ctx context.Context, recs []domain.EnrichedArticle) {
	if p.sink == nil {
		return
	}
	if err := p.sink.PublishBatch(ctx, recs); err != nil {
		// The store is the source of truth; a sink failure is not worth
		// failing the batch over.
		p.logger.Error("sink publish failed", "count", len(recs), "error", err)
		return
	}
	p.metrics.SinkPublished.Add(float64(len(recs)))
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawArticle) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
