package pipeline

import (
	"context"
	"log/slog"

	"github.com/patrasense/article-enricher/internal/classify"
	"github.com/patrasense/article-enricher/internal/domain"
)

// Classifier runs the label/extraction chain for one article.
type Classifier interface {
	Run(ctx context.Context, article domain.Article) classify.Result
}

// ArticleEnricher derives an enrichment record from a scraped article:
// classification chain first, then geocoding and sensor assignment for
// the extracted location candidates.
type ArticleEnricher struct {
	classifier Classifier
	geocoder   domain.Geocoder
	sensors    *domain.Directory
	policy     domain.LocationPolicy
	epsilonKm  float64
	logger     *slog.Logger
}

// NewEnricher creates an ArticleEnricher. Pass a nil geocoder to disable
// location resolution; classification still runs.
func NewEnricher(classifier Classifier, geocoder domain.Geocoder, sensors *domain.Directory, policy domain.LocationPolicy, epsilonKm float64, logger *slog.Logger) *ArticleEnricher {
	return &ArticleEnricher{
		classifier: classifier,
		geocoder:   geocoder,
		sensors:    sensors,
		policy:     policy,
		epsilonKm:  epsilonKm,
		logger:     logger,
	}
}

// Enrich never fails: every per-field step is soft, and the worst case is
// a record with only the article fields and a relevancy verdict.
func (e *ArticleEnricher) Enrich(ctx context.Context, article domain.Article) domain.EnrichedArticle {
	rec := domain.NewEnrichedArticle(article)

	res := e.classifier.Run(ctx, article)
	rec.Relevancy = res.Relevancy
	if res.Relevancy == domain.NotRelevant {
		return rec
	}

	rec.PrimaryTag = res.PrimaryTag
	rec.SecondaryTag = res.SecondaryTag
	rec.EventDates = res.EventDates
	rec.LocationText = res.LocationText

	if len(res.LocationCandidates) > 0 && e.geocoder != nil {
		assignment := domain.Locate(ctx, res.LocationCandidates, e.geocoder, e.sensors, e.policy, e.epsilonKm, e.logger)
		rec.Geo = assignment.Geo
		rec.SensorIDs = assignment.SensorIDs
		rec.Area = assignment.Area
	}

	return rec
}
