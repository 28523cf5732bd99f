// Package classify implements the multi-step classification chain that
// derives structured labels from an article's free text.
//
// The chain is a small state machine: relevancy → primary tag →
// (conditional secondary tag) → location extraction → date extraction,
// with NotRelevant and NotApplicable as terminal states. Each transition
// is one chat-completion request followed by label parsing at the
// boundary. Steps are strictly sequential because each later step's
// applicability depends on an earlier step's output.
package classify

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/patrasense/article-enricher/internal/observability"
)

//go:embed prompts/relevancy.txt
var relevancyPrompt string

//go:embed prompts/primary_tag.txt
var primaryTagPrompt string

//go:embed prompts/pollution_secondary.txt
var pollutionSecondaryPrompt string

//go:embed prompts/location.txt
var locationPrompt string

//go:embed prompts/date.txt
var datePrompt string

// Step names used in logs and metrics labels.
const (
	StepRelevancy    = "relevancy"
	StepPrimaryTag   = "primary_tag"
	StepSecondaryTag = "secondary_tag"
	StepLocation     = "location"
	StepDate         = "date"
)

// Completer sends one system-prompt/user-text pair to an inference
// endpoint and returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Result holds the chain's typed outputs. Optional fields are nil when
// the step was skipped (gating) or soft-failed.
type Result struct {
	Relevancy          domain.Relevancy
	PrimaryTag         *domain.PrimaryTag
	SecondaryTag       *domain.SecondaryTag
	LocationText       *string
	LocationCandidates []string
	EventDates         []time.Time
}

// Chain runs the classification steps against a Completer.
type Chain struct {
	completer Completer
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a classification chain.
func New(completer Completer, logger *slog.Logger, metrics *observability.Metrics) *Chain {
	return &Chain{
		completer: completer,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run drives one article through the chain. It never returns an error:
// per the soft-failure policy, a step whose call fails or whose response
// falls outside the expected label set leaves its field absent and the
// chain moves on (or terminates, for the gating steps).
func (c *Chain) Run(ctx context.Context, article domain.Article) Result {
	res := Result{Relevancy: domain.NotRelevant}

	rel, ok := c.classifyRelevancy(ctx, article)
	if !ok || rel == domain.NotRelevant {
		return res
	}
	res.Relevancy = domain.Relevant

	if tag, ok := c.classifyPrimaryTag(ctx, article); ok {
		res.PrimaryTag = &tag
		if tag == domain.TagNotApplicable {
			// Gates downstream steps exactly like NotRelevant; the tag
			// itself is still recorded.
			return res
		}
		if tag == domain.TagPollutionOrEnvironmentalIncident {
			if sub, ok := c.classifySecondaryTag(ctx, article); ok {
				res.SecondaryTag = &sub
			}
		}
	}

	res.LocationText, res.LocationCandidates = c.extractLocation(ctx, article)
	res.EventDates = c.extractDates(ctx, article)

	return res
}

func (c *Chain) classifyRelevancy(ctx context.Context, article domain.Article) (domain.Relevancy, bool) {
	resp, err := c.complete(ctx, StepRelevancy, relevancyPrompt, article)
	if err != nil {
		return domain.NotRelevant, false
	}
	rel, ok := domain.ParseRelevancy(resp)
	if !ok {
		c.softFailure(StepRelevancy, article, resp)
		return domain.NotRelevant, false
	}
	return rel, true
}

func (c *Chain) classifyPrimaryTag(ctx context.Context, article domain.Article) (domain.PrimaryTag, bool) {
	resp, err := c.complete(ctx, StepPrimaryTag, primaryTagPrompt, article)
	if err != nil {
		return "", false
	}
	tag, ok := domain.ParsePrimaryTag(resp)
	if !ok {
		c.softFailure(StepPrimaryTag, article, resp)
		return "", false
	}
	return tag, true
}

func (c *Chain) classifySecondaryTag(ctx context.Context, article domain.Article) (domain.SecondaryTag, bool) {
	resp, err := c.complete(ctx, StepSecondaryTag, pollutionSecondaryPrompt, article)
	if err != nil {
		return "", false
	}
	tag, ok := domain.ParseSecondaryTag(resp)
	if !ok {
		c.softFailure(StepSecondaryTag, article, resp)
		return "", false
	}
	return tag, true
}

func (c *Chain) extractLocation(ctx context.Context, article domain.Article) (*string, []string) {
	resp, err := c.complete(ctx, StepLocation, locationPrompt, article)
	if err != nil {
		return nil, nil
	}
	candidates := domain.SplitLocationCandidates(resp)
	if candidates == nil {
		return nil, nil
	}
	return &resp, candidates
}

func (c *Chain) extractDates(ctx context.Context, article domain.Article) []time.Time {
	userText := fmt.Sprintf("published date: %s\ndescription: %s",
		article.PublishedAt.Format(domain.DateLayout), article.Description)

	resp, err := c.completeRaw(ctx, StepDate, datePrompt, article, userText)
	if err != nil {
		return nil
	}
	dates := domain.ParseEventDates(resp)
	if dates == nil && !domain.IsNoneSentinel(resp) {
		c.softFailure(StepDate, article, resp)
	}
	return dates
}

// complete sends the article description as the user text.
func (c *Chain) complete(ctx context.Context, step, systemPrompt string, article domain.Article) (string, error) {
	return c.completeRaw(ctx, step, systemPrompt, article, article.Description)
}

// completeRaw performs one chat-completion call for a step. Transport and
// timeout errors are logged and counted but not propagated beyond the
// (absent) step result.
func (c *Chain) completeRaw(ctx context.Context, step, systemPrompt string, article domain.Article, userText string) (string, error) {
	start := time.Now()
	resp, err := c.completer.Complete(ctx, systemPrompt, userText)
	c.metrics.ClassifyStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ClassifyStepErrors.WithLabelValues(step, "transport").Inc()
		c.logger.Warn("classification call failed, leaving field absent",
			"step", step,
			"source_url", article.SourceURL,
			"error", err,
		)
		return "", err
	}
	return resp, nil
}

// softFailure records a response outside the expected label set.
func (c *Chain) softFailure(step string, article domain.Article, resp string) {
	c.metrics.ClassifyStepErrors.WithLabelValues(step, "label").Inc()
	c.logger.Warn("unexpected classification response, leaving field absent",
		"step", step,
		"source_url", article.SourceURL,
		"response", truncate(resp, 120),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
