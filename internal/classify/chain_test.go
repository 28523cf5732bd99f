package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrasense/article-enricher/internal/domain"
	"github.com/patrasense/article-enricher/internal/observability"
)

// scriptedCompleter answers each step by matching the system prompt it was
// sent against the embedded prompt texts, so tests can script the chain
// step by step.
type scriptedCompleter struct {
	relevancy string
	primary   string
	secondary string
	location  string
	date      string

	errOn map[string]error
	calls []string
	seen  []string // user texts, parallel to calls
}

func (c *scriptedCompleter) Complete(_ context.Context, systemPrompt, userText string) (string, error) {
	step := stepForPrompt(systemPrompt)
	c.calls = append(c.calls, step)
	c.seen = append(c.seen, userText)
	if err := c.errOn[step]; err != nil {
		return "", err
	}
	switch step {
	case StepRelevancy:
		return c.relevancy, nil
	case StepPrimaryTag:
		return c.primary, nil
	case StepSecondaryTag:
		return c.secondary, nil
	case StepLocation:
		return c.location, nil
	case StepDate:
		return c.date, nil
	}
	return "", errors.New("unknown prompt")
}

func stepForPrompt(systemPrompt string) string {
	switch systemPrompt {
	case relevancyPrompt:
		return StepRelevancy
	case primaryTagPrompt:
		return StepPrimaryTag
	case pollutionSecondaryPrompt:
		return StepSecondaryTag
	case locationPrompt:
		return StepLocation
	case datePrompt:
		return StepDate
	}
	return "unknown"
}

func newTestChain(c Completer) *Chain {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(c, logger, observability.NewMetricsForTesting())
}

func testArticle() domain.Article {
	return domain.Article{
		SourceURL:   "https://news.example/road-closure",
		Title:       "Marathon closes the waterfront",
		Description: "The city marathon will close the waterfront avenue on Sunday.",
		PublishedAt: time.Date(2026, 4, 10, 7, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestRunFullChain(t *testing.T) {
	completer := &scriptedCompleter{
		relevancy: "Relevant",
		primary:   "Public Event",
		location:  "Waterfront Avenue, Patras/Patras",
		date:      "12/04/2026",
	}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	assert.Equal(t, domain.Relevant, res.Relevancy)
	require.NotNil(t, res.PrimaryTag)
	assert.Equal(t, domain.TagPublicEvent, *res.PrimaryTag)
	assert.Nil(t, res.SecondaryTag, "secondary tag only applies to pollution articles")
	require.NotNil(t, res.LocationText)
	assert.Equal(t, "Waterfront Avenue, Patras/Patras", *res.LocationText)
	assert.Equal(t, []string{"Waterfront Avenue, Patras", "Patras"}, res.LocationCandidates)
	assert.Equal(t, []time.Time{time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)}, res.EventDates)

	// Secondary tag step must not have been called.
	assert.Equal(t, []string{StepRelevancy, StepPrimaryTag, StepLocation, StepDate}, completer.calls)
}

func TestRunNotRelevantTerminates(t *testing.T) {
	completer := &scriptedCompleter{relevancy: "Not relevant"}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	assert.Equal(t, domain.NotRelevant, res.Relevancy)
	assert.Nil(t, res.PrimaryTag)
	assert.Nil(t, res.SecondaryTag)
	assert.Nil(t, res.LocationText)
	assert.Nil(t, res.LocationCandidates)
	assert.Nil(t, res.EventDates)
	assert.Equal(t, []string{StepRelevancy}, completer.calls)
}

func TestRunNotApplicableGatesDownstream(t *testing.T) {
	completer := &scriptedCompleter{
		relevancy: "relevant",
		primary:   "not applicable",
	}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	assert.Equal(t, domain.Relevant, res.Relevancy)
	require.NotNil(t, res.PrimaryTag)
	assert.Equal(t, domain.TagNotApplicable, *res.PrimaryTag)
	assert.Nil(t, res.LocationText)
	assert.Nil(t, res.EventDates)
	assert.Equal(t, []string{StepRelevancy, StepPrimaryTag}, completer.calls)
}

func TestRunPollutionGetsSecondaryTag(t *testing.T) {
	completer := &scriptedCompleter{
		relevancy: "relevant",
		primary:   "Pollution or environmental incident",
		secondary: "Fire or arson",
		location:  "Gerakas landfill",
		date:      "none",
	}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	require.NotNil(t, res.PrimaryTag)
	assert.Equal(t, domain.TagPollutionOrEnvironmentalIncident, *res.PrimaryTag)
	require.NotNil(t, res.SecondaryTag)
	assert.Equal(t, domain.TagFireOrArson, *res.SecondaryTag)
	assert.Equal(t, []string{"Gerakas landfill"}, res.LocationCandidates)
	assert.Empty(t, res.EventDates)
	assert.Equal(t,
		[]string{StepRelevancy, StepPrimaryTag, StepSecondaryTag, StepLocation, StepDate},
		completer.calls)
}

func TestRunRelevancyTransportErrorYieldsNotRelevant(t *testing.T) {
	completer := &scriptedCompleter{
		errOn: map[string]error{StepRelevancy: errors.New("connection refused")},
	}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	assert.Equal(t, domain.NotRelevant, res.Relevancy)
	assert.Equal(t, []string{StepRelevancy}, completer.calls)
}

func TestRunUnexpectedRelevancyLabelYieldsNotRelevant(t *testing.T) {
	completer := &scriptedCompleter{relevancy: "maybe, hard to say"}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	assert.Equal(t, domain.NotRelevant, res.Relevancy)
	assert.Equal(t, []string{StepRelevancy}, completer.calls)
}

func TestRunSoftFailuresLeaveFieldsAbsent(t *testing.T) {
	tests := []struct {
		name      string
		completer *scriptedCompleter
		check     func(t *testing.T, res Result)
	}{
		{
			name: "primary tag error still extracts location and dates",
			completer: &scriptedCompleter{
				relevancy: "relevant",
				location:  "Rio bridge",
				date:      "15/04/2026",
				errOn:     map[string]error{StepPrimaryTag: errors.New("timeout")},
			},
			check: func(t *testing.T, res Result) {
				assert.Nil(t, res.PrimaryTag)
				assert.Equal(t, []string{"Rio bridge"}, res.LocationCandidates)
				assert.Len(t, res.EventDates, 1)
			},
		},
		{
			name: "secondary tag label failure keeps primary tag",
			completer: &scriptedCompleter{
				relevancy: "relevant",
				primary:   "pollution or environmental incident",
				secondary: "something else entirely",
				location:  "none",
				date:      "none",
			},
			check: func(t *testing.T, res Result) {
				require.NotNil(t, res.PrimaryTag)
				assert.Equal(t, domain.TagPollutionOrEnvironmentalIncident, *res.PrimaryTag)
				assert.Nil(t, res.SecondaryTag)
			},
		},
		{
			name: "location none sentinel leaves location absent",
			completer: &scriptedCompleter{
				relevancy: "relevant",
				primary:   "transport and traffic",
				location:  "None",
				date:      "16/04/2026",
			},
			check: func(t *testing.T, res Result) {
				assert.Nil(t, res.LocationText)
				assert.Nil(t, res.LocationCandidates)
				assert.Len(t, res.EventDates, 1)
			},
		},
		{
			name: "date transport error leaves dates absent",
			completer: &scriptedCompleter{
				relevancy: "relevant",
				primary:   "weather or natural phenomenon",
				location:  "Panachaiko mountain",
				errOn:     map[string]error{StepDate: errors.New("503")},
			},
			check: func(t *testing.T, res Result) {
				assert.Equal(t, []string{"Panachaiko mountain"}, res.LocationCandidates)
				assert.Nil(t, res.EventDates)
			},
		},
		{
			name: "unparsable dates are dropped",
			completer: &scriptedCompleter{
				relevancy: "relevant",
				primary:   "public event",
				location:  "none",
				date:      "next Tuesday, probably",
			},
			check: func(t *testing.T, res Result) {
				assert.Nil(t, res.EventDates)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newTestChain(tt.completer)
			res := chain.Run(context.Background(), testArticle())
			assert.Equal(t, domain.Relevant, res.Relevancy)
			tt.check(t, res)
		})
	}
}

func TestDateStepSendsPublishedDate(t *testing.T) {
	completer := &scriptedCompleter{
		relevancy: "relevant",
		primary:   "public event",
		location:  "none",
		date:      "11/04/2026///12/04/2026",
	}
	chain := newTestChain(completer)

	res := chain.Run(context.Background(), testArticle())

	// The date prompt needs the publish date so the model can anchor
	// relative expressions like "tomorrow".
	require.Equal(t, StepDate, completer.calls[len(completer.calls)-1])
	dateUserText := completer.seen[len(completer.seen)-1]
	assert.True(t, strings.HasPrefix(dateUserText, "published date: 10/04/2026\n"), dateUserText)
	assert.Contains(t, dateUserText, testArticle().Description)

	assert.Equal(t, []time.Time{
		time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC),
	}, res.EventDates)
}
