package domain

import "strings"

// Relevancy marks whether an article relates to events that can plausibly
// affect local air quality.
type Relevancy string

const (
	Relevant    Relevancy = "relevant"
	NotRelevant Relevancy = "not_relevant"
)

// PrimaryTag is the top-level event category of a relevant article.
type PrimaryTag string

const (
	TagPublicEvent                      PrimaryTag = "public_event"
	TagWeatherOrNaturalPhenomenon       PrimaryTag = "weather_or_natural_phenomenon"
	TagTransportAndTraffic              PrimaryTag = "transport_and_traffic"
	TagPollutionOrEnvironmentalIncident PrimaryTag = "pollution_or_environmental_incident"
	TagNotApplicable                    PrimaryTag = "not_applicable"
)

// SecondaryTag refines pollution/environmental incidents. It is only
// populated when the primary tag is TagPollutionOrEnvironmentalIncident.
type SecondaryTag string

const (
	TagUrbanPollution        SecondaryTag = "urban_pollution"
	TagIndustrialEmissions   SecondaryTag = "industrial_emissions"
	TagHouseholdEmissions    SecondaryTag = "household_emissions"
	TagFireOrArson           SecondaryTag = "fire_or_arson"
	TagEnvironmentalDisaster SecondaryTag = "environmental_disaster"
)

// Label sets as the classification prompts emit them. Matching is
// case-insensitive after trimming.
var (
	relevancyLabels = map[string]Relevancy{
		"relevant":     Relevant,
		"not relevant": NotRelevant,
	}

	primaryTagLabels = map[string]PrimaryTag{
		"public event":                        TagPublicEvent,
		"weather or natural phenomenon":       TagWeatherOrNaturalPhenomenon,
		"transport and traffic":               TagTransportAndTraffic,
		"pollution or environmental incident": TagPollutionOrEnvironmentalIncident,
		"not applicable":                      TagNotApplicable,
	}

	secondaryTagLabels = map[string]SecondaryTag{
		"urban pollution":        TagUrbanPollution,
		"industrial emissions":   TagIndustrialEmissions,
		"household emissions":    TagHouseholdEmissions,
		"fire or arson":          TagFireOrArson,
		"environmental disaster": TagEnvironmentalDisaster,
	}
)

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseRelevancy maps an LLM response to a Relevancy label.
// The second return value is false for responses outside the label set.
func ParseRelevancy(s string) (Relevancy, bool) {
	r, ok := relevancyLabels[normalizeLabel(s)]
	return r, ok
}

// ParsePrimaryTag maps an LLM response to a PrimaryTag label.
func ParsePrimaryTag(s string) (PrimaryTag, bool) {
	t, ok := primaryTagLabels[normalizeLabel(s)]
	return t, ok
}

// ParseSecondaryTag maps an LLM response to a SecondaryTag label.
func ParseSecondaryTag(s string) (SecondaryTag, bool) {
	t, ok := secondaryTagLabels[normalizeLabel(s)]
	return t, ok
}
