package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawArticle represents an unprocessed message from the source topic.
type RawArticle struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Article is a scraped news item as published by the upstream scraper.
// It is read-only input to the pipeline; enrichment produces a derived
// record and never mutates the article itself.
type Article struct {
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// ParseRawArticle deserializes a RawArticle's value into an Article.
func ParseRawArticle(raw RawArticle) (Article, error) {
	var a Article
	if err := json.Unmarshal(raw.Value, &a); err != nil {
		return Article{}, fmt.Errorf("parse raw article: %w", err)
	}
	if a.SourceURL == "" {
		return Article{}, errors.New("parse raw article: missing source_url")
	}
	if a.Description == "" {
		return Article{}, errors.New("parse raw article: missing description")
	}
	return a, nil
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EnrichedArticle is the record derived from an Article by the enrichment
// pipeline. Optional fields are nil/empty when the corresponding step was
// skipped or soft-failed.
//
// Invariants:
//   - SecondaryTag is set iff PrimaryTag is TagPollutionOrEnvironmentalIncident.
//   - Geo is set iff a location candidate geocoded successfully.
//   - SensorIDs is non-empty iff Geo is set and the directory is non-empty.
//   - Relevancy == NotRelevant implies every other enrichment field absent.
type EnrichedArticle struct {
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`

	Relevancy    Relevancy     `json:"relevancy"`
	PrimaryTag   *PrimaryTag   `json:"primary_tag,omitempty"`
	SecondaryTag *SecondaryTag `json:"secondary_tag,omitempty"`
	EventDates   []time.Time   `json:"event_dates,omitempty"`
	LocationText *string       `json:"location_text,omitempty"`
	Geo          *Geo          `json:"geo,omitempty"`
	SensorIDs    []string      `json:"sensor_ids,omitempty"`
	Area         *string       `json:"area,omitempty"`

	EnrichedAt time.Time `json:"enriched_at"`
}

// NewEnrichedArticle seeds an enrichment record from its source article and
// stamps it with the current clock time.
func NewEnrichedArticle(a Article) EnrichedArticle {
	return EnrichedArticle{
		SourceURL:   a.SourceURL,
		Title:       a.Title,
		Description: a.Description,
		PublishedAt: a.PublishedAt,
		ScrapedAt:   a.ScrapedAt,
		Relevancy:   NotRelevant,
		EnrichedAt:  clock.Now().UTC(),
	}
}
