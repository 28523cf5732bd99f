// Command genarticles publishes sample scraped-article messages to the
// source topic so the enricher can be exercised locally without a live
// scraper.
//
// Usage:
//
//	go run ./cmd/genarticles -brokers localhost:9092 -topic scraped-articles -count 20
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/patrasense/article-enricher/internal/domain"
)

var samples = []struct {
	title       string
	description string
}{
	{
		title:       "Carnival parade closes the city center",
		description: "The carnival parade will pass through Georgiou Square in Patras on Sunday, closing the city center to traffic from morning until late evening.",
	},
	{
		title:       "Landfill fire sends smoke over the suburbs",
		description: "A fire broke out at the Xerolakka landfill yesterday, sending thick smoke over the northern suburbs of Patras. Residents are advised to keep windows closed.",
	},
	{
		title:       "Roadworks on the new coastal road",
		description: "Resurfacing works on the coastal road between Patras and Rio will divert heavy traffic through residential streets for the next two weeks.",
	},
	{
		title:       "Dust from the Sahara expected this weekend",
		description: "Meteorologists forecast elevated concentrations of African dust over western Greece on Saturday and Sunday.",
	},
	{
		title:       "Local team wins the cup",
		description: "Fans celebrated late into the night after the local basketball team won the national cup in Athens.",
	},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "scraped-articles", "articles topic")
	count := flag.Int("count", 10, "number of articles to publish")
	flag.Parse()

	if *count <= 0 {
		return fmt.Errorf("count must be positive")
	}

	writer := &kafkago.Writer{
		Addr:  kafkago.TCP(strings.Split(*brokers, ",")...),
		Topic: *topic,
	}
	defer writer.Close()

	now := time.Now().UTC()
	msgs := make([]kafkago.Message, 0, *count)
	for i := 0; i < *count; i++ {
		sample := samples[i%len(samples)]
		article := domain.Article{
			SourceURL:   fmt.Sprintf("https://news.example/articles/%d-%d", now.Unix(), i),
			Title:       sample.title,
			Description: sample.description,
			PublishedAt: now.Add(-time.Duration(i) * time.Hour),
			ScrapedAt:   now,
		}
		payload, err := json.Marshal(article)
		if err != nil {
			return fmt.Errorf("marshal article: %w", err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(article.SourceURL),
			Value: payload,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}

	log.Printf("published %d articles to %s", len(msgs), *topic)
	return nil
}
