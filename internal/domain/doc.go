// Package domain models scraped news articles and their enrichment with
// air-quality sensor assignments.
//
// # Data Source
//
// Articles originate from an upstream scraper that crawls local news sites,
// extracts title, body text, and publication date, and publishes each item
// as flat JSON to the Kafka source topic. The source URL is the stable
// identity of an article: re-scrapes of the same item carry the same URL.
//
// # Enrichment Conventions
//
// Classification labels are drawn from fixed closed sets (see [Relevancy],
// [PrimaryTag], [SecondaryTag]). LLM responses are matched case-insensitively
// after trimming; anything outside the expected set is a soft failure and
// the field stays absent.
//
// Free-text steps use sentinel and delimiter conventions inherited from the
// prompt contracts:
//
//	"none"      → no location / no date stated or implied
//	"a/b/c"     → multiple location candidates, tried in order
//	"d1///d2"   → multiple event dates
//	DD/MM/YYYY  → event date format, e.g. "09/03/2025"
//
// Sentinels are mapped to absent values at the boundary immediately after
// the LLM call returns; nothing downstream ever tests raw sentinel text.
//
// # Sensor Assignment
//
// Sensors are fixed-location air-quality monitoring points with an
// administrative area, loaded once at startup and immutable thereafter.
// An article's resolved coordinates are assigned to the sensor(s) at
// minimum great-circle distance; sensors within a small configurable
// epsilon of the minimum are all returned rather than picking an
// arbitrary winner. See [Directory.Nearest].
//
// # Idempotency
//
// An EnrichedArticle is created exactly once per source URL. The store
// enforces this with a conflict-free insert keyed by URL, so concurrent
// enrichment of the same article cannot produce duplicate records.
package domain
