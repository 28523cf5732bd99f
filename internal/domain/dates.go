package domain

import (
	"sort"
	"strings"
	"time"
)

// Prompt contract constants shared by the free-text extraction steps.
const (
	// NoneSentinel is the LLM's answer for "no location" / "no date".
	NoneSentinel = "none"

	// LocationDelimiter separates multiple location candidates.
	LocationDelimiter = "/"

	// DateDelimiter separates multiple event dates.
	DateDelimiter = "///"

	// DateLayout is the calendar date format used by the date prompt.
	DateLayout = "02/01/2006"
)

// IsNoneSentinel reports whether a response is the explicit "none" answer.
func IsNoneSentinel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), NoneSentinel)
}

// SplitLocationCandidates maps a raw location response to an ordered list
// of candidate strings. The sentinel and empty responses map to nil.
func SplitLocationCandidates(raw string) []string {
	if IsNoneSentinel(raw) || strings.TrimSpace(raw) == "" {
		return nil
	}
	var candidates []string
	for _, part := range strings.Split(raw, LocationDelimiter) {
		part = strings.TrimSpace(part)
		if part != "" {
			candidates = append(candidates, part)
		}
	}
	return candidates
}

// ParseEventDates maps a raw date response to sorted, de-duplicated
// midnight-UTC dates. Un-parsable entries are dropped; the sentinel and
// empty responses map to nil (date unknown or unstated).
func ParseEventDates(raw string) []time.Time {
	if IsNoneSentinel(raw) || strings.TrimSpace(raw) == "" {
		return nil
	}

	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, part := range strings.Split(raw, DateDelimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseInLocation(DateLayout, part, time.UTC)
		if err != nil {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
