package domain

import "context"

// GeocodingResult contains the coordinates a geocoding provider resolved
// for a free-text location. The zero value means "unresolved".
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
}

// Resolved reports whether the provider returned a usable coordinate pair.
func (r GeocodingResult) Resolved() bool {
	return r.Lat != 0 || r.Lon != 0
}

// Geocoder converts a free-text location candidate into coordinates.
type Geocoder interface {
	// Geocode resolves a location string. A zero-value result with a nil
	// error means the provider found nothing for the query.
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}
