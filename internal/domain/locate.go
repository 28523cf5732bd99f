package domain

import (
	"context"
	"log/slog"
)

// LocationPolicy decides what happens when more than one location
// candidate geocodes successfully.
type LocationPolicy string

const (
	// PolicyFirst stops at the first candidate that resolves.
	PolicyFirst LocationPolicy = "first"

	// PolicyUnion geocodes every candidate and unions the nearest-sensor
	// assignments. Coordinates recorded are the first resolved candidate's.
	PolicyUnion LocationPolicy = "union"
)

// SensorAssignment is the outcome of geolocating an article and mapping
// it to the sensor directory.
type SensorAssignment struct {
	Geo       *Geo
	SensorIDs []string
	Area      *string
}

// Locate tries each location candidate in order against the geocoder and
// assigns the nearest sensor(s) to the resolved coordinates. Geocoding
// failures are soft: a failed candidate is logged and the next one is
// tried. If no candidate resolves, the assignment is entirely absent.
func Locate(ctx context.Context, candidates []string, geocoder Geocoder, dir *Directory, policy LocationPolicy, epsilonKm float64, logger *slog.Logger) SensorAssignment {
	if geocoder == nil || len(candidates) == 0 {
		return SensorAssignment{}
	}

	var out SensorAssignment
	seen := make(map[string]struct{})

	for _, candidate := range candidates {
		result, err := geocoder.Geocode(ctx, candidate)
		if err != nil {
			logger.Warn("geocoding failed, trying next candidate",
				"candidate", candidate,
				"error", err,
			)
			continue
		}
		if !result.Resolved() {
			logger.Debug("geocoder returned no result", "candidate", candidate)
			continue
		}

		geo := Geo{Lat: result.Lat, Lon: result.Lon}
		if out.Geo == nil {
			out.Geo = &geo
		}

		winners, ok := dir.Nearest(geo, epsilonKm)
		if ok {
			if out.Area == nil && len(winners) > 0 {
				area := winners[0].Area
				out.Area = &area
			}
			for _, s := range winners {
				if _, dup := seen[s.ID]; dup {
					continue
				}
				seen[s.ID] = struct{}{}
				out.SensorIDs = append(out.SensorIDs, s.ID)
			}
		}

		if policy != PolicyUnion {
			break
		}
	}

	return out
}
