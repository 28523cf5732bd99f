package domain

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// Sensor is a fixed-location air-quality monitoring point.
type Sensor struct {
	ID   string  `yaml:"id" json:"id"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
	Area string  `yaml:"area" json:"area"`
}

// Directory is the set of known sensors, loaded once at startup.
// It is immutable after construction and safe for unsynchronized
// concurrent reads.
type Directory struct {
	sensors []Sensor
}

// NewDirectory builds a directory from a sensor list. The list must be
// non-empty with unique IDs and valid WGS-84 coordinates.
func NewDirectory(sensors []Sensor) (*Directory, error) {
	if len(sensors) == 0 {
		return nil, fmt.Errorf("sensor directory is empty")
	}
	seen := make(map[string]struct{}, len(sensors))
	for _, s := range sensors {
		if s.ID == "" {
			return nil, fmt.Errorf("sensor with empty id")
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
			return nil, fmt.Errorf("sensor %q has invalid coordinates (%f, %f)", s.ID, s.Lat, s.Lon)
		}
	}

	// Stable ID order keeps tie-breaking deterministic.
	copied := make([]Sensor, len(sensors))
	copy(copied, sensors)
	sort.Slice(copied, func(i, j int) bool { return copied[i].ID < copied[j].ID })

	return &Directory{sensors: copied}, nil
}

// LoadDirectory reads a YAML sensor list from path.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sensor file: %w", err)
	}

	var file struct {
		Sensors []Sensor `yaml:"sensors"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sensor file: %w", err)
	}

	return NewDirectory(file.Sensors)
}

// Len returns the number of sensors in the directory.
func (d *Directory) Len() int { return len(d.sensors) }

// Sensors returns a copy of the sensor list in ID order.
func (d *Directory) Sensors() []Sensor {
	out := make([]Sensor, len(d.sensors))
	copy(out, d.sensors)
	return out
}

// Nearest returns the sensor(s) at minimum haversine distance from g.
// Sensors whose distance is within epsilonKm of the minimum are all
// included, ordered by distance then ID, so equidistant sensors are never
// silently dropped. The boolean is false only when the directory is empty.
func (d *Directory) Nearest(g Geo, epsilonKm float64) ([]Sensor, bool) {
	if d == nil || len(d.sensors) == 0 {
		return nil, false
	}
	if epsilonKm < 0 {
		epsilonKm = 0
	}

	type candidate struct {
		sensor Sensor
		dist   float64
	}

	candidates := make([]candidate, len(d.sensors))
	minDist := math.Inf(1)
	for i, s := range d.sensors {
		dist := Haversine(g, Geo{Lat: s.Lat, Lon: s.Lon})
		candidates[i] = candidate{sensor: s, dist: dist}
		if dist < minDist {
			minDist = dist
		}
	}

	var winners []Sensor
	for _, c := range candidates {
		if c.dist <= minDist+epsilonKm {
			winners = append(winners, c.sensor)
		}
	}

	sort.Slice(winners, func(i, j int) bool {
		di := Haversine(g, Geo{Lat: winners[i].Lat, Lon: winners[i].Lon})
		dj := Haversine(g, Geo{Lat: winners[j].Lat, Lon: winners[j].Lon})
		if di != dj {
			return di < dj
		}
		return winners[i].ID < winners[j].ID
	})

	return winners, true
}

// Haversine computes the great-circle distance between two points in
// kilometers. The intermediate term is clamped to [0, 1] so that rounding
// on identical or near-antipodal points cannot produce NaN.
func Haversine(a, b Geo) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
