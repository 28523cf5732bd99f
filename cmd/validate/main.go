// Command validate checks a sensor directory file before deployment: it
// loads the YAML, reports the sensor count per area, and optionally
// resolves the nearest sensors for a given coordinate.
//
// Usage:
//
//	go run ./cmd/validate -file sensors.yaml
//	go run ./cmd/validate -file sensors.yaml -lat 38.2466 -lon 21.7346
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/patrasense/article-enricher/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	file := flag.String("file", "sensors.yaml", "sensor directory YAML file")
	lat := flag.Float64("lat", 0, "latitude to resolve against the directory")
	lon := flag.Float64("lon", 0, "longitude to resolve against the directory")
	epsilon := flag.Float64("epsilon-km", 0.01, "tie distance in kilometers")
	flag.Parse()

	dir, err := domain.LoadDirectory(*file)
	if err != nil {
		return err
	}

	byArea := make(map[string]int)
	for _, s := range dir.Sensors() {
		byArea[s.Area]++
	}
	areas := make([]string, 0, len(byArea))
	for area := range byArea {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	fmt.Printf("%s: %d sensors, %d areas\n", *file, dir.Len(), len(areas))
	for _, area := range areas {
		fmt.Printf("  %-24s %d\n", area, byArea[area])
	}

	if *lat != 0 || *lon != 0 {
		winners, ok := dir.Nearest(domain.Geo{Lat: *lat, Lon: *lon}, *epsilon)
		if !ok {
			return fmt.Errorf("no sensor resolved for %.4f,%.4f", *lat, *lon)
		}
		fmt.Printf("nearest to %.4f,%.4f:\n", *lat, *lon)
		for _, s := range winners {
			fmt.Printf("  %-12s %s (%.2f km)\n", s.ID, s.Area,
				domain.Haversine(domain.Geo{Lat: *lat, Lon: *lon}, domain.Geo{Lat: s.Lat, Lon: s.Lon}))
		}
	}

	return nil
}
