package dwd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/geodesic"

	"github.com/ujung/wetter/internal/models"
)

// Catalog is the read-only list of known DWD climate stations.
type Catalog struct {
	stations []models.Station
}

// StationDistance pairs a station with its distance from a query point.
type StationDistance struct {
	Station    models.Station
	DistanceKm float64
}

// stationRecord mirrors one entry of the DWD station metadata file.
type stationRecord struct {
	ID        flexString `json:"Stations_id"`
	ValidFrom flexString `json:"von_datum"`
	ValidTo   flexString `json:"bis_datum"`
	Elevation float64    `json:"Stationshoehe"`
	Latitude  float64    `json:"geoBreite"`
	Longitude float64    `json:"geoLaenge"`
	Name      string     `json:"Stationsname"`
	Region    string     `json:"Bundesland"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// LoadCatalog reads the station metadata file. Any read or decode failure is
// a *ConfigError; there is no partial catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var records []stationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("decode stations: %w", err)}
	}
	if len(records) == 0 {
		return nil, &ConfigError{Path: path, Err: errors.New("no stations")}
	}

	stations := make([]models.Station, 0, len(records))
	for i, r := range records {
		id, err := strconv.Atoi(string(r.ID))
		if err != nil {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("station %d: invalid id %q", i, r.ID)}
		}
		stations = append(stations, models.Station{
			ID:        id,
			Name:      r.Name,
			Region:    r.Region,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Elevation: r.Elevation,
			ValidFrom: string(r.ValidFrom),
			ValidTo:   string(r.ValidTo),
		})
	}
	return &Catalog{stations: stations}, nil
}

// NewCatalog builds a catalog from already loaded stations.
func NewCatalog(stations []models.Station) *Catalog {
	return &Catalog{stations: append([]models.Station(nil), stations...)}
}

// Stations returns a copy of all stations in file order.
func (c *Catalog) Stations() []models.Station {
	return append([]models.Station(nil), c.stations...)
}

// Nearest returns up to n stations within maxKm of p, closest first. Ties keep
// catalog order.
func (c *Catalog) Nearest(p models.Point, maxKm float64, n int) []StationDistance {
	if n <= 0 {
		return nil
	}

	var within []StationDistance
	for _, st := range c.stations {
		d := DistanceKm(p, st.Point())
		if d <= maxKm {
			within = append(within, StationDistance{Station: st, DistanceKm: d})
		}
	}

	sort.SliceStable(within, func(i, j int) bool {
		return within[i].DistanceKm < within[j].DistanceKm
	})

	if len(within) > n {
		within = within[:n]
	}
	return within
}

// DistanceKm is the geodesic distance between two points on the WGS84
// ellipsoid, rounded to 0.1 km.
func DistanceKm(a, b models.Point) float64 {
	var meters float64
	geodesic.WGS84.Inverse(a.Latitude, a.Longitude, b.Latitude, b.Longitude, &meters, nil, nil)
	return math.Round(meters/100) / 10
}
