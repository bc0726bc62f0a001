package models

import "fmt"

// Variable is a DWD daily climate column tracked by the forecast.
type Variable string

const (
	TempMax  Variable = "TXK" // daily maximum air temperature, °C
	TempMin  Variable = "TNK" // daily minimum air temperature, °C
	Precip   Variable = "RSK" // daily precipitation, mm
	Sunshine Variable = "SDK" // daily sunshine duration, h
	Pressure Variable = "PM"  // daily mean pressure at station height, hPa
	Humidity Variable = "UPM" // daily mean relative humidity, %
)

// DateField is the measurement date column, always kept as YYYYMMDD text.
const DateField = "MESS_DATUM"

// Variables lists the tracked variables in report order.
var Variables = []Variable{TempMax, TempMin, Precip, Sunshine, Pressure, Humidity}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}

// Station is the immutable metadata of a DWD climate station.
type Station struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	ValidFrom string  `json:"validFrom"` // YYYYMMDD
	ValidTo   string  `json:"validTo"`   // YYYYMMDD
}

// PaddedID returns the 5-digit zero-padded id used in DWD file names.
func (s Station) PaddedID() string {
	return PadStationID(s.ID)
}

func (s Station) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}

func PadStationID(id int) string {
	return fmt.Sprintf("%05d", id)
}
