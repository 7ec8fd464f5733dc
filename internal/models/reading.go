package models

import "time"

// Reading is one normalized weather observation for a city. Values are
// immutable once built by the weather client; a newer fetch supersedes it.
type Reading struct {
	City        string    `json:"city"`
	Description string    `json:"description"`
	Temperature float64   `json:"temperature"` // °C
	Humidity    int       `json:"humidity"`    // percent, 0-100
	WindSpeed   float64   `json:"windSpeed"`   // upstream units
	Timestamp   time.Time `json:"timestamp"`
}

// TrendPoint is a synthetic sample derived from a single Reading for chart
// display. It is not an observed historical value.
type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
}
