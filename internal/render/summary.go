// Package render turns a reading and its synthetic trend into the
// dashboard's content, for HTML and for a terminal.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	Title          = "Live Weather Dashboard"
	RefreshSeconds = 30

	// FailureMessage is shown instead of the dashboard when the fetch fails.
	FailureMessage = "Failed to fetch weather data. Check city name or API key."
	// RateLimitedMessage is shown when the dashboard request is throttled.
	RateLimitedMessage = "Too many requests. Try again in a moment."

	dateLayout  = "Monday, 02 January 2006"
	timeLayout  = "15:04:05"
	tableLayout = "2006-01-02 15:04:05 -07:00"
)

// Series colours, one per chart.
const (
	TemperatureColor = "orangered"
	HumidityColor    = "deepskyblue"
	WindColor        = "gold"
)

// Dashboard is the view model shared by the HTML and terminal renderers.
type Dashboard struct {
	City      string
	Icon      string
	DateLabel string
	TimeLabel string

	// Metric header: "<icon> <city> (<time>)", "<temp>°C", capitalized description.
	MetricLabel string
	MetricValue string
	MetricDelta string

	Temperature string
	Humidity    string
	WindSpeed   string

	TableTimestamp string
	Summary        string

	Smooth bool
	Series []Series
}

// Series is one charted metric of the trend.
type Series struct {
	Name   string
	Color  string
	Values []float64
	Times  []time.Time
}

// Build assembles the view model. The date label uses the reading's own
// time zone.
func Build(r models.Reading, points []models.TrendPoint, smooth bool) Dashboard {
	icon := ConditionIcon(r.Description)
	timeLabel := r.Timestamp.Format(timeLayout)
	return Dashboard{
		City:           r.City,
		Icon:           icon,
		DateLabel:      r.Timestamp.Format(dateLayout),
		TimeLabel:      timeLabel,
		MetricLabel:    fmt.Sprintf("%s %s (%s)", icon, r.City, timeLabel),
		MetricValue:    formatFloat(r.Temperature) + "°C",
		MetricDelta:    capitalize(r.Description),
		Temperature:    formatFloat(r.Temperature) + "°C",
		Humidity:       strconv.Itoa(r.Humidity) + "%",
		WindSpeed:      formatFloat(r.WindSpeed) + " km/h",
		TableTimestamp: r.Timestamp.Format(tableLayout),
		Summary:        FormatSummary(r),
		Smooth:         smooth,
		Series:         buildSeries(points),
	}
}

func buildSeries(points []models.TrendPoint) []Series {
	temp := Series{Name: "Temperature", Color: TemperatureColor}
	hum := Series{Name: "Humidity", Color: HumidityColor}
	wind := Series{Name: "Wind Speed", Color: WindColor}
	for _, p := range points {
		temp.Values = append(temp.Values, p.Temperature)
		hum.Values = append(hum.Values, float64(p.Humidity))
		wind.Values = append(wind.Values, p.WindSpeed)
		temp.Times = append(temp.Times, p.Timestamp)
		hum.Times = append(hum.Times, p.Timestamp)
		wind.Times = append(wind.Times, p.Timestamp)
	}
	return []Series{temp, hum, wind}
}

// FormatSummary returns the one-line table summary, e.g.
// "light rain, 22.5°C, 80% humidity, 3.2 km/h wind".
func FormatSummary(r models.Reading) string {
	return fmt.Sprintf("%s, %s°C, %d%% humidity, %s km/h wind",
		r.Description, formatFloat(r.Temperature), r.Humidity, formatFloat(r.WindSpeed))
}

// ConditionIcon picks an icon by the first matching keyword, checked in
// order: cloud, sun/clear, rain, storm/thunder, mist/fog.
func ConditionIcon(description string) string {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "cloud"):
		return "☁"
	case strings.Contains(d, "sun"), strings.Contains(d, "clear"):
		return "☀"
	case strings.Contains(d, "rain"):
		return "🌧"
	case strings.Contains(d, "storm"), strings.Contains(d, "thunder"):
		return "⛈"
	case strings.Contains(d, "mist"), strings.Contains(d, "fog"):
		return "🌫"
	default:
		return "🌡"
	}
}

// formatFloat renders the shortest decimal that round-trips, always with a
// fractional part: 25 -> "25.0", 22.5 -> "22.5". Very large or very small
// magnitudes switch to exponent form.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
