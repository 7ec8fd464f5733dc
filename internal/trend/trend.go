// Package trend derives a short synthetic series from a single reading so
// the dashboard has something to chart. The points are not observations:
// they are a deterministic function of the current reading.
package trend

import (
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	DefaultPoints = 10
	DefaultStep   = 3 * time.Minute
)

// Synthesize returns n points ending at current.Timestamp and spaced step
// apart. Point i carries temperature T+0.1i, humidity H+(i mod 2) and wind
// W+0.1 or W-0.1 alternating from +0.1 at i=0. n <= 0 yields nil;
// step <= 0 uses DefaultStep.
func Synthesize(current models.Reading, n int, step time.Duration) []models.TrendPoint {
	if n <= 0 {
		return nil
	}
	if step <= 0 {
		step = DefaultStep
	}
	points := make([]models.TrendPoint, n)
	for i := 0; i < n; i++ {
		wind := 0.1
		if i%2 == 1 {
			wind = -0.1
		}
		points[i] = models.TrendPoint{
			Timestamp:   current.Timestamp.Add(-time.Duration(n-1-i) * step),
			Temperature: current.Temperature + float64(i)*0.1,
			Humidity:    current.Humidity + i%2,
			WindSpeed:   current.WindSpeed + wind,
		}
	}
	return points
}
