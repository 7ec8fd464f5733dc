package render

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const terminalChartHeight = 8

var terminalColors = map[string]asciigraph.AnsiColor{
	TemperatureColor: asciigraph.OrangeRed,
	HumidityColor:    asciigraph.DeepSkyBlue,
	WindColor:        asciigraph.Gold,
}

// WriteTerminal writes the dashboard as plain text with ASCII charts.
// Smooth has no effect on the terminal charts.
func WriteTerminal(w io.Writer, d Dashboard) error {
	if _, err := fmt.Fprintf(w, "⛅ %s\n📅 %s\n\n", Title, d.DateLabel); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "🌍 %s\n   %s  %s\n\n", d.MetricLabel, d.MetricValue, d.MetricDelta); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "🌡 Temperature: %s   💧 Humidity: %s   🌬 Wind Speed: %s\n\n",
		d.Temperature, d.Humidity, d.WindSpeed); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "timestamp\tsummary")
	fmt.Fprintf(tw, "%s\t%s\n", d.TableTimestamp, d.Summary)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range d.Series {
		if len(s.Values) == 0 {
			continue
		}
		opts := []asciigraph.Option{
			asciigraph.Height(terminalChartHeight),
			asciigraph.Caption(s.Name + " Trend"),
		}
		if c, ok := terminalColors[s.Color]; ok {
			opts = append(opts, asciigraph.SeriesColors(c))
		}
		if _, err := fmt.Fprintf(w, "\n%s\n", asciigraph.Plot(s.Values, opts...)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n⏱ Auto-refreshes every %d seconds.\n", RefreshSeconds)
	return err
}

// WriteTerminalError writes the failure line followed by the cause.
func WriteTerminalError(w io.Writer, cause error) error {
	if cause == nil {
		_, err := fmt.Fprintf(w, "❌ %s\n", FailureMessage)
		return err
	}
	_, err := fmt.Fprintf(w, "❌ %s\n   %v\n", FailureMessage, cause)
	return err
}

const clearScreen = "\033[H\033[2J"

// Terminal draws successive frames to W. It satisfies the refresh loop's
// renderer.
type Terminal struct {
	W      io.Writer
	Smooth bool
	// Clear homes the cursor and clears the screen before each frame.
	Clear bool
}

func (t *Terminal) Render(r models.Reading, points []models.TrendPoint) error {
	if t.Clear {
		if _, err := io.WriteString(t.W, clearScreen); err != nil {
			return err
		}
	}
	err := WriteTerminal(t.W, Build(r, points, t.Smooth))
	observability.DashboardRendersTotal.WithLabelValues("terminal", outcome(err)).Inc()
	return err
}

func (t *Terminal) RenderError(cause error) error {
	observability.DashboardRendersTotal.WithLabelValues("terminal", "error").Inc()
	return WriteTerminalError(t.W, cause)
}

func outcome(err error) string {
	if err != nil {
		return "render_failed"
	}
	return "success"
}
