package render

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
)

const (
	chartWidth   = 640
	chartHeight  = 240
	chartPadding = 36
)

type point struct{ X, Y float64 }

type chartView struct {
	Title     string
	Color     string
	Path      string
	Markers   []point
	Width     int
	Height    int
	MinLabel  string
	MaxLabel  string
	FromLabel string
	ToLabel   string
	AxisLabel string
}

type pageView struct {
	Title   string
	Error   string
	Refresh bool
	D       Dashboard
	Charts  []chartView
}

var pageTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
{{if .Refresh}}<meta http-equiv="refresh" content="` + strconv.Itoa(RefreshSeconds) + `">
{{end}}<title>{{.Title}}</title>
<style>
body{background-color:#0E1117;color:white;font-family:sans-serif;padding:2rem}
.cols{display:flex;gap:2rem}
table{border-collapse:collapse}
td,th{border:1px solid #333;padding:.4rem .8rem;text-align:left}
.error{color:#ff6b6b}
svg{background:#161a23;margin-bottom:1rem}
</style>
</head>
<body>
<h1>⛅ {{.Title}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>
{{else}}{{with .D}}<p>📅 {{.DateLabel}}</p>
<h4>Updated every ` + strconv.Itoa(RefreshSeconds) + ` seconds</h4>
<h3>🌍 Live Weather Summary</h3>
<div class="metric">
<div>{{.MetricLabel}}</div>
<div style="font-size:2rem">{{.MetricValue}}</div>
<div>{{.MetricDelta}}</div>
</div>
<h3>🌟 Snapshot Summary</h3>
<div class="cols">
<h4>🌡 <b>Temperature:</b> {{.Temperature}}</h4>
<h4>💧 <b>Humidity:</b> {{.Humidity}}</h4>
<h4>🌬 <b>Wind Speed:</b> {{.WindSpeed}}</h4>
</div>
<h3>📋 Weather Info Table</h3>
<table>
<tr><th>timestamp</th><th>summary</th></tr>
<tr><td>{{.TableTimestamp}}</td><td>{{.Summary}}</td></tr>
</table>
{{end}}{{range .Charts}}<h3>{{.Title}}</h3>
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
<text x="4" y="14" fill="#aaa" font-size="11">{{.MaxLabel}}</text>
<text x="4" y="{{.Height}}" dy="-20" fill="#aaa" font-size="11">{{.MinLabel}}</text>
<text x="40" y="{{.Height}}" dy="-4" fill="#aaa" font-size="11">{{.FromLabel}}</text>
<text x="{{.Width}}" y="{{.Height}}" dx="-60" dy="-4" fill="#aaa" font-size="11">{{.ToLabel}}</text>
<path d="{{.Path}}" fill="none" stroke="{{.Color}}" stroke-width="2"/>
{{$color := .Color}}{{range .Markers}}<circle cx="{{printf "%.2f" .X}}" cy="{{printf "%.2f" .Y}}" r="3" fill="{{$color}}"/>
{{end}}</svg>
<p style="color:#aaa;font-size:.8rem">{{.AxisLabel}}</p>
{{end}}<p>⏱ Auto-refreshes every ` + strconv.Itoa(RefreshSeconds) + ` seconds.</p>
{{end}}</body>
</html>
`))

// WriteHTML writes the dashboard page. The page reloads itself every
// RefreshSeconds.
func WriteHTML(w io.Writer, d Dashboard) error {
	view := pageView{
		Title:   Title,
		Refresh: true,
		D:       d,
		Charts:  chartViews(d),
	}
	return pageTemplate.Execute(w, view)
}

// WriteHTMLError writes the failure page. It carries no refresh directive.
func WriteHTMLError(w io.Writer, message string) error {
	if message == "" {
		message = FailureMessage
	}
	return pageTemplate.Execute(w, pageView{Title: Title, Error: message})
}

func chartViews(d Dashboard) []chartView {
	views := make([]chartView, 0, len(d.Series))
	for _, s := range d.Series {
		if len(s.Values) == 0 {
			continue
		}
		pts, lo, hi := project(s.Values, chartWidth, chartHeight, chartPadding)
		v := chartView{
			Title:    s.Name + " Trend",
			Color:    s.Color,
			Path:     linePath(pts, d.Smooth),
			Markers:  pts,
			Width:    chartWidth,
			Height:   chartHeight,
			MinLabel: formatFloat(lo),
			MaxLabel: formatFloat(hi),
		}
		if n := len(s.Times); n > 0 {
			v.FromLabel = s.Times[0].Format(timeLayout)
			v.ToLabel = s.Times[n-1].Format(timeLayout)
			v.AxisLabel = "Time (" + s.Times[n-1].Format("MST") + ")"
		}
		views = append(views, v)
	}
	return views
}

// project maps values onto the drawing area, index on x and value on y.
// A flat series is centred in a band of ±1.
func project(values []float64, width, height, pad int) ([]point, float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		lo--
		hi++
	}
	innerW := float64(width - 2*pad)
	innerH := float64(height - 2*pad)
	pts := make([]point, len(values))
	for i, v := range values {
		x := float64(pad)
		if len(values) > 1 {
			x += innerW * float64(i) / float64(len(values)-1)
		}
		y := float64(pad) + innerH*(hi-v)/(hi-lo)
		pts[i] = point{X: x, Y: y}
	}
	return pts, lo, hi
}

// linePath builds an SVG path through pts. Smooth paths use Catmull-Rom
// segments converted to cubic Béziers; otherwise straight segments.
func linePath(pts []point, smooth bool) string {
	if len(pts) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "M %.2f %.2f", pts[0].X, pts[0].Y)
	for i := 1; i < len(pts); i++ {
		if !smooth {
			fmt.Fprintf(&b, " L %.2f %.2f", pts[i].X, pts[i].Y)
			continue
		}
		p0 := pts[max(i-2, 0)]
		p1 := pts[i-1]
		p2 := pts[i]
		p3 := pts[min(i+1, len(pts)-1)]
		c1 := point{X: p1.X + (p2.X-p0.X)/6, Y: p1.Y + (p2.Y-p0.Y)/6}
		c2 := point{X: p2.X - (p3.X-p1.X)/6, Y: p2.Y - (p3.Y-p1.Y)/6}
		fmt.Fprintf(&b, " C %.2f %.2f, %.2f %.2f, %.2f %.2f", c1.X, c1.Y, c2.X, c2.Y, p2.X, p2.Y)
	}
	return b.String()
}
