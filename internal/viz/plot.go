package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
)

const (
	DefaultPlotHeight = 12
	DefaultPlotWidth  = 80
)

// Finite drops NaN and infinite values.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Plot draws one series. It returns "" when nothing finite is left to draw.
func Plot(values []float64, caption string, height, width int) string {
	values = Finite(values)
	if len(values) == 0 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Red,
	asciigraph.Blue,
	asciigraph.Magenta,
}

// PlotSeries overlays several series with one legend entry each.
func PlotSeries(series [][]float64, legends []string, caption string, height, width int) string {
	data := make([][]float64, 0, len(series))
	names := make([]string, 0, len(series))
	colors := make([]asciigraph.AnsiColor, 0, len(series))
	for i, s := range series {
		s = Finite(s)
		if len(s) == 0 {
			continue
		}
		data = append(data, s)
		if i < len(legends) {
			names = append(names, legends[i])
		} else {
			names = append(names, "")
		}
		colors = append(colors, seriesColors[len(colors)%len(seriesColors)])
	}
	if len(data) == 0 {
		return ""
	}
	return asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(names...),
	)
}
