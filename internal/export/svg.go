// Package export renders run series for use outside the terminal.
package export

import (
	"fmt"
	"math"
	"os"
	"strings"
)

var DefaultColors = []string{"#00d7ff", "#ff5faf", "#afff00", "#ffaf00"}

// Series is one line of a chart.
type Series struct {
	Name   string
	Values []float64
	Color  string
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b *bounds) pad() {
	rx, ry := b.maxX-b.minX, b.maxY-b.minY
	if rx == 0 {
		rx = 1
	}
	if ry == 0 {
		ry = 1
	}
	b.minY -= ry * 0.1
	b.maxY += ry * 0.1
	if b.maxX == b.minX {
		b.maxX = b.minX + rx
	}
}

// SeriesToSVG draws the series against shared times as polylines. NaN
// samples break a line. It returns "" when no series has two finite points.
func SeriesToSVG(times []float64, series []Series, width, height int) string {
	b, ok := seriesBounds(times, series)
	if !ok {
		return ""
	}
	b.pad()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, s := range series {
		color := s.Color
		if color == "" {
			color = DefaultColors[i%len(DefaultColors)]
		}
		if finitePoints(times, s.Values) < 2 {
			continue
		}
		d := pathData(times, s.Values, b, width, height)
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="%s"/>
`, color, d))
		if s.Name != "" {
			sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16*(i+1), color, escape(s.Name)))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// WriteSVG writes SeriesToSVG output to path.
func WriteSVG(path string, times []float64, series []Series, width, height int) error {
	svg := SeriesToSVG(times, series, width, height)
	if svg == "" {
		return fmt.Errorf("nothing to draw")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}

// seriesBounds spans every finite point. It reports false unless at least
// one series has two finite points to draw a line through.
func seriesBounds(times []float64, series []Series) (bounds, bool) {
	var b bounds
	found := 0
	drawable := false
	for _, s := range series {
		if finitePoints(times, s.Values) >= 2 {
			drawable = true
		}
		for i := 0; i < len(times) && i < len(s.Values); i++ {
			v := s.Values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if found == 0 {
				b = bounds{times[i], times[i], v, v}
			}
			b.minX = math.Min(b.minX, times[i])
			b.maxX = math.Max(b.maxX, times[i])
			b.minY = math.Min(b.minY, v)
			b.maxY = math.Max(b.maxY, v)
			found++
		}
	}
	return b, drawable
}

func finitePoints(times, values []float64) int {
	n := 0
	for i := 0; i < len(times) && i < len(values); i++ {
		if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
			n++
		}
	}
	return n
}

func pathData(times, values []float64, b bounds, width, height int) string {
	var sb strings.Builder
	pen := false
	for i := 0; i < len(times) && i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			pen = false
			continue
		}
		x := (times[i] - b.minX) / (b.maxX - b.minX) * float64(width)
		y := float64(height) - (v-b.minY)/(b.maxY-b.minY)*float64(height)
		if !pen {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(fmt.Sprintf("M%.1f,%.1f", x, y))
			pen = true
			continue
		}
		sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
	}
	return sb.String()
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
