package viz

import (
	"math"
	"strings"
	"testing"
)

func TestFinite(t *testing.T) {
	got := Finite([]float64{1, math.NaN(), 2, math.Inf(1), 3})
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("unexpected finite values %v", got)
	}
}

func TestPlot(t *testing.T) {
	if Plot([]float64{math.NaN()}, "empty", 5, 20) != "" {
		t.Error("expected empty plot for non-finite input")
	}
	out := Plot([]float64{1, 2, 3, 2, 1}, "demand", 5, 20)
	if !strings.Contains(out, "demand") {
		t.Errorf("caption missing from plot:\n%s", out)
	}
}

func TestPlotSeries(t *testing.T) {
	out := PlotSeries([][]float64{{1, 2, 3}, {math.NaN()}, {3, 2, 1}}, []string{"a", "b", "c"}, "cmp", 5, 20)
	if out == "" {
		t.Fatal("expected a plot")
	}
	if !strings.Contains(out, "a") {
		t.Errorf("legend missing from plot:\n%s", out)
	}
	if PlotSeries(nil, nil, "none", 5, 20) != "" {
		t.Error("expected empty plot without series")
	}
}

func TestSparklineWidth(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	line := SparklineChart(values, 10)
	if n := strings.Count(line, "█") + strings.Count(line, "▁") + strings.Count(line, "▄") + strings.Count(line, "▅") + strings.Count(line, "▂") + strings.Count(line, "▃") + strings.Count(line, "▆") + strings.Count(line, "▇"); n != 10 {
		t.Errorf("expected 10 bars, got %d", n)
	}
	if SparklineChart(nil, 4) != "────" {
		t.Error("expected flat line for no data")
	}
}

func TestMetricsTableSorted(t *testing.T) {
	out := MetricsTable(map[string]float64{"peak": 2, "energy": 1})
	if strings.Index(out, "energy") > strings.Index(out, "peak") {
		t.Errorf("metrics not sorted:\n%s", out)
	}
}
