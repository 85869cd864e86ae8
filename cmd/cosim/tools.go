package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/analysis"
	"github.com/san-kum/cosim/internal/automation"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/export"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/viz"
)

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	steps, err := st.LoadSteps(args[0])
	if err != nil {
		return err
	}
	data, ok := steps.Column(analyzeColumn)
	if !ok {
		return fmt.Errorf("unknown column %q (available: %v)", analyzeColumn, steps.Header[2:])
	}

	s, err := analysis.Summarize(steps.Times, data, meta.TimestepSeconds)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("column: %s\n\n", analyzeColumn)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "samples\t%d\n", s.Samples)
	fmt.Fprintf(w, "mean\t%.4g\n", s.Mean)
	fmt.Fprintf(w, "min / max\t%.4g / %.4g\n", s.Min, s.Max)
	fmt.Fprintf(w, "std dev\t%.4g\n", s.StdDev)
	fmt.Fprintf(w, "load factor\t%.3f\n", s.LoadFactor)
	if s.PeakHour >= 0 {
		fmt.Fprintf(w, "peak hour\t%02d:00\n", s.PeakHour)
	}
	if s.Periodic {
		fmt.Fprintf(w, "dominant period\t%.2f h (amplitude %.4g)\n", s.Dominant.Period/3600, s.Dominant.Amplitude)
	} else {
		fmt.Fprintf(w, "dominant period\tnone\n")
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if graph := viz.Plot(s.Profile[:], "mean by hour of day", 10, 48); graph != "" {
		fmt.Println()
		fmt.Println(graph)
	}
	return nil
}

// exportSVG draws the demand and setpoint columns of a stored run, each
// normalized to its own range.
func exportSVG(st *storage.Store, runID, path string) error {
	steps, err := st.LoadSteps(runID)
	if err != nil {
		return err
	}

	var series []export.Series
	for _, name := range steps.Header[2:] {
		if name != config.FacilityDemandKey && !strings.HasPrefix(name, "u") {
			continue
		}
		data, _ := steps.Column(name)
		series = append(series, export.Series{Name: name, Values: normalize(data)})
	}
	return export.WriteSVG(path, steps.Times, series, 960, 360)
}

func normalize(values []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case hi > lo:
			out[i] = (v - lo) / (hi - lo)
		default:
			out[i] = 0.5
		}
	}
	return out
}

func runBatch(cmd *cobra.Command, args []string) error {
	b, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}
	// Flags still select logging for the batch.
	if _, err := loadConfig(cmd); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("batch %s: %d runs\n", b.Name, len(b.Runs))
	n, err := automation.RunBatch(ctx, b, func(cfg *config.Config, out *experiment.Outcome) error {
		res := out.Controller
		fmt.Printf("\n%s %s (%s, %d steps)\n", viz.StatusDone.Render("done:"), cfg.Name, cfg.ControlOption, res.StepsTaken)
		fmt.Print(viz.MetricsTable(res.Metrics))
		if noSave {
			return nil
		}
		return saveRun(cfg, out.BrokerID, res)
	})
	fmt.Printf("\n%d/%d runs completed\n", n, len(b.Runs))
	return err
}

func runParameterSweep(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("sweeping %s from %g to %g (%d runs, %s)\n\n", sweepParam, sweepMin, sweepMax, sweepSteps, base.ControlOption)
	points, err := automation.RunParameterSweep(ctx, &automation.ParameterSweep{
		Base:  base,
		Param: sweepParam,
		Min:   sweepMin,
		Max:   sweepMax,
		Steps: sweepSteps,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tENERGY (kWh)\tPEAK (W)\tMEAN (W)\n", strings.ToUpper(sweepParam))
	energy := make([]float64, len(points))
	for i, p := range points {
		energy[i] = p.Metrics["energy_kwh"]
		fmt.Fprintf(w, "%.4g\t%.1f\t%.4g\t%.4g\n", p.Value, energy[i], p.Metrics["peak_demand_w"], p.Metrics["mean_demand_w"])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if graph := viz.Plot(energy, "energy (kWh) by "+sweepParam, 8, 40); graph != "" {
		fmt.Println()
		fmt.Println(graph)
	}
	return nil
}
