// Package automation runs scripted batches of co-simulations and parameter
// sweeps over the building model.
package automation

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/cosim"
	"github.com/san-kum/cosim/internal/experiment"
)

// Batch is a scripted sequence of runs.
type Batch struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Runs        []BatchRun `yaml:"runs"`
}

// BatchRun starts from a preset, a config file or the defaults and applies
// its overrides on top.
type BatchRun struct {
	Name          string             `yaml:"name"`
	Preset        string             `yaml:"preset"`
	Config        string             `yaml:"config"`
	ControlOption string             `yaml:"control_option"`
	Days          int                `yaml:"run_period_days"`
	Timestep      float64            `yaml:"timestep_seconds"`
	Model         string             `yaml:"model"`
	Params        map[string]float64 `yaml:"params"`
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	if len(b.Runs) == 0 {
		return nil, fmt.Errorf("batch %s has no runs", path)
	}
	return &b, nil
}

// Resolve builds the validated config for the run.
func (r BatchRun) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case r.Preset != "":
		cfg = config.GetPreset(r.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", r.Preset)
		}
	case r.Config != "":
		var err error
		if cfg, err = config.Load(r.Config); err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}

	if r.Name != "" {
		cfg.Name = r.Name
	}
	if r.ControlOption != "" {
		cfg.ControlOption = r.ControlOption
	}
	if r.Days > 0 {
		cfg.RunPeriodDays = r.Days
	}
	if r.Timestep > 0 {
		cfg.TimestepSeconds = r.Timestep
	}

	names := make([]string, 0, len(r.Params))
	for k := range r.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := SetParam(cfg, k, r.Params[k]); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunBatch executes the runs in order. done is called after each run and
// may persist the outcome; an error from a run or from done stops the batch.
func RunBatch(ctx context.Context, b *Batch, done func(cfg *config.Config, out *experiment.Outcome) error) (int, error) {
	completed := 0
	for i, run := range b.Runs {
		cfg, err := run.Resolve()
		if err != nil {
			return completed, fmt.Errorf("run %d: %w", i+1, err)
		}

		logrus.WithFields(logrus.Fields{
			"batch":  b.Name,
			"run":    i + 1,
			"of":     len(b.Runs),
			"option": cfg.ControlOption,
		}).Info("starting batch run")

		out, err := experiment.New(cfg).Run(ctx, experiment.Options{Model: run.Model})
		if err != nil {
			return completed, fmt.Errorf("run %d (%s): %w", i+1, cfg.Name, err)
		}
		if done != nil {
			if err := done(cfg, out); err != nil {
				return completed, fmt.Errorf("run %d (%s): %w", i+1, cfg.Name, err)
			}
		}
		completed++
	}
	return completed, nil
}

var params = map[string]func(*config.Config, float64){
	"base_load_w":     func(c *config.Config, v float64) { c.Surrogate.BaseLoadW = v },
	"it_peak_w":       func(c *config.Config, v float64) { c.Surrogate.ITPeakW = v },
	"chiller_cop":     func(c *config.Config, v float64) { c.Surrogate.ChillerCOP = v },
	"approach_gain_w": func(c *config.Config, v float64) { c.Surrogate.ApproachGainW = v },
	"pump_peak_w":     func(c *config.Config, v float64) { c.Surrogate.PumpPeakW = v },
	"outdoor_mean_c":  func(c *config.Config, v float64) { c.Surrogate.OutdoorMeanC = v },
	"outdoor_swing_c": func(c *config.Config, v float64) { c.Surrogate.OutdoorSwingC = v },
	"demand_limit_w":  func(c *config.Config, v float64) { c.DemandLimitW = v },
}

// SetParam sets a tunable model or metric parameter by name.
func SetParam(cfg *config.Config, name string, value float64) error {
	set, ok := params[name]
	if !ok {
		return fmt.Errorf("unknown parameter: %s (available: %v)", name, ParamNames())
	}
	set(cfg, value)
	return nil
}

func ParamNames() []string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParameterSweep runs the base config once per evenly spaced parameter
// value between Min and Max.
type ParameterSweep struct {
	Base  *config.Config
	Param string
	Min   float64
	Max   float64
	Steps int
	Model string
}

type SweepPoint struct {
	Value   float64
	Result  *cosim.Result
	Metrics map[string]float64
}

func RunParameterSweep(ctx context.Context, ps *ParameterSweep) ([]SweepPoint, error) {
	if ps.Base == nil {
		return nil, fmt.Errorf("sweep has no base config")
	}
	if ps.Steps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", ps.Steps)
	}

	step := (ps.Max - ps.Min) / float64(ps.Steps-1)
	values := make([]float64, ps.Steps)
	sweep := cosim.NewSweep()
	for i := range values {
		values[i] = ps.Min + float64(i)*step

		cfg := *ps.Base
		cfg.Name = fmt.Sprintf("%s_%s_%d", ps.Base.Name, ps.Param, i)
		if err := SetParam(&cfg, ps.Param, values[i]); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", ps.Param, values[i], err)
		}
		sweep.Add(cfg.Name, experiment.New(&cfg).Scenario(experiment.Options{Model: ps.Model}))
	}

	results, err := sweep.Run(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]SweepPoint, len(results))
	for i, res := range results {
		points[i] = SweepPoint{Value: values[i], Result: res, Metrics: res.Metrics}
	}
	return points, nil
}
