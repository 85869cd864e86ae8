package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/building"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/cosim"
	"github.com/san-kum/cosim/internal/metrics"
)

const DefaultModel = "surrogate"

type Registry struct {
	policies *control.Registry
	models   map[string]func(*config.Config) (building.Model, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		policies: control.NewRegistry(),
		models:   make(map[string]func(*config.Config) (building.Model, error)),
	}

	r.models[DefaultModel] = func(cfg *config.Config) (building.Model, error) {
		return building.NewSurrogate(cfg.Surrogate, cfg.Actuators)
	}

	return r
}

// Policy resolves the control option named in cfg.
func (r *Registry) Policy(cfg *config.Config) (control.Policy, error) {
	return r.policies.Get(cfg.ControlOption, control.Params{
		TotalSeconds: cfg.TotalSeconds(),
		Fixed:        control.Setpoints(cfg.Fixed),
	})
}

func (r *Registry) Model(name string, cfg *config.Config) (building.Model, error) {
	if name == "" {
		name = DefaultModel
	}
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown building model: %s", name)
	}
	return fn(cfg)
}

func (r *Registry) RegisterModel(name string, fn func(*config.Config) (building.Model, error)) {
	r.models[name] = fn
}

func (r *Registry) ListPolicies() []string { return r.policies.List() }

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics(cfg *config.Config) []cosim.Metric {
	ms := []cosim.Metric{
		metrics.NewEnergy(config.FacilityDemandKey),
		metrics.NewPeakDemand(config.FacilityDemandKey),
		metrics.NewMeanDemand(config.FacilityDemandKey),
		metrics.NewControlEffort(),
	}
	if cfg.DemandLimitW > 0 {
		ms = append(ms, metrics.NewDemandLimit(config.FacilityDemandKey, cfg.DemandLimitW))
	}
	return ms
}
