package control

import (
	"fmt"
	"sort"
)

// Control options selectable from configuration.
const (
	OptionLiquidCooling = "change_liquid_cooling"
	OptionSupplyDeltaT  = "change_supply_delta_t"
	OptionITLoad        = "change_it_load"
	OptionFixed         = "fixed"
)

type Params struct {
	// TotalSeconds is the length of the simulated run period.
	TotalSeconds float64
	Fixed        Setpoints
}

type Registry struct {
	policies map[string]func(Params) Policy
}

func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]func(Params) Policy)}

	r.policies[OptionLiquidCooling] = func(Params) Policy { return NewLiquidCooling() }
	r.policies[OptionSupplyDeltaT] = func(Params) Policy { return NewSupplyApproachRamp() }
	r.policies[OptionITLoad] = func(p Params) Policy { return NewITLoadRamp(p.TotalSeconds) }
	r.policies[OptionFixed] = func(p Params) Policy { return NewFixed(p.Fixed) }

	return r
}

func (r *Registry) Get(name string, p Params) (Policy, error) {
	fn, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown control option: %s (available: %v)", name, r.List())
	}
	return fn(p), nil
}

func (r *Registry) Register(name string, fn func(Params) Policy) {
	r.policies[name] = fn
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
