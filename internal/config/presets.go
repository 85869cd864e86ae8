package config

import "sort"

// Presets are named configurations keyed by scenario.
var Presets = map[string]func() *Config{
	"liquid_cooling": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "liquid-cooling"
		cfg.ControlOption = "change_liquid_cooling"
		return cfg
	},
	"supply_approach": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "supply-approach"
		cfg.ControlOption = "change_supply_delta_t"
		return cfg
	},
	"it_load": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "it-load"
		cfg.ControlOption = "change_it_load"
		return cfg
	},
	"baseline": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "baseline"
		cfg.ControlOption = "fixed"
		return cfg
	},
	"quick": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "quick"
		cfg.RunPeriodDays = 2
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
