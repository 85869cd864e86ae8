package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TimestepSeconds != 600 {
		t.Errorf("expected timestep 600, got %v", cfg.TimestepSeconds)
	}
	if cfg.TotalSeconds() != 62*86400 {
		t.Errorf("expected 62 days, got %v", cfg.TotalSeconds())
	}
	if len(cfg.Actuators) != 4 {
		t.Errorf("expected 4 actuators, got %d", len(cfg.Actuators))
	}

	cfg.Sensors[0].VariableKey = "changed"
	if DefaultSensors[0].VariableKey == "changed" {
		t.Error("default config shares the sensor table")
	}
}

func TestKeys(t *testing.T) {
	s := Sensor{VariableKey: "Whole Building", VariableName: "Facility Total Building Electricity Demand Rate"}
	if s.Key() != FacilityDemandKey {
		t.Errorf("unexpected sensor key %q", s.Key())
	}

	a := DefaultActuators[0]
	want := "Schedule:Compact/Schedule Value/Liquid Cooling Load Schedule"
	if a.Key() != want {
		t.Errorf("expected %q, got %q", want, a.Key())
	}
}

func TestFederateInfo(t *testing.T) {
	cfg := DefaultConfig()
	info := cfg.ControllerInfo()

	if info.Name != "Controller" || info.Period != cfg.TimestepSeconds {
		t.Errorf("unexpected controller info %+v", info)
	}
	if !info.Flags.Uninterruptible || !info.Flags.TerminateOnError {
		t.Error("controller should be uninterruptible and terminate on error")
	}
	if err := info.Validate(); err != nil {
		t.Errorf("controller info invalid: %v", err)
	}
	if !cfg.BuildingInfo().Flags.WaitForCurrentTimeUpdate {
		t.Error("building should wait for current time updates")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no option", func(c *Config) { c.ControlOption = "" }},
		{"zero timestep", func(c *Config) { c.TimestepSeconds = 0 }},
		{"zero days", func(c *Config) { c.RunPeriodDays = 0 }},
		{"no federates", func(c *Config) { c.Broker.Federates = 0 }},
		{"same names", func(c *Config) { c.Building.Name = c.Controller.Name }},
		{"no actuators", func(c *Config) { c.Actuators = nil }},
		{"duplicate actuator", func(c *Config) { c.Actuators[1] = c.Actuators[0] }},
		{"extra actuator", func(c *Config) {
			c.Actuators = append(c.Actuators, Actuator{ComponentType: "Schedule:Compact", ControlType: "Schedule Value", ActuatorKey: "Extra"})
		}},
		{"missing actuator", func(c *Config) { c.Actuators = c.Actuators[:3] }},
		{"unnamed sensor", func(c *Config) { c.Sensors[1].VariableName = "" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSaveLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cosim.yaml")
	cfg := DefaultConfig()
	cfg.ControlOption = "change_it_load"
	cfg.RunPeriodDays = 3

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ControlOption != "change_it_load" || loaded.RunPeriodDays != 3 {
		t.Errorf("unexpected loaded config %+v", loaded)
	}
	if len(loaded.Sensors) != len(cfg.Sensors) {
		t.Errorf("expected %d sensors, got %d", len(cfg.Sensors), len(loaded.Sensors))
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cosim.toml")
	data := `
control_option = "change_supply_delta_t"
run_period_days = 1

[building]
name = "Building"
core_init = "--federates=1"

[building.flags]
wait_for_current_time_update = false
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ControlOption != "change_supply_delta_t" {
		t.Errorf("unexpected option %q", cfg.ControlOption)
	}
	if cfg.Building.Name != "Building" || cfg.Building.Flags.WaitForCurrentTimeUpdate {
		t.Errorf("unexpected building settings %+v", cfg.Building)
	}
	if cfg.TimestepSeconds != DefaultTimestep {
		t.Errorf("expected default timestep, got %v", cfg.TimestepSeconds)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timestep_seconds: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative timestep")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("it_load")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.ControlOption != "change_it_load" {
		t.Errorf("expected change_it_load, got %s", cfg.ControlOption)
	}

	cfg.RunPeriodDays = 99
	if GetPreset("it_load").RunPeriodDays == 99 {
		t.Error("preset should return a fresh copy")
	}
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	if len(presets) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(presets))
	}
	for i := 1; i < len(presets); i++ {
		if presets[i-1] > presets[i] {
			t.Errorf("presets not sorted: %v", presets)
		}
	}
}
