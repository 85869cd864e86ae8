package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/federation"
)

const (
	DefaultTimestep      = 600.0
	DefaultRunPeriodDays = 62
	DefaultLogLevel      = "helics_log_level_warning"
	DefaultBrokerAddr    = "127.0.0.1:23500"
	DefaultControlOption = "change_liquid_cooling"

	FacilityDemandKey = "Whole Building/Facility Total Building Electricity Demand Rate"
)

type Config struct {
	Name            string           `yaml:"name" toml:"name"`
	ControlOption   string           `yaml:"control_option" toml:"control_option"`
	TimestepSeconds float64          `yaml:"timestep_seconds" toml:"timestep_seconds"`
	RunPeriodDays   int              `yaml:"run_period_days" toml:"run_period_days"`
	LogLevel        string           `yaml:"log_level" toml:"log_level"`
	Broker          BrokerConfig     `yaml:"broker" toml:"broker"`
	Controller      FederateSettings `yaml:"controller" toml:"controller"`
	Building        FederateSettings `yaml:"building" toml:"building"`
	Sensors         []Sensor         `yaml:"sensors" toml:"sensors"`
	Actuators       []Actuator       `yaml:"actuators" toml:"actuators"`
	Fixed           []float64        `yaml:"fixed_setpoints" toml:"fixed_setpoints"`
	DemandLimitW    float64          `yaml:"demand_limit_w" toml:"demand_limit_w"`
	Surrogate       SurrogateConfig  `yaml:"surrogate" toml:"surrogate"`
}

type BrokerConfig struct {
	Addr        string `yaml:"addr" toml:"addr"`
	Federates   int    `yaml:"federates" toml:"federates"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
}

type FederateSettings struct {
	Name     string           `yaml:"name" toml:"name"`
	CoreInit string           `yaml:"core_init" toml:"core_init"`
	Flags    federation.Flags `yaml:"flags" toml:"flags"`
}

// Sensor is a building output variable published by the building federate.
type Sensor struct {
	VariableKey  string `yaml:"variable_key" toml:"variable_key"`
	VariableName string `yaml:"variable_name" toml:"variable_name"`
	VariableUnit string `yaml:"variable_unit" toml:"variable_unit"`
}

func (s Sensor) Key() string { return s.VariableKey + "/" + s.VariableName }

// Actuator is a building input driven by the controller federate.
type Actuator struct {
	ComponentType string `yaml:"component_type" toml:"component_type"`
	ControlType   string `yaml:"control_type" toml:"control_type"`
	ActuatorKey   string `yaml:"actuator_key" toml:"actuator_key"`
	ActuatorUnit  string `yaml:"actuator_unit" toml:"actuator_unit"`
}

func (a Actuator) Key() string {
	return a.ComponentType + "/" + a.ControlType + "/" + a.ActuatorKey
}

// SurrogateConfig parameterizes the linear stand-in building model.
type SurrogateConfig struct {
	BaseLoadW     float64 `yaml:"base_load_w" toml:"base_load_w"`
	ITPeakW       float64 `yaml:"it_peak_w" toml:"it_peak_w"`
	ChillerCOP    float64 `yaml:"chiller_cop" toml:"chiller_cop"`
	ApproachGainW float64 `yaml:"approach_gain_w" toml:"approach_gain_w"`
	PumpPeakW     float64 `yaml:"pump_peak_w" toml:"pump_peak_w"`
	OutdoorMeanC  float64 `yaml:"outdoor_mean_c" toml:"outdoor_mean_c"`
	OutdoorSwingC float64 `yaml:"outdoor_swing_c" toml:"outdoor_swing_c"`
}

var DefaultSensors = []Sensor{
	{VariableKey: "Whole Building", VariableName: "Facility Total Building Electricity Demand Rate", VariableUnit: "W"},
	{VariableKey: "Whole Building", VariableName: "Facility Total HVAC Electricity Demand Rate", VariableUnit: "W"},
	{VariableKey: "Environment", VariableName: "Site Outdoor Air Drybulb Temperature", VariableUnit: "C"},
}

// DefaultActuators are listed in setpoint order: liquid load, supply
// approach, CPU schedule, liquid flow fraction.
var DefaultActuators = []Actuator{
	{ComponentType: "Schedule:Compact", ControlType: "Schedule Value", ActuatorKey: "Liquid Cooling Load Schedule", ActuatorUnit: "W"},
	{ComponentType: "Schedule:Compact", ControlType: "Schedule Value", ActuatorKey: "Supply Approach Temperature Schedule", ActuatorUnit: "C"},
	{ComponentType: "Schedule:Compact", ControlType: "Schedule Value", ActuatorKey: "CPU Loading Schedule", ActuatorUnit: "1"},
	{ComponentType: "Schedule:Compact", ControlType: "Schedule Value", ActuatorKey: "Liquid Load Flow Fraction Schedule", ActuatorUnit: "1"},
}

func DefaultConfig() *Config {
	sensors := make([]Sensor, len(DefaultSensors))
	copy(sensors, DefaultSensors)
	actuators := make([]Actuator, len(DefaultActuators))
	copy(actuators, DefaultActuators)

	return &Config{
		Name:            "energyplus-cosim",
		ControlOption:   DefaultControlOption,
		TimestepSeconds: DefaultTimestep,
		RunPeriodDays:   DefaultRunPeriodDays,
		LogLevel:        DefaultLogLevel,
		Broker: BrokerConfig{
			Addr:      DefaultBrokerAddr,
			Federates: 2,
		},
		Controller: FederateSettings{
			Name:     "Controller",
			CoreInit: "--federates=1",
			Flags: federation.Flags{
				Uninterruptible:  true,
				TerminateOnError: true,
			},
		},
		Building: FederateSettings{
			Name:     "EnergyPlus",
			CoreInit: "--federates=1",
			Flags: federation.Flags{
				Uninterruptible:          true,
				TerminateOnError:         true,
				WaitForCurrentTimeUpdate: true,
			},
		},
		Sensors:      sensors,
		Actuators:    actuators,
		Fixed:        []float64{0, 2, 1, 0},
		DemandLimitW: 1.5e6,
		Surrogate: SurrogateConfig{
			BaseLoadW:     150000,
			ITPeakW:       1000000,
			ChillerCOP:    5.0,
			ApproachGainW: 4000,
			PumpPeakW:     25000,
			OutdoorMeanC:  27,
			OutdoorSwingC: 6,
		},
	}
}

// TotalSeconds is the simulated run period length.
func (c *Config) TotalSeconds() float64 {
	return float64(c.RunPeriodDays) * 24 * 3600
}

func (c *Config) ControllerInfo() federation.FederateInfo {
	return c.federateInfo(c.Controller)
}

func (c *Config) BuildingInfo() federation.FederateInfo {
	return c.federateInfo(c.Building)
}

func (c *Config) federateInfo(s FederateSettings) federation.FederateInfo {
	return federation.FederateInfo{
		Name:     s.Name,
		CoreType: federation.DefaultCoreType,
		CoreInit: s.CoreInit,
		Period:   c.TimestepSeconds,
		LogLevel: c.LogLevel,
		Flags:    s.Flags,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ControlOption) == "" {
		return fmt.Errorf("config missing control_option")
	}
	if c.TimestepSeconds <= 0 {
		return fmt.Errorf("timestep_seconds must be positive, got %v", c.TimestepSeconds)
	}
	if c.RunPeriodDays <= 0 {
		return fmt.Errorf("run_period_days must be positive, got %d", c.RunPeriodDays)
	}
	if c.Broker.Federates < 1 {
		return fmt.Errorf("broker federates must be at least 1, got %d", c.Broker.Federates)
	}
	if strings.TrimSpace(c.Controller.Name) == "" || strings.TrimSpace(c.Building.Name) == "" {
		return fmt.Errorf("config missing federate name")
	}
	if c.Controller.Name == c.Building.Name {
		return fmt.Errorf("controller and building federates share the name %q", c.Controller.Name)
	}
	if len(c.Actuators) == 0 {
		return fmt.Errorf("config has no actuators")
	}
	// Policies emit one setpoint per actuator in table order.
	if len(c.Actuators) != control.NumActuators {
		return fmt.Errorf("config has %d actuators, control policies drive %d", len(c.Actuators), control.NumActuators)
	}
	seen := make(map[string]bool)
	for i, a := range c.Actuators {
		if a.ActuatorKey == "" {
			return fmt.Errorf("actuator[%d] missing actuator_key", i)
		}
		if seen[a.Key()] {
			return fmt.Errorf("actuator[%d] duplicate key %q", i, a.Key())
		}
		seen[a.Key()] = true
	}
	for i, s := range c.Sensors {
		if s.VariableName == "" {
			return fmt.Errorf("sensor[%d] missing variable_name", i)
		}
		if seen[s.Key()] {
			return fmt.Errorf("sensor[%d] duplicate key %q", i, s.Key())
		}
		seen[s.Key()] = true
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a YAML or TOML config (by extension) over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
