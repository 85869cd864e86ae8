package building

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
)

// Model advances the building by one step given the actuator values keyed by
// actuator key, and returns sensor values keyed by sensor key.
type Model interface {
	Step(t float64, actuators map[string]float64) (map[string]float64, error)
}

const (
	HVACDemandKey  = "Whole Building/Facility Total HVAC Electricity Demand Rate"
	OutdoorTempKey = "Environment/Site Outdoor Air Drybulb Temperature"
)

// Surrogate is a linear stand-in for a building energy simulator. IT load
// follows the CPU schedule, liquid cooling removes heat at a better COP than
// air cooling, and a warmer supply approach improves the chiller COP.
type Surrogate struct {
	params config.SurrogateConfig
	keys   [control.NumActuators]string
}

// NewSurrogate maps actuators by position: liquid load, supply approach, CPU
// schedule, flow fraction.
func NewSurrogate(params config.SurrogateConfig, actuators []config.Actuator) (*Surrogate, error) {
	if len(actuators) < control.NumActuators {
		return nil, fmt.Errorf("surrogate needs %d actuators, got %d", control.NumActuators, len(actuators))
	}
	if params.ChillerCOP <= 0 {
		return nil, fmt.Errorf("chiller COP must be positive, got %v", params.ChillerCOP)
	}
	s := &Surrogate{params: params}
	for i := range s.keys {
		s.keys[i] = actuators[i].Key()
	}
	return s, nil
}

// OutdoorTemp is a daily sinusoid peaking at 15:00.
func (s *Surrogate) OutdoorTemp(t float64) float64 {
	h := control.HourOfDay(t)
	return s.params.OutdoorMeanC + s.params.OutdoorSwingC*math.Cos(2*math.Pi*(h-15)/24)
}

func (s *Surrogate) Step(t float64, actuators map[string]float64) (map[string]float64, error) {
	p := s.params
	liquid := math.Abs(actuators[s.keys[control.LiquidLoad]])
	approach := actuators[s.keys[control.SupplyApproach]]
	cpu := clamp(actuators[s.keys[control.CPULoad]], 0, 1)
	flow := clamp(actuators[s.keys[control.FlowFraction]], 0, 1)

	outdoor := s.OutdoorTemp(t)
	it := p.ITPeakW * cpu
	heat := it + 0.3*p.BaseLoadW
	liquid = math.Min(liquid*flow, heat)
	air := heat - liquid

	cop := clamp(p.ChillerCOP*(1+0.05*(approach-2)), 1, 3*p.ChillerCOP)
	hvac := air/cop + liquid/(3*cop) + p.PumpPeakW*flow + p.ApproachGainW*math.Max(0, outdoor-18)

	total := p.BaseLoadW + it + hvac
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("surrogate diverged at t=%.1f", t)
	}

	return map[string]float64{
		config.FacilityDemandKey: total,
		HVACDemandKey:            hvac,
		OutdoorTempKey:           outdoor,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
