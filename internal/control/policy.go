package control

import "math"

const SecondsPerDay = 24 * 3600

// Actuator indices into Setpoints.
const (
	LiquidLoad = iota
	SupplyApproach
	CPULoad
	FlowFraction

	NumActuators
)

type Setpoints []float64

func (s Setpoints) Clone() Setpoints {
	c := make(Setpoints, len(s))
	copy(c, s)
	return c
}

func (s Setpoints) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Policy interface {
	Name() string
	Compute(t float64) Setpoints
}

// HourOfDay returns the hour within the simulated day for t seconds.
func HourOfDay(t float64) float64 {
	return math.Mod(t, SecondsPerDay) / 3600.0
}
