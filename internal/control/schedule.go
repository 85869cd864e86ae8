package control

// DayPart applies Load until the given hour of day.
type DayPart struct {
	UntilHour float64
	Load      float64
}

var defaultDayParts = []DayPart{
	{UntilHour: 6, Load: -200000},
	{UntilHour: 12, Load: -400000},
	{UntilHour: 18, Load: -800000},
	{UntilHour: 24, Load: -1200000},
}

// LiquidCooling drives the liquid cooling load from a 24/7 day-part
// schedule. The supply approach stays at 2 C, the CPU schedule at 1 and the
// liquid flow fraction at 1.
type LiquidCooling struct {
	Parts []DayPart
}

func NewLiquidCooling() *LiquidCooling {
	parts := make([]DayPart, len(defaultDayParts))
	copy(parts, defaultDayParts)
	return &LiquidCooling{Parts: parts}
}

func (l *LiquidCooling) Name() string { return OptionLiquidCooling }

func (l *LiquidCooling) Compute(t float64) Setpoints {
	h := HourOfDay(t)
	load := 0.0
	for _, p := range l.Parts {
		if h < p.UntilHour {
			load = p.Load
			break
		}
	}
	return Setpoints{load, 2.0, 1.0, 1.0}
}

// SupplyApproachRamp raises the supply approach temperature linearly from
// Base at Rate degrees per second. Liquid cooling is off.
type SupplyApproachRamp struct {
	Base float64
	Rate float64
}

func NewSupplyApproachRamp() *SupplyApproachRamp {
	return &SupplyApproachRamp{Base: 2.0, Rate: 1.0 / 500000}
}

func (s *SupplyApproachRamp) Name() string { return OptionSupplyDeltaT }

func (s *SupplyApproachRamp) Compute(t float64) Setpoints {
	return Setpoints{0, s.Base + t*s.Rate, 1.0, 0}
}

// ITLoadRamp lowers the CPU load fraction from 1 at t=0 to 0 at Total.
// Liquid cooling is off.
type ITLoadRamp struct {
	Total float64
}

func NewITLoadRamp(total float64) *ITLoadRamp {
	return &ITLoadRamp{Total: total}
}

func (r *ITLoadRamp) Name() string { return OptionITLoad }

func (r *ITLoadRamp) Compute(t float64) Setpoints {
	frac := 1.0
	if r.Total > 0 {
		frac = 1 - t/r.Total
	}
	return Setpoints{0, 2, frac, 0}
}

// Fixed publishes the same setpoints every step.
type Fixed struct {
	Values Setpoints
}

func NewFixed(values Setpoints) *Fixed {
	v := make(Setpoints, NumActuators)
	copy(v, values)
	return &Fixed{Values: v}
}

func (f *Fixed) Name() string { return OptionFixed }

func (f *Fixed) Compute(t float64) Setpoints {
	return f.Values.Clone()
}

// SetControl replaces the fixed values. Vectors of the wrong length are ignored.
func (f *Fixed) SetControl(values []float64) {
	if len(values) != NumActuators {
		return
	}
	copy(f.Values, values)
}
