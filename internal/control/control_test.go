package control

import (
	"math"
	"testing"
)

func TestHourOfDay(t *testing.T) {
	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{3600, 1},
		{5.5 * 3600, 5.5},
		{SecondsPerDay, 0},
		{SecondsPerDay + 18*3600, 18},
	}
	for _, tt := range tests {
		if got := HourOfDay(tt.t); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("HourOfDay(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestLiquidCoolingSchedule(t *testing.T) {
	p := NewLiquidCooling()
	tests := []struct {
		name string
		t    float64
		load float64
	}{
		{"midnight", 0, -200000},
		{"just before six", 6*3600 - 1, -200000},
		{"six", 6 * 3600, -400000},
		{"noon", 12 * 3600, -800000},
		{"evening", 20 * 3600, -1200000},
		{"second day early", SecondsPerDay + 600, -200000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := p.Compute(tt.t)
			if len(sp) != NumActuators {
				t.Fatalf("expected %d setpoints, got %d", NumActuators, len(sp))
			}
			if sp[LiquidLoad] != tt.load {
				t.Errorf("liquid load = %v, want %v", sp[LiquidLoad], tt.load)
			}
			if sp[SupplyApproach] != 2.0 || sp[CPULoad] != 1.0 || sp[FlowFraction] != 1.0 {
				t.Errorf("unexpected constant setpoints: %v", sp)
			}
		})
	}
}

func TestSupplyApproachRamp(t *testing.T) {
	p := NewSupplyApproachRamp()
	if got := p.Compute(0)[SupplyApproach]; got != 2.0 {
		t.Errorf("approach at t=0 = %v, want 2", got)
	}
	sp := p.Compute(1000000)
	if math.Abs(sp[SupplyApproach]-4.0) > 1e-9 {
		t.Errorf("approach at t=1e6 = %v, want 4", sp[SupplyApproach])
	}
	if sp[LiquidLoad] != 0 || sp[FlowFraction] != 0 || sp[CPULoad] != 1.0 {
		t.Errorf("unexpected setpoints: %v", sp)
	}
}

func TestITLoadRamp(t *testing.T) {
	total := 62.0 * SecondsPerDay
	p := NewITLoadRamp(total)
	if got := p.Compute(0)[CPULoad]; got != 1.0 {
		t.Errorf("cpu load at start = %v, want 1", got)
	}
	if got := p.Compute(total / 2)[CPULoad]; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("cpu load at half = %v, want 0.5", got)
	}
	if got := p.Compute(total)[CPULoad]; math.Abs(got) > 1e-9 {
		t.Errorf("cpu load at end = %v, want 0", got)
	}
	if got := NewITLoadRamp(0).Compute(100)[CPULoad]; got != 1.0 {
		t.Errorf("zero total should hold full load, got %v", got)
	}
}

func TestFixed(t *testing.T) {
	p := NewFixed(Setpoints{-1000, 3})
	sp := p.Compute(0)
	if len(sp) != NumActuators || sp[LiquidLoad] != -1000 || sp[SupplyApproach] != 3 || sp[CPULoad] != 0 {
		t.Fatalf("unexpected fixed setpoints: %v", sp)
	}
	sp[0] = 99
	if p.Compute(0)[0] == 99 {
		t.Error("Compute should return an independent copy")
	}

	p.SetControl([]float64{1, 2})
	if p.Compute(0)[0] != -1000 {
		t.Error("wrong-length control vector should be ignored")
	}
	p.SetControl([]float64{1, 2, 3, 4})
	if p.Compute(0)[3] != 4 {
		t.Error("SetControl did not apply")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{OptionLiquidCooling, OptionSupplyDeltaT, OptionITLoad, OptionFixed} {
		p, err := r.Get(name, Params{TotalSeconds: 86400})
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("policy name = %s, want %s", p.Name(), name)
		}
	}
	if _, err := r.Get("pid", Params{}); err == nil {
		t.Error("expected error for unknown option")
	}
	if got := len(r.List()); got != 4 {
		t.Errorf("expected 4 options, got %d", got)
	}
}

func TestSetpointsIsValid(t *testing.T) {
	if !(Setpoints{1, 2}).IsValid() {
		t.Error("finite setpoints reported invalid")
	}
	if (Setpoints{1, math.NaN()}).IsValid() {
		t.Error("NaN setpoint reported valid")
	}
}
