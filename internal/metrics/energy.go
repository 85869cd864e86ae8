package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/control"
)

const joulesPerKWh = 3.6e6

// Energy integrates a power sensor (W) over granted time into kWh.
type Energy struct {
	name    string
	key     string
	lastT   float64
	lastP   float64
	total   float64
	samples int
}

func NewEnergy(key string) *Energy {
	return &Energy{
		name: "energy_kwh",
		key:  key,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(t float64, u control.Setpoints, sensors map[string]float64) {
	p, ok := sensors[e.key]
	if !ok || math.IsNaN(p) {
		return
	}
	if e.samples > 0 && t > e.lastT {
		e.total += 0.5 * (p + e.lastP) * (t - e.lastT)
	}
	e.lastT = t
	e.lastP = p
	e.samples++
}

func (e *Energy) Value() float64 {
	return e.total / joulesPerKWh
}

func (e *Energy) Reset() {
	e.lastT = 0
	e.lastP = 0
	e.total = 0
	e.samples = 0
}

// PeakDemand is the largest value seen for a sensor. NaN samples, such as
// the first step before any value has arrived, are skipped.
type PeakDemand struct {
	name    string
	key     string
	peak    float64
	samples int
}

func NewPeakDemand(key string) *PeakDemand {
	return &PeakDemand{
		name: "peak_demand_w",
		key:  key,
	}
}

func (p *PeakDemand) Name() string { return p.name }

func (p *PeakDemand) Observe(t float64, u control.Setpoints, sensors map[string]float64) {
	v, ok := sensors[p.key]
	if !ok || math.IsNaN(v) {
		return
	}
	if p.samples == 0 || v > p.peak {
		p.peak = v
	}
	p.samples++
}

func (p *PeakDemand) Value() float64 { return p.peak }

func (p *PeakDemand) Reset() {
	p.peak = 0
	p.samples = 0
}

type MeanDemand struct {
	name    string
	key     string
	sum     float64
	samples int
}

func NewMeanDemand(key string) *MeanDemand {
	return &MeanDemand{
		name: "mean_demand_w",
		key:  key,
	}
}

func (m *MeanDemand) Name() string { return m.name }

func (m *MeanDemand) Observe(t float64, u control.Setpoints, sensors map[string]float64) {
	v, ok := sensors[m.key]
	if !ok || math.IsNaN(v) {
		return
	}
	m.sum += v
	m.samples++
}

func (m *MeanDemand) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanDemand) Reset() {
	m.sum = 0
	m.samples = 0
}
