package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/control"
)

// DemandLimit is the fraction of observed steps where a sensor stayed at or
// below a threshold.
type DemandLimit struct {
	name       string
	key        string
	threshold  float64
	violations int
	samples    int
}

func NewDemandLimit(key string, threshold float64) *DemandLimit {
	return &DemandLimit{
		name:      "demand_limit",
		key:       key,
		threshold: threshold,
	}
}

func (d *DemandLimit) Name() string {
	return d.name
}

func (d *DemandLimit) Observe(t float64, u control.Setpoints, sensors map[string]float64) {
	v, ok := sensors[d.key]
	if !ok || math.IsNaN(v) {
		return
	}
	d.samples++
	if v > d.threshold {
		d.violations++
	}
}

func (d *DemandLimit) Value() float64 {
	if d.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(d.violations)/float64(d.samples)
}

func (d *DemandLimit) Reset() {
	d.violations = 0
	d.samples = 0
}
