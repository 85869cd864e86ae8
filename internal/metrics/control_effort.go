package metrics

import (
	"math"

	"github.com/san-kum/cosim/internal/control"
)

// ControlEffort is the mean absolute setpoint change per step.
type ControlEffort struct {
	name    string
	prev    control.Setpoints
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(t float64, u control.Setpoints, sensors map[string]float64) {
	if c.prev != nil {
		for i := 0; i < len(u) && i < len(c.prev); i++ {
			c.sum += math.Abs(u[i] - c.prev[i])
		}
	}
	c.prev = u.Clone()
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples < 2 {
		return 0
	}
	return c.sum / float64(c.samples-1)
}

func (c *ControlEffort) Reset() {
	c.prev = nil
	c.sum = 0
	c.samples = 0
}
