package cosim

import (
	"github.com/san-kum/cosim/internal/control"
)

type Metric interface {
	Name() string
	Observe(t float64, u control.Setpoints, sensors map[string]float64)
	Value() float64
	Reset()
}

// Step is one granted time step of the controller loop.
type Step struct {
	Index     int
	Requested float64
	Granted   float64
	Setpoints control.Setpoints
	Sensors   map[string]float64
}

type Observer interface {
	OnStep(s Step)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Step)

func (f ObserverFunc) OnStep(s Step) { f(s) }

type Result struct {
	Name          string
	ControlOption string
	// SensorKeys fixes the column order of Sensors.
	SensorKeys []string
	Times      []float64
	Requested  []float64
	Setpoints  []control.Setpoints
	Sensors    map[string][]float64
	Metrics    map[string]float64
	StepsTaken int
}

func newResult(name, option string, sensorKeys []string, capacity int) *Result {
	r := &Result{
		Name:          name,
		ControlOption: option,
		SensorKeys:    sensorKeys,
		Times:         make([]float64, 0, capacity),
		Requested:     make([]float64, 0, capacity),
		Setpoints:     make([]control.Setpoints, 0, capacity),
		Sensors:       make(map[string][]float64, len(sensorKeys)),
		Metrics:       make(map[string]float64),
	}
	for _, k := range sensorKeys {
		r.Sensors[k] = make([]float64, 0, capacity)
	}
	return r
}

func (r *Result) record(s Step) {
	r.Times = append(r.Times, s.Granted)
	r.Requested = append(r.Requested, s.Requested)
	r.Setpoints = append(r.Setpoints, s.Setpoints.Clone())
	for _, k := range r.SensorKeys {
		r.Sensors[k] = append(r.Sensors[k], s.Sensors[k])
	}
	r.StepsTaken++
}

// Series returns one setpoint column across all steps.
func (r *Result) Series(actuator int) []float64 {
	out := make([]float64, 0, len(r.Setpoints))
	for _, sp := range r.Setpoints {
		if actuator < len(sp) {
			out = append(out, sp[actuator])
		}
	}
	return out
}
