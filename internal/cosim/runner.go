package cosim

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/federation"
	"github.com/san-kum/cosim/internal/logging"
)

const valueType = "double"

// Runner drives the controller federate: each granted step it evaluates the
// policy, publishes one value per actuator and pulls arrived sensor values.
type Runner struct {
	fed       *federation.Federate
	policy    control.Policy
	pubs      []*federation.Publication
	inputs    []*federation.Input
	metrics   []Metric
	observers []Observer
	log       *logrus.Entry
}

// NewRunner registers the controller federate on core with one global
// publication per actuator and one subscription per sensor.
func NewRunner(ctx context.Context, core federation.Core, cfg *config.Config, policy control.Policy) (*Runner, error) {
	if policy == nil {
		return nil, fmt.Errorf("controller needs a policy")
	}
	fed, err := federation.NewValueFederate(ctx, core, cfg.ControllerInfo())
	if err != nil {
		return nil, err
	}
	r := &Runner{
		fed:       fed,
		policy:    policy,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		log:       logging.ForFederate(fed.Name()),
	}
	for _, a := range cfg.Actuators {
		p, err := fed.RegisterGlobalPublication(ctx, a.Key(), valueType, a.ActuatorUnit)
		if err != nil {
			fed.Abandon(ctx)
			return nil, err
		}
		r.pubs = append(r.pubs, p)
	}
	for _, s := range cfg.Sensors {
		in, err := fed.RegisterSubscription(ctx, s.Key(), s.VariableUnit)
		if err != nil {
			fed.Abandon(ctx)
			return nil, err
		}
		r.inputs = append(r.inputs, in)
	}
	return r, nil
}

func (r *Runner) AddMetric(m Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Federate() *federation.Federate { return r.fed }

// Run executes the time loop until the granted time reaches total seconds.
// The federate is finalized on success and reported as failed otherwise.
func (r *Runner) Run(ctx context.Context, name string, total float64) (res *Result, err error) {
	if total <= 0 {
		return nil, fmt.Errorf("run period must be positive, got %v", total)
	}
	if r.fed.Period() <= 0 {
		return nil, fmt.Errorf("federate period must be positive, got %v", r.fed.Period())
	}

	keys := make([]string, len(r.inputs))
	for i, in := range r.inputs {
		keys[i] = in.Target()
	}
	res = newResult(name, r.policy.Name(), keys, int(total/r.fed.Period()))

	defer func() {
		if err != nil {
			r.fed.Fail(context.WithoutCancel(ctx), err)
		} else if ferr := r.fed.Finalize(context.WithoutCancel(ctx)); ferr != nil {
			err = ferr
		}
		for _, m := range r.metrics {
			res.Metrics[m.Name()] = m.Value()
		}
	}()

	for _, m := range r.metrics {
		m.Reset()
	}

	if err := r.fed.EnterExecutingMode(ctx); err != nil {
		return res, err
	}

	sensors := make(map[string]float64, len(keys))
	for _, k := range keys {
		sensors[k] = math.NaN()
	}

	granted := r.fed.CurrentTime()
	for i := 0; granted < total; i++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		requested := granted + r.fed.Period()
		granted, err = r.fed.RequestTime(ctx, requested)
		if err != nil {
			return res, &federation.StepError{Time: requested, Step: i, Err: err}
		}
		r.log.Debugf("Requested time %.1f, granted time %.1f", requested, granted)

		sp := r.policy.Compute(granted)
		if !sp.IsValid() {
			return res, &federation.StepError{Time: granted, Step: i, Err: fmt.Errorf("invalid setpoints %v", sp)}
		}
		if len(sp) != len(r.pubs) {
			return res, &federation.StepError{Time: granted, Step: i,
				Err: fmt.Errorf("policy %s produced %d setpoints for %d actuators", r.policy.Name(), len(sp), len(r.pubs))}
		}
		for j, p := range r.pubs {
			if err := p.PublishDouble(ctx, sp[j]); err != nil {
				return res, &federation.StepError{Time: granted, Step: i, Err: err}
			}
		}

		for _, in := range r.inputs {
			if in.IsUpdated() {
				sensors[in.Target()] = in.GetDouble()
			}
		}

		step := Step{
			Index:     i,
			Requested: requested,
			Granted:   granted,
			Setpoints: sp,
			Sensors:   maps.Clone(sensors),
		}
		for _, m := range r.metrics {
			m.Observe(granted, sp, sensors)
		}
		for _, obs := range r.observers {
			obs.OnStep(step)
		}
		res.record(step)
	}

	r.log.Infof("Controller finished after %d steps at t=%.1f", res.StepsTaken, granted)
	return res, nil
}
