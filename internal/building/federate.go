package building

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/federation"
	"github.com/san-kum/cosim/internal/logging"
)

// Results holds the facility demand recorded at each granted time.
type Results struct {
	Time   []float64
	Energy []float64
}

// Federate is the building side of the co-simulation. It publishes sensors
// and subscribes to the controller's actuator publications.
type Federate struct {
	fed       *federation.Federate
	model     Model
	sensors   []*federation.Publication
	actuators []*federation.Input
	demandKey string

	Results Results
	log     *logrus.Entry
}

func New(ctx context.Context, core federation.Core, cfg *config.Config, model Model) (*Federate, error) {
	if model == nil {
		return nil, fmt.Errorf("building federate needs a model")
	}
	fed, err := federation.NewValueFederate(ctx, core, cfg.BuildingInfo())
	if err != nil {
		return nil, err
	}
	b := &Federate{
		fed:       fed,
		model:     model,
		demandKey: config.FacilityDemandKey,
		log:       logging.ForFederate(fed.Name()),
	}
	for _, s := range cfg.Sensors {
		p, err := fed.RegisterGlobalPublication(ctx, s.Key(), "double", s.VariableUnit)
		if err != nil {
			fed.Abandon(ctx)
			return nil, err
		}
		b.sensors = append(b.sensors, p)
	}
	for _, a := range cfg.Actuators {
		in, err := fed.RegisterSubscription(ctx, a.Key(), a.ActuatorUnit)
		if err != nil {
			fed.Abandon(ctx)
			return nil, err
		}
		b.actuators = append(b.actuators, in)
	}
	return b, nil
}

func (b *Federate) Federate() *federation.Federate { return b.fed }

// UpdateActuators reads every actuator input. Inputs without a new value
// since the last read are set to 0.
func (b *Federate) UpdateActuators() map[string]float64 {
	values := make(map[string]float64, len(b.actuators))
	for _, in := range b.actuators {
		if in.IsUpdated() {
			values[in.Target()] = in.GetDouble()
			continue
		}
		b.log.Debugf("Actuator %s not updated at t=%.1f, setting to 0", in.Target(), b.fed.CurrentTime())
		values[in.Target()] = 0
	}
	return values
}

// UpdateSensors publishes every sensor present in values and records the
// facility demand at t.
func (b *Federate) UpdateSensors(ctx context.Context, t float64, values map[string]float64) error {
	for _, p := range b.sensors {
		v, ok := values[p.Key()]
		if !ok {
			b.log.Tracef("No value for sensor %s", p.Key())
			continue
		}
		if err := p.PublishDouble(ctx, v); err != nil {
			return err
		}
	}
	if v, ok := values[b.demandKey]; ok {
		b.Results.Time = append(b.Results.Time, t)
		b.Results.Energy = append(b.Results.Energy, v)
	}
	return nil
}

// Run steps the model at every granted time until total seconds. The
// federate is finalized on success and reported as failed otherwise.
func (b *Federate) Run(ctx context.Context, total float64) (err error) {
	defer func() {
		if err != nil {
			b.fed.Fail(context.WithoutCancel(ctx), err)
		} else if ferr := b.fed.Finalize(context.WithoutCancel(ctx)); ferr != nil {
			err = ferr
		}
	}()

	if err := b.fed.EnterExecutingMode(ctx); err != nil {
		return err
	}

	granted := b.fed.CurrentTime()
	for i := 0; granted < total; i++ {
		requested := granted + b.fed.Period()
		granted, err = b.fed.RequestTime(ctx, requested)
		if err != nil {
			return &federation.StepError{Time: requested, Step: i, Err: err}
		}

		sensors, err := b.model.Step(granted, b.UpdateActuators())
		if err != nil {
			return &federation.StepError{Time: granted, Step: i, Err: err}
		}
		if err := b.UpdateSensors(ctx, granted, sensors); err != nil {
			return &federation.StepError{Time: granted, Step: i, Err: err}
		}
	}

	b.log.Infof("Building finished after %d steps at t=%.1f", len(b.Results.Time), granted)
	return nil
}
