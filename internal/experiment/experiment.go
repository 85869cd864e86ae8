package experiment

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cosim/internal/broker"
	"github.com/san-kum/cosim/internal/building"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/cosim"
)

type Options struct {
	// Registerer receives the broker collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Model      string
	Observers  []cosim.Observer
}

type Outcome struct {
	BrokerID   string
	Controller *cosim.Result
	Building   building.Results
}

// Experiment runs a broker, a building federate and a controller federate
// in one process.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
	}
}

func (e *Experiment) Registry() *Registry { return e.registry }

func (e *Experiment) Run(ctx context.Context, opts Options) (*Outcome, error) {
	if e.cfg == nil {
		return nil, fmt.Errorf("experiment has no config")
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := e.registry.Policy(e.cfg)
	if err != nil {
		return nil, err
	}
	model, err := e.registry.Model(opts.Model, e.cfg)
	if err != nil {
		return nil, err
	}

	b, err := broker.New(broker.Config{Federates: 2, Registerer: opts.Registerer})
	if err != nil {
		return nil, err
	}
	bld, err := building.New(ctx, b, e.cfg, model)
	if err != nil {
		return nil, err
	}
	ctrl, err := cosim.NewRunner(ctx, b, e.cfg, policy)
	if err != nil {
		return nil, err
	}
	for _, m := range e.registry.DefaultMetrics(e.cfg) {
		ctrl.AddMetric(m)
	}
	for _, o := range opts.Observers {
		ctrl.AddObserver(o)
	}

	out := &Outcome{BrokerID: b.ID()}
	total := e.cfg.TotalSeconds()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bld.Run(gctx, total)
	})
	g.Go(func() error {
		res, err := ctrl.Run(gctx, e.cfg.Name, total)
		out.Controller = res
		return err
	})

	if err := g.Wait(); err != nil {
		return out, err
	}
	out.Building = bld.Results
	return out, nil
}

// Scenario adapts the experiment for a cosim.Sweep. Scenarios in one sweep
// must not share a Registerer.
func (e *Experiment) Scenario(opts Options) cosim.Scenario {
	return func(ctx context.Context) (*cosim.Result, error) {
		out, err := e.Run(ctx, opts)
		if err != nil {
			return nil, err
		}
		return out.Controller, nil
	}
}
