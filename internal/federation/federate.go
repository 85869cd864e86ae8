package federation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cosim/internal/logging"
)

type Federate struct {
	core    Core
	id      FederateID
	info    FederateInfo
	mode    Mode
	current Time

	pubs     []*Publication
	pubKeys  map[string]*Publication
	inputs   []*Input
	inHandle map[Handle]*Input
	inTarget map[string]*Input

	log *logrus.Entry
}

type Publication struct {
	fed    *Federate
	handle Handle
	spec   PublicationSpec
	last   float64
}

type Input struct {
	handle     Handle
	spec       SubscriptionSpec
	value      float64
	updated    bool
	lastUpdate Time
}

// NewValueFederate registers a federate with the core. The federate starts
// in ModeCreated at time 0.
func NewValueFederate(ctx context.Context, core Core, info FederateInfo) (*Federate, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	id, err := core.Register(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("register federate %q: %w", info.Name, err)
	}
	f := &Federate{
		core:     core,
		id:       id,
		info:     info,
		mode:     ModeCreated,
		pubKeys:  make(map[string]*Publication),
		inHandle: make(map[Handle]*Input),
		inTarget: make(map[string]*Input),
		log:      logging.ForFederate(info.Name),
	}
	f.log.Infof("Created federate %s", info.Name)
	return f, nil
}

// NewValueFederateFromConfig loads a federate config file, registers the
// federate and every interface listed in the file.
func NewValueFederateFromConfig(ctx context.Context, core Core, path string) (*Federate, error) {
	cfg, err := LoadFederateConfig(path)
	if err != nil {
		return nil, err
	}
	f, err := NewValueFederate(ctx, core, cfg.FederateInfo)
	if err != nil {
		return nil, err
	}
	if err := f.registerInterfaces(ctx, cfg); err != nil {
		f.Abandon(ctx)
		return nil, err
	}
	return f, nil
}

func (f *Federate) registerInterfaces(ctx context.Context, cfg *FederateConfig) error {
	for _, p := range cfg.Publications {
		if _, err := f.RegisterGlobalPublication(ctx, p.Key, p.Type, p.Units); err != nil {
			return err
		}
	}
	for _, s := range cfg.Subscriptions {
		if _, err := f.RegisterSubscription(ctx, s.Target, s.Units); err != nil {
			return err
		}
	}
	return nil
}

func (f *Federate) Name() string          { return f.info.Name }
func (f *Federate) ID() FederateID        { return f.id }
func (f *Federate) Info() FederateInfo    { return f.info }
func (f *Federate) Period() Time          { return f.info.Period }
func (f *Federate) Mode() Mode            { return f.mode }
func (f *Federate) CurrentTime() Time     { return f.current }
func (f *Federate) PublicationCount() int { return len(f.pubs) }
func (f *Federate) InputCount() int       { return len(f.inputs) }

func (f *Federate) Publications() []*Publication { return f.pubs }
func (f *Federate) Inputs() []*Input             { return f.inputs }

// Publication returns the publication registered under key.
func (f *Federate) Publication(key string) (*Publication, bool) {
	p, ok := f.pubKeys[key]
	return p, ok
}

// Input returns the input subscribed to target.
func (f *Federate) Input(target string) (*Input, bool) {
	in, ok := f.inTarget[target]
	return in, ok
}

// RegisterGlobalPublication registers a publication whose key is visible to
// the whole federation.
func (f *Federate) RegisterGlobalPublication(ctx context.Context, key, typ, units string) (*Publication, error) {
	if f.mode != ModeCreated {
		return nil, fmt.Errorf("register publication %q in %s mode: %w", key, f.mode, ErrWrongMode)
	}
	if _, ok := f.pubKeys[key]; ok {
		return nil, fmt.Errorf("publication %q: %w", key, ErrDuplicateInterface)
	}
	spec := PublicationSpec{Key: key, Type: typ, Units: units, Global: true}
	h, err := f.core.RegisterPublication(ctx, f.id, spec)
	if err != nil {
		return nil, fmt.Errorf("register publication %q: %w", key, err)
	}
	p := &Publication{fed: f, handle: h, spec: spec}
	f.pubs = append(f.pubs, p)
	f.pubKeys[key] = p
	f.log.Debugf("\tRegistered publication---> %s", key)
	return p, nil
}

// RegisterSubscription registers an input bound to the publication target.
func (f *Federate) RegisterSubscription(ctx context.Context, target, units string) (*Input, error) {
	if f.mode != ModeCreated {
		return nil, fmt.Errorf("register subscription %q in %s mode: %w", target, f.mode, ErrWrongMode)
	}
	if _, ok := f.inTarget[target]; ok {
		return nil, fmt.Errorf("subscription %q: %w", target, ErrDuplicateInterface)
	}
	spec := SubscriptionSpec{Target: target, Units: units}
	h, err := f.core.RegisterSubscription(ctx, f.id, spec)
	if err != nil {
		return nil, fmt.Errorf("register subscription %q: %w", target, err)
	}
	in := &Input{handle: h, spec: spec}
	f.inputs = append(f.inputs, in)
	f.inHandle[h] = in
	f.inTarget[target] = in
	f.log.Debugf("\tRegistered subscription---> %s", target)
	return in, nil
}

// EnterExecutingMode blocks until the core releases the federation into
// execution.
func (f *Federate) EnterExecutingMode(ctx context.Context) error {
	if f.mode != ModeCreated {
		return fmt.Errorf("enter executing mode from %s: %w", f.mode, ErrWrongMode)
	}
	f.log.Debugf("\tNumber of subscriptions: %d", len(f.inputs))
	f.log.Debugf("\tNumber of publications: %d", len(f.pubs))
	if err := f.core.EnterExecutingMode(ctx, f.id); err != nil {
		return fmt.Errorf("enter executing mode: %w", err)
	}
	f.mode = ModeExecuting
	f.log.Info("Entered execution mode")
	return nil
}

// RequestTime blocks until the core grants a time and returns it. Requests
// below the current time are clamped to it; the granted time never moves
// backwards.
func (f *Federate) RequestTime(ctx context.Context, t Time) (Time, error) {
	if f.mode != ModeExecuting {
		return f.current, fmt.Errorf("request time in %s mode: %w", f.mode, ErrWrongMode)
	}
	if t < f.current {
		t = f.current
	}
	g, err := f.core.RequestTime(ctx, f.id, t)
	if err != nil {
		return f.current, fmt.Errorf("request time %.1f: %w", t, err)
	}
	if g.Time < f.current {
		g.Time = f.current
	}
	for _, u := range g.Updates {
		in, ok := f.inHandle[u.Input]
		if !ok {
			f.log.Warnf("update for unknown input %d (%s)", u.Input, u.Target)
			continue
		}
		in.value = u.Value
		in.updated = true
		in.lastUpdate = u.Time
	}
	f.current = g.Time
	f.log.Tracef("Requested time %.1f, granted time %.1f", t, g.Time)
	return g.Time, nil
}

// RequestNextStep requests current time plus the federate period.
func (f *Federate) RequestNextStep(ctx context.Context) (Time, error) {
	return f.RequestTime(ctx, f.current+f.info.Period)
}

// Finalize leaves the federation. Calling it more than once is a no-op.
func (f *Federate) Finalize(ctx context.Context) error {
	if f.mode == ModeFinalized {
		return nil
	}
	f.mode = ModeFinalized
	if err := f.core.Finalize(ctx, f.id); err != nil {
		return fmt.Errorf("finalize federate %q: %w", f.info.Name, err)
	}
	f.log.Info("Federate finalized")
	return nil
}

// Abandon finalizes a federate whose setup failed so the core stops counting
// it. It ignores the caller's cancellation.
func (f *Federate) Abandon(ctx context.Context) {
	if err := f.Finalize(context.WithoutCancel(ctx)); err != nil {
		f.log.WithError(err).Warn("finalize after failed setup")
	}
}

// Fail leaves the federation after a local error. A core that implements
// Failer sees the cause, so TerminateOnError takes effect there; any other
// core is finalized normally.
func (f *Federate) Fail(ctx context.Context, cause error) error {
	if f.mode == ModeFinalized {
		return nil
	}
	fc, ok := f.core.(Failer)
	if !ok {
		return f.Finalize(ctx)
	}
	f.mode = ModeFinalized
	fc.Fail(f.id, cause)
	f.log.WithError(cause).Error("Federate failed")
	return nil
}

func (p *Publication) Key() string    { return p.spec.Key }
func (p *Publication) Units() string  { return p.spec.Units }
func (p *Publication) Handle() Handle { return p.handle }
func (p *Publication) Last() float64  { return p.last }

func (p *Publication) PublishDouble(ctx context.Context, v float64) error {
	if p.fed.mode != ModeExecuting {
		return fmt.Errorf("publish %q in %s mode: %w", p.spec.Key, p.fed.mode, ErrWrongMode)
	}
	if err := p.fed.core.Publish(ctx, p.fed.id, p.handle, v); err != nil {
		return fmt.Errorf("publish %q: %w", p.spec.Key, err)
	}
	p.last = v
	return nil
}

func (in *Input) Target() string       { return in.spec.Target }
func (in *Input) Units() string        { return in.spec.Units }
func (in *Input) Handle() Handle       { return in.handle }
func (in *Input) IsUpdated() bool      { return in.updated }
func (in *Input) LastUpdateTime() Time { return in.lastUpdate }

// GetDouble returns the latest value and clears the updated flag.
func (in *Input) GetDouble() float64 {
	in.updated = false
	return in.value
}
