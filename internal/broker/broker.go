package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	fed "github.com/san-kum/cosim/internal/federation"
)

type Config struct {
	// Federates is the number of federates that must enter executing mode
	// before any of them is released.
	Federates  int
	Registerer prometheus.Registerer
}

type Broker struct {
	mu       sync.Mutex
	id       string
	expected int
	nextID   fed.FederateID
	seq      uint64
	members  map[fed.FederateID]*member
	pubs     map[string]*publication
	entered  int
	released bool

	barrier  chan struct{}
	done     chan struct{}
	finished chan struct{}
	failure  error

	metrics *Metrics
	log     *logrus.Entry
}

type member struct {
	id      fed.FederateID
	info    fed.FederateInfo
	mode    fed.Mode
	entered bool

	granted   fed.Time
	pending   bool
	requested fed.Time
	waiter    chan fed.Grant

	pubs   []*publication
	inputs []*input
}

type publication struct {
	owner  *member
	handle fed.Handle
	spec   fed.PublicationSpec
	value  float64
	time   fed.Time
	seq    uint64
}

type input struct {
	handle    fed.Handle
	spec      fed.SubscriptionSpec
	source    *publication
	delivered uint64
}

// Status is a point-in-time view of one federate.
type Status struct {
	ID        fed.FederateID
	Name      string
	Mode      fed.Mode
	Granted   fed.Time
	Pending   bool
	Requested fed.Time
}

var (
	_ fed.Core   = (*Broker)(nil)
	_ fed.Failer = (*Broker)(nil)
)

func New(cfg Config) (*Broker, error) {
	if cfg.Federates < 1 {
		return nil, fmt.Errorf("broker: federates must be at least 1, got %d", cfg.Federates)
	}
	id := uuid.NewString()
	return &Broker{
		id:       id,
		expected: cfg.Federates,
		members:  make(map[fed.FederateID]*member),
		pubs:     make(map[string]*publication),
		barrier:  make(chan struct{}),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		metrics:  NewMetrics(cfg.Registerer),
		log:      logrus.WithFields(logrus.Fields{"component": "broker", "broker": id[:8]}),
	}, nil
}

// NewFromCoreInit builds a broker from a core init string such as "--federates=2".
func NewFromCoreInit(coreInit string, reg prometheus.Registerer) (*Broker, error) {
	ci, err := fed.ParseCoreInit(coreInit)
	if err != nil {
		return nil, err
	}
	return New(Config{Federates: ci.Federates, Registerer: reg})
}

func (b *Broker) ID() string { return b.id }

// Done is closed when the federation is terminated by a failing federate.
func (b *Broker) Done() <-chan struct{} { return b.done }

// Finished is closed once every federate has finalized.
func (b *Broker) Finished() <-chan struct{} { return b.finished }

// Err returns the error that terminated the federation, if any.
func (b *Broker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

// Wait blocks until the federation finishes, terminates, or ctx is done.
func (b *Broker) Wait(ctx context.Context) error {
	select {
	case <-b.finished:
		return nil
	case <-b.done:
		return b.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) Register(ctx context.Context, info fed.FederateInfo) (fed.FederateID, error) {
	if err := info.Validate(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAlive(); err != nil {
		return 0, err
	}
	if b.released || len(b.members) >= b.expected {
		return 0, fmt.Errorf("register %q: %w", info.Name, fed.ErrFederationFull)
	}
	for _, m := range b.members {
		if m.info.Name == info.Name {
			return 0, fmt.Errorf("federate name %q: %w", info.Name, fed.ErrDuplicateInterface)
		}
	}
	b.nextID++
	m := &member{id: b.nextID, info: info, mode: fed.ModeCreated}
	b.members[m.id] = m
	b.metrics.federates.Inc()
	b.log.WithField("federate", info.Name).Debugf("registered federate %d (%d/%d)", m.id, len(b.members), b.expected)
	return m.id, nil
}

func (b *Broker) RegisterPublication(ctx context.Context, id fed.FederateID, spec fed.PublicationSpec) (fed.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.member(id, fed.ModeCreated)
	if err != nil {
		return 0, err
	}
	if _, ok := b.pubs[spec.Key]; ok {
		return 0, fmt.Errorf("publication %q: %w", spec.Key, fed.ErrDuplicateInterface)
	}
	p := &publication{owner: m, handle: fed.Handle(len(m.pubs) + 1), spec: spec}
	m.pubs = append(m.pubs, p)
	b.pubs[spec.Key] = p
	return p.handle, nil
}

func (b *Broker) RegisterSubscription(ctx context.Context, id fed.FederateID, spec fed.SubscriptionSpec) (fed.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.member(id, fed.ModeCreated)
	if err != nil {
		return 0, err
	}
	for _, in := range m.inputs {
		if in.spec.Target == spec.Target {
			return 0, fmt.Errorf("subscription %q: %w", spec.Target, fed.ErrDuplicateInterface)
		}
	}
	in := &input{handle: fed.Handle(len(m.inputs) + 1), spec: spec}
	m.inputs = append(m.inputs, in)
	return in.handle, nil
}

// EnterExecutingMode blocks until every expected federate has entered.
func (b *Broker) EnterExecutingMode(ctx context.Context, id fed.FederateID) error {
	b.mu.Lock()
	m, err := b.member(id, fed.ModeCreated)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if !m.entered {
		m.entered = true
		b.entered++
	}
	if b.entered >= b.expected && !b.released {
		b.release()
	}
	b.mu.Unlock()

	select {
	case <-b.barrier:
		return nil
	case <-b.done:
		return fed.ErrFederationTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release resolves subscriptions and opens the execution barrier. Caller
// holds b.mu.
func (b *Broker) release() {
	for _, m := range b.members {
		for _, in := range m.inputs {
			p, ok := b.pubs[in.spec.Target]
			if !ok {
				b.log.WithField("federate", m.info.Name).Warnf("subscription %q has no matching publication", in.spec.Target)
				continue
			}
			if in.spec.Units != "" && p.spec.Units != "" && in.spec.Units != p.spec.Units {
				b.log.WithField("federate", m.info.Name).Warnf("subscription %q units %q do not match publication units %q",
					in.spec.Target, in.spec.Units, p.spec.Units)
			}
			in.source = p
		}
		if m.mode == fed.ModeCreated {
			m.mode = fed.ModeExecuting
		}
	}
	b.released = true
	close(b.barrier)
	b.log.Infof("federation executing with %d federates", len(b.members))
}

func (b *Broker) RequestTime(ctx context.Context, id fed.FederateID, t fed.Time) (fed.Grant, error) {
	b.mu.Lock()
	m, err := b.member(id, fed.ModeExecuting)
	if err != nil {
		b.mu.Unlock()
		return fed.Grant{}, err
	}
	if m.pending {
		b.mu.Unlock()
		return fed.Grant{}, fmt.Errorf("request time while a request is pending: %w", fed.ErrWrongMode)
	}
	if t < m.granted {
		t = m.granted
	}
	ch := make(chan fed.Grant, 1)
	m.pending = true
	m.requested = t
	m.waiter = ch
	b.evaluate()
	b.mu.Unlock()

	select {
	case g := <-ch:
		return g, nil
	case <-b.done:
		return fed.Grant{}, fed.ErrFederationTerminated
	case <-ctx.Done():
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case g := <-ch:
			return g, nil
		default:
		}
		if m.waiter == ch {
			m.pending = false
			m.waiter = nil
		}
		return fed.Grant{}, ctx.Err()
	}
}

func (b *Broker) Publish(ctx context.Context, id fed.FederateID, h fed.Handle, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := b.member(id, fed.ModeExecuting)
	if err != nil {
		return err
	}
	if h == 0 || int(h) > len(m.pubs) {
		return fmt.Errorf("publication %d: %w", h, fed.ErrUnknownHandle)
	}
	p := m.pubs[h-1]
	b.seq++
	p.value = value
	p.time = m.granted
	p.seq = b.seq
	b.metrics.publications.WithLabelValues(m.info.Name).Inc()
	return nil
}

func (b *Broker) Finalize(ctx context.Context, id fed.FederateID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[id]
	if !ok {
		return fmt.Errorf("federate %d: %w", id, fed.ErrUnknownFederate)
	}
	b.finalize(m)
	return nil
}

func (b *Broker) finalize(m *member) {
	if m.mode == fed.ModeFinalized {
		return
	}
	wasCreated := m.mode == fed.ModeCreated
	m.mode = fed.ModeFinalized
	m.pending = false
	m.waiter = nil
	b.metrics.federates.Dec()
	b.log.WithField("federate", m.info.Name).Infof("federate finalized at time %.1f", m.granted)

	if !b.released && wasCreated {
		// A federate leaving before the barrier lowers the count the
		// barrier waits for.
		if m.entered {
			b.entered--
		}
		b.expected--
		if b.expected > 0 && b.entered >= b.expected {
			b.release()
		}
	}
	b.evaluate()

	for _, other := range b.members {
		if other.mode != fed.ModeFinalized {
			return
		}
	}
	select {
	case <-b.finished:
	default:
		close(b.finished)
		b.log.Info("all federates finalized")
	}
}

// Fail reports a federate-side failure. A federate registered with
// TerminateOnError takes the whole federation down; any other federate is
// finalized.
func (b *Broker) Fail(id fed.FederateID, cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[id]
	if !ok || m.mode == fed.ModeFinalized {
		return
	}
	b.log.WithField("federate", m.info.Name).WithError(cause).Warn("federate failed")
	if m.info.TerminateOnError {
		b.terminate(fmt.Errorf("federate %q: %w", m.info.Name, cause))
		return
	}
	b.finalize(m)
}

func (b *Broker) terminate(cause error) {
	if b.failure != nil {
		return
	}
	b.failure = errors.Join(fed.ErrFederationTerminated, cause)
	b.metrics.terminations.Inc()
	close(b.done)
	b.log.WithError(cause).Error("federation terminated")
}

// evaluate grants every pending request the lock-step rule allows, until no
// further grant is possible. Caller holds b.mu.
func (b *Broker) evaluate() {
	for {
		pending := make([]*member, 0, len(b.members))
		for _, m := range b.members {
			if m.pending && m.mode == fed.ModeExecuting {
				pending = append(pending, m)
			}
		}
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].requested != pending[j].requested {
				return pending[i].requested < pending[j].requested
			}
			return pending[i].id < pending[j].id
		})

		progressed := false
		for _, m := range pending {
			if b.grantable(m) {
				b.grant(m)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (b *Broker) grantable(m *member) bool {
	for _, g := range b.members {
		if g == m || g.mode != fed.ModeExecuting {
			continue
		}
		next := g.granted
		if g.pending && g.requested > next {
			next = g.requested
		}
		if next < m.requested {
			return false
		}
		// The other federate must have been granted R and moved past it.
		if m.info.WaitForCurrentTimeUpdate && !g.info.WaitForCurrentTimeUpdate {
			if g.granted < m.requested || next <= m.requested {
				return false
			}
		}
	}
	return true
}

func (b *Broker) grant(m *member) {
	t := m.requested
	g := fed.Grant{Time: t}
	for _, in := range m.inputs {
		p := in.source
		if p == nil || p.seq == 0 || p.seq <= in.delivered || p.time > t {
			continue
		}
		in.delivered = p.seq
		g.Updates = append(g.Updates, fed.Update{
			Input:  in.handle,
			Target: in.spec.Target,
			Value:  p.value,
			Time:   p.time,
		})
	}
	m.granted = t
	m.pending = false
	ch := m.waiter
	m.waiter = nil
	b.metrics.grants.WithLabelValues(m.info.Name).Inc()
	b.metrics.grantedTime.WithLabelValues(m.info.Name).Set(t)
	if ch != nil {
		ch <- g
	}
}

// Status lists federates ordered by id.
func (b *Broker) Status() []Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Status, 0, len(b.members))
	for _, m := range b.members {
		out = append(out, Status{
			ID:        m.id,
			Name:      m.info.Name,
			Mode:      m.mode,
			Granted:   m.granted,
			Pending:   m.pending,
			Requested: m.requested,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Broker) member(id fed.FederateID, want fed.Mode) (*member, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	m, ok := b.members[id]
	if !ok {
		return nil, fmt.Errorf("federate %d: %w", id, fed.ErrUnknownFederate)
	}
	if m.mode != want {
		return nil, fmt.Errorf("federate %q is %s, want %s: %w", m.info.Name, m.mode, want, fed.ErrWrongMode)
	}
	return m, nil
}

func (b *Broker) checkAlive() error {
	if b.failure != nil {
		return b.failure
	}
	return nil
}
