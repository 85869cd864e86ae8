package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	fed "github.com/san-kum/cosim/internal/federation"
	"github.com/san-kum/cosim/internal/wire"
)

var ErrClientClosed = errors.New("transport: client closed")

type DialOptions struct {
	// Attempts bounds connection attempts; 0 retries until ctx is done.
	Attempts int
	Backoff  BackoffConfig
	// CallTimeout bounds calls that never wait on other federates.
	CallTimeout time.Duration
}

func DefaultDialOptions() DialOptions {
	return DialOptions{
		Attempts:    20,
		Backoff:     DefaultBackoff(),
		CallTimeout: 15 * time.Second,
	}
}

// Client is a federation.Core backed by a broker connection. It carries a
// single federate and serializes calls.
type Client struct {
	mu          sync.Mutex
	conn        net.Conn
	nextID      uint64
	maxPayload  uint32
	callTimeout time.Duration
	closed      bool
}

var (
	_ fed.Core   = (*Client)(nil)
	_ fed.Failer = (*Client)(nil)
)

// Dial connects to a broker, retrying with backoff while the broker is not
// yet listening.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Client, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var d net.Dialer
	var lastErr error
	for attempt := 1; opts.Attempts == 0 || attempt <= opts.Attempts; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewClient(conn, opts), nil
		}
		lastErr = err
		delay := NextBackoffDelay(opts.Backoff, attempt, rng)
		logrus.WithField("broker", addr).Debugf("dial attempt %d failed, retrying in %s: %v", attempt, delay, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial broker %s: %w", addr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("dial broker %s: %w", addr, lastErr)
}

func NewClient(conn net.Conn, opts DialOptions) *Client {
	return &Client{
		conn:        conn,
		maxPayload:  wire.DefaultMaxPayload,
		callTimeout: opts.CallTimeout,
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Fail drops the connection without finalizing, so the server reports the
// federate as failed to the broker.
func (c *Client) Fail(_ fed.FederateID, cause error) {
	logrus.WithError(cause).Debug("dropping connection after federate failure")
	c.Close()
}

// call sends one request and waits for its response. When ctx ends first
// the connection is closed, since the late response would desynchronize it.
func (c *Client) call(ctx context.Context, t wire.MsgType, body, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.nextID++
	id := c.nextID
	req, err := wire.Encode(t, id, body)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			c.conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-exited
		if !c.closed {
			c.conn.SetDeadline(time.Time{})
		}
	}()

	if err := wire.WriteFrame(c.conn, req, c.maxPayload); err != nil {
		return c.fail(ctx, fmt.Errorf("send %s: %w", t, err))
	}
	resp, err := wire.ReadFrame(c.conn, c.maxPayload)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("receive %s: %w", t, err))
	}
	if resp.Header.MessageID != id {
		return c.fail(ctx, fmt.Errorf("receive %s: response id %d, want %d", t, resp.Header.MessageID, id))
	}
	if resp.Header.Type == wire.MsgError {
		return wire.AsError(resp)
	}
	if out != nil {
		return wire.Decode(resp, out)
	}
	return nil
}

func (c *Client) fail(ctx context.Context, err error) error {
	c.closed = true
	c.conn.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) Register(ctx context.Context, info fed.FederateInfo) (fed.FederateID, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	var out wire.IDBody
	err := c.call(ctx, wire.MsgRegister, wire.RegisterBody{Info: info}, &out)
	return out.ID, err
}

func (c *Client) RegisterPublication(ctx context.Context, _ fed.FederateID, spec fed.PublicationSpec) (fed.Handle, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	var out wire.HandleBody
	err := c.call(ctx, wire.MsgRegisterPublication, wire.PublicationBody{Spec: spec}, &out)
	return out.Handle, err
}

func (c *Client) RegisterSubscription(ctx context.Context, _ fed.FederateID, spec fed.SubscriptionSpec) (fed.Handle, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	var out wire.HandleBody
	err := c.call(ctx, wire.MsgRegisterSubscription, wire.SubscriptionBody{Spec: spec}, &out)
	return out.Handle, err
}

// EnterExecutingMode waits on the other federates and is not bounded by
// CallTimeout.
func (c *Client) EnterExecutingMode(ctx context.Context, _ fed.FederateID) error {
	return c.call(ctx, wire.MsgEnterExecuting, nil, nil)
}

func (c *Client) RequestTime(ctx context.Context, _ fed.FederateID, t fed.Time) (fed.Grant, error) {
	var out wire.GrantBody
	err := c.call(ctx, wire.MsgRequestTime, wire.TimeBody{Time: t}, &out)
	return out.Grant, err
}

func (c *Client) Publish(ctx context.Context, _ fed.FederateID, h fed.Handle, value float64) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.call(ctx, wire.MsgPublish, wire.PublishBody{Handle: h, Value: value}, nil)
}

func (c *Client) Finalize(ctx context.Context, _ fed.FederateID) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.call(ctx, wire.MsgFinalize, nil, nil)
}
