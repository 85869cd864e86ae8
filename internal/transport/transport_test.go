package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/cosim/internal/broker"
	fed "github.com/san-kum/cosim/internal/federation"
)

func startServer(t *testing.T, federates int) (*broker.Broker, string) {
	t.Helper()
	b, err := broker.New(broker.Config{Federates: federates})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(b)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return b, ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, DefaultDialOptions())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFederatesExchangeValuesOverTCP(t *testing.T) {
	_, addr := startServer(t, 2)
	ctx := context.Background()

	ctrl, err := fed.NewValueFederate(ctx, dial(t, addr), fed.FederateInfo{Name: "Controller", Period: 60})
	require.NoError(t, err)
	bld, err := fed.NewValueFederate(ctx, dial(t, addr), fed.FederateInfo{Name: "Building", Period: 60})
	require.NoError(t, err)

	pub, err := ctrl.RegisterGlobalPublication(ctx, "Schedule/Value/Load", "double", "W")
	require.NoError(t, err)
	in, err := bld.RegisterSubscription(ctx, "Schedule/Value/Load", "W")
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		if err := ctrl.EnterExecutingMode(ctx); err != nil {
			return err
		}
		for ctrl.CurrentTime() < 180 {
			granted, err := ctrl.RequestNextStep(ctx)
			if err != nil {
				return err
			}
			if err := pub.PublishDouble(ctx, granted*10); err != nil {
				return err
			}
		}
		return ctrl.Finalize(ctx)
	})

	var got []float64
	g.Go(func() error {
		if err := bld.EnterExecutingMode(ctx); err != nil {
			return err
		}
		for bld.CurrentTime() < 240 {
			if _, err := bld.RequestNextStep(ctx); err != nil {
				return err
			}
			if in.IsUpdated() {
				got = append(got, in.GetDouble())
			}
		}
		return bld.Finalize(ctx)
	})

	require.NoError(t, g.Wait())
	assert.Equal(t, []float64{600, 1200, 1800}, got)
}

func TestRemoteErrorsKeepSentinels(t *testing.T) {
	_, addr := startServer(t, 1)
	ctx := context.Background()
	c := dial(t, addr)

	id, err := c.Register(ctx, fed.FederateInfo{Name: "Only", Period: 1})
	require.NoError(t, err)

	_, err = c.RequestTime(ctx, id, 1)
	assert.ErrorIs(t, err, fed.ErrWrongMode)

	_, err = c.RegisterPublication(ctx, id, fed.PublicationSpec{Key: "k"})
	require.NoError(t, err)
	_, err = c.RegisterPublication(ctx, id, fed.PublicationSpec{Key: "k"})
	assert.ErrorIs(t, err, fed.ErrDuplicateInterface)
}

func TestDisconnectTerminatesFederation(t *testing.T) {
	b, addr := startServer(t, 2)
	ctx := context.Background()

	strict := dial(t, addr)
	other := dial(t, addr)
	sid, err := strict.Register(ctx, fed.FederateInfo{Name: "Strict", Period: 60, Flags: fed.Flags{TerminateOnError: true}})
	require.NoError(t, err)
	oid, err := other.Register(ctx, fed.FederateInfo{Name: "Other", Period: 60})
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error { return strict.EnterExecutingMode(ctx, sid) })
	g.Go(func() error { return other.EnterExecutingMode(ctx, oid) })
	require.NoError(t, g.Wait())

	res := make(chan error, 1)
	go func() {
		_, err := other.RequestTime(ctx, oid, 60)
		res <- err
	}()
	require.NoError(t, strict.Close())

	select {
	case err := <-res:
		assert.True(t, errors.Is(err, fed.ErrFederationTerminated), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not released after the strict federate disconnected")
	}
	assert.Error(t, b.Err())
}

func TestCallHonoursContext(t *testing.T) {
	_, addr := startServer(t, 2)
	c := dial(t, addr)
	id, err := c.Register(context.Background(), fed.FederateInfo{Name: "Lonely", Period: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.EnterExecutingMode(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.RequestTime(context.Background(), id, 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestRegistrationHonoursContext(t *testing.T) {
	b, addr := startServer(t, 1)
	f, err := fed.NewValueFederate(context.Background(), dial(t, addr), fed.FederateInfo{Name: "Controller", Period: 60})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.RegisterGlobalPublication(ctx, "a/b", "double", "W")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.RegisterSubscription(ctx, "c/d", "C")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.PublicationCount())

	// The connection is still usable with a live context.
	_, err = f.RegisterGlobalPublication(context.Background(), "a/b", "double", "W")
	require.NoError(t, err)
	require.Len(t, b.Status(), 1)
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 200*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, 400*time.Millisecond, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 10, nil))

	cfg.Jitter = true
	rng := rand.New(rand.NewSource(1))
	d := NextBackoffDelay(cfg, 2, rng)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 300*time.Millisecond)
}
