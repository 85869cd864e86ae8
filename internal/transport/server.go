package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cosim/internal/broker"
	fed "github.com/san-kum/cosim/internal/federation"
	"github.com/san-kum/cosim/internal/wire"
)

// Server exposes a broker over TCP. Each connection carries exactly one
// federate; closing the connection without finalizing counts as a failure.
type Server struct {
	broker     *broker.Broker
	maxPayload uint32
	log        *logrus.Entry

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(b *broker.Broker) *Server {
	return &Server{
		broker:     b,
		maxPayload: wire.DefaultMaxPayload,
		log:        logrus.WithField("component", "transport"),
		conns:      make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done, then closes every open
// connection and waits for the handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Infof("broker listening on %s", ln.Addr())

	stop := make(chan struct{})
	defer s.wg.Wait()
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	var id fed.FederateID
	log := s.log.WithField("remote", conn.RemoteAddr().String())
	log.Debug("federate connected")

	for {
		f, err := wire.ReadFrame(conn, s.maxPayload)
		if err != nil {
			if id != 0 {
				if errors.Is(err, io.EOF) {
					err = errors.New("connection closed")
				}
				s.broker.Fail(id, err)
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.WithError(err).Debug("read failed")
			}
			return
		}

		resp, newID := s.dispatch(ctx, id, f)
		if newID != 0 {
			id = newID
			log = log.WithField("federate_id", id)
		}
		if err := wire.WriteFrame(conn, resp, s.maxPayload); err != nil {
			log.WithError(err).Warn("write failed")
			if id != 0 {
				s.broker.Fail(id, err)
			}
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, id fed.FederateID, f wire.Frame) (wire.Frame, fed.FederateID) {
	msgID := f.Header.MessageID
	reply := func(body any, err error) wire.Frame {
		if err != nil {
			return wire.ErrorFrame(msgID, err)
		}
		out, encErr := wire.Encode(wire.MsgOK, msgID, body)
		if encErr != nil {
			return wire.ErrorFrame(msgID, encErr)
		}
		return out
	}

	if f.Header.Type != wire.MsgRegister && id == 0 {
		return reply(nil, fmt.Errorf("%s before register: %w", f.Header.Type, fed.ErrUnknownFederate)), 0
	}

	switch f.Header.Type {
	case wire.MsgRegister:
		if id != 0 {
			return reply(nil, fmt.Errorf("connection already registered: %w", fed.ErrWrongMode)), 0
		}
		var body wire.RegisterBody
		if err := wire.Decode(f, &body); err != nil {
			return reply(nil, err), 0
		}
		newID, err := s.broker.Register(ctx, body.Info)
		return reply(wire.IDBody{ID: newID}, err), newID

	case wire.MsgRegisterPublication:
		var body wire.PublicationBody
		if err := wire.Decode(f, &body); err != nil {
			return reply(nil, err), 0
		}
		h, err := s.broker.RegisterPublication(ctx, id, body.Spec)
		return reply(wire.HandleBody{Handle: h}, err), 0

	case wire.MsgRegisterSubscription:
		var body wire.SubscriptionBody
		if err := wire.Decode(f, &body); err != nil {
			return reply(nil, err), 0
		}
		h, err := s.broker.RegisterSubscription(ctx, id, body.Spec)
		return reply(wire.HandleBody{Handle: h}, err), 0

	case wire.MsgEnterExecuting:
		return reply(nil, s.broker.EnterExecutingMode(ctx, id)), 0

	case wire.MsgRequestTime:
		var body wire.TimeBody
		if err := wire.Decode(f, &body); err != nil {
			return reply(nil, err), 0
		}
		g, err := s.broker.RequestTime(ctx, id, body.Time)
		return reply(wire.GrantBody{Grant: g}, err), 0

	case wire.MsgPublish:
		var body wire.PublishBody
		if err := wire.Decode(f, &body); err != nil {
			return reply(nil, err), 0
		}
		return reply(nil, s.broker.Publish(ctx, id, body.Handle, body.Value)), 0

	case wire.MsgFinalize:
		return reply(nil, s.broker.Finalize(ctx, id)), 0

	default:
		return reply(nil, fmt.Errorf("unsupported message type %s", f.Header.Type)), 0
	}
}
