package coordinator

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/watercv/syncvalid/internal/transport"
	"github.com/watercv/syncvalid/internal/wire"
)

// ProcessAbort is called when the coordinator itself must terminate after
// broadcasting a mismatch result (spec I5: both coordinator and every
// participant abort). It is a package variable, not a direct os.Exit call,
// so tests can intercept it the way the teacher's cmd/node/main.go
// intercepts log.Fatalf via the logFatal variable.
var ProcessAbort = func(format string, args ...any) {
	log.Fatalf(format, args...)
}

// inbound is a decoded message paired with the connection it arrived on, or
// a terminal error if the connection's read loop ended.
type inbound struct {
	conn net.Conn
	msg  wire.Message
	err  error
}

// Server is the rendezvous coordinator: it owns the listening endpoint, one
// goroutine per accepted connection, and a single dispatch goroutine that is
// the only thing that ever touches the registration table and rendezvous
// slot (spec §5). N is the number of participants expected to register.
type Server struct {
	endpoint transport.Endpoint
	n        int
	logger   *log.Logger

	mu sync.Mutex
	ln net.Listener

	msgCh    chan inbound
	acceptCh chan net.Conn

	registry   *Registry
	rendezvous *Rendezvous

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer constructs a coordinator bound to endpoint, expecting n distinct
// participants to register.
func NewServer(endpoint transport.Endpoint, n int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		endpoint:   endpoint,
		n:          n,
		logger:     logger,
		msgCh:      make(chan inbound, 16),
		acceptCh:   make(chan net.Conn, 16),
		registry:   NewRegistry(),
		rendezvous: NewRendezvous(),
		done:       make(chan struct{}),
	}
}

// Start binds the listening endpoint and launches the accept and dispatch
// goroutines. It returns once the listener is bound, matching spec §3's
// lifecycle requirement that the coordinator's endpoint exists before
// participant clients attempt to connect.
func (s *Server) Start(ctx context.Context) error {
	ln, err := transport.Listen(s.endpoint)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()

	go s.acceptLoop(ln)
	go s.run(runCtx)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.acceptCh <- conn
	}
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn) {
	for {
		msg, err := wire.Decode(conn)
		select {
		case <-ctx.Done():
			return
		case s.msgCh <- inbound{conn: conn, msg: msg, err: err}:
		}
		if err != nil {
			return
		}
	}
}

// run is the single dispatch goroutine; it owns the registry and rendezvous
// slot for the server's whole lifetime and exits when ctx is canceled,
// either by Stop or by PreCheckpoint.
func (s *Server) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-s.acceptCh:
			go s.readLoop(ctx, conn)
		case in := <-s.msgCh:
			if in.err != nil {
				s.handleDisconnect(in.conn)
				continue
			}
			s.dispatch(in.conn, in.msg)
		}
	}
}

func (s *Server) handleDisconnect(conn net.Conn) {
	if id, ok := s.registry.RemoveConn(conn); ok {
		s.logger.Printf("coordinator: instance %d connection closed", id)
	}
	_ = conn.Close()
}

func (s *Server) dispatch(conn net.Conn, msg wire.Message) {
	switch msg.Type {
	case wire.Register:
		s.handleRegister(conn, msg)
	case wire.SyncPoint:
		s.handleSyncPoint(msg)
	case wire.Shutdown:
		// Don't disconnect eagerly: other participants may still need
		// to finish their current round against this one's connection
		// if it resubmits before actually closing.
		s.logger.Printf("coordinator: instance %d shutting down", msg.InstanceID)
	default:
		// drop
	}
}

func (s *Server) handleRegister(conn net.Conn, msg wire.Message) {
	if s.registry.Count() >= s.n {
		if _, already := s.registry.Lookup(msg.InstanceID); !already {
			s.logger.Printf("coordinator: rejecting registration from instance %d, already have %d/%d", msg.InstanceID, s.registry.Count(), s.n)
			return
		}
	}
	s.registry.Register(msg.InstanceID, conn)
	s.logger.Printf("coordinator: instance %d registered (%d/%d)", msg.InstanceID, s.registry.Count(), s.n)
}

func (s *Server) handleSyncPoint(msg wire.Message) {
	fp := msg.FingerprintString()
	s.rendezvous.Submit(msg.InstanceID, msg.SyncPoint, fp)
	s.logger.Printf("coordinator: sync point %d from instance %d: %q (%d/%d)",
		msg.SyncPoint, msg.InstanceID, fp, s.rendezvous.Arrived(), s.n)

	if !s.rendezvous.Ready(s.n) {
		return
	}

	outcome := s.rendezvous.Compare()
	if outcome.Passed {
		s.logger.Printf("MATCH at sync point %d: %q", s.rendezvous.SyncPoint(), outcome.FirstFingerprint)
	} else {
		s.logger.Printf("MISMATCH at sync point %d: %s", s.rendezvous.SyncPoint(), outcome.MismatchDetails)
	}

	s.broadcast(outcome)

	if !outcome.Passed {
		ProcessAbort("MISMATCH at sync point %d: %s", s.rendezvous.SyncPoint(), outcome.MismatchDetails)
	}
}

func (s *Server) broadcast(outcome Outcome) {
	ids := s.rendezvous.InstanceIDs()
	for _, id := range ids {
		conn, ok := s.registry.Lookup(id)
		if !ok {
			s.logger.Printf("coordinator: no registered connection for instance %d, skipping broadcast", id)
			continue
		}

		mismatchDetails := outcome.MismatchDetails
		if !outcome.Passed && len(ids) == 2 {
			for _, other := range ids {
				if other != id {
					if fp, ok := s.rendezvous.FingerprintOf(other); ok {
						mismatchDetails = fp
					}
				}
			}
		}

		result, err := wire.NewValidationResult(s.rendezvous.SyncPoint(), outcome.Passed, mismatchDetails)
		if err != nil {
			s.logger.Printf("coordinator: building result for instance %d: %v", id, err)
			continue
		}
		if err := result.Encode(conn); err != nil {
			s.logger.Printf("coordinator: sending result to instance %d: %v", id, err)
		}
	}
}

// Stop cancels the dispatch loop, closes the listener, waits for the dispatch
// goroutine to exit, and then closes every connection in the registration
// table. A connection that was accepted but never registered is not closed
// by Stop. Used both by explicit shutdown and by the pre-checkpoint hook.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.ln
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if ln != nil {
		err = ln.Close()
	}
	if cancel != nil {
		<-s.done
	}
	for _, e := range s.registry.All() {
		_ = e.conn.Close()
	}
	if unbindErr := transport.Unbind(s.endpoint); unbindErr != nil {
		return fmt.Errorf("coordinator: stop: %w", unbindErr)
	}
	return err
}

// Addr returns the bound listener's address, primarily for tests that bind
// to port 0 and need to discover the chosen port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
