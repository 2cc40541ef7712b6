// Package client implements the participant side of a validation run: it
// connects to the coordinator, registers this instance, and drives each
// call to Validate through the wire protocol's SYNC_POINT/VALIDATION_RESULT
// exchange.
package client

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/watercv/syncvalid/internal/transport"
	"github.com/watercv/syncvalid/internal/wire"
)

// State is the participant's connection lifecycle state.
type State int

const (
	// StateInit is the state before Init has been called.
	StateInit State = iota
	// StateConnecting is set while the client attempts to reach the coordinator.
	StateConnecting
	// StateRegistered is set once the connection is up and REGISTER has been sent.
	StateRegistered
	// StateIdle is set between validation rounds.
	StateIdle
	// StateAwaitingResult is set while a SYNC_POINT submission is outstanding.
	StateAwaitingResult
	// StateAborted is a terminal state reached after a mismatch.
	StateAborted
	// StateShutDown is a terminal state reached after Shutdown completes.
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateRegistered:
		return "REGISTERED"
	case StateIdle:
		return "IDLE"
	case StateAwaitingResult:
		return "AWAITING_RESULT"
	case StateAborted:
		return "ABORT"
	case StateShutDown:
		return "SHUT_DOWN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ProcessAbort is called when this participant must terminate after
// receiving a failed VALIDATION_RESULT. It's a package variable so tests can
// intercept it, the same testability idiom used by internal/coordinator's
// ProcessAbort and the teacher's logFatal.
var ProcessAbort = func(format string, args ...any) {
	log.Fatalf(format, args...)
}

// ResultTimeout bounds how long Validate waits for the coordinator's
// broadcast after this participant has sent its own fingerprint.
// It's a variable rather than a constant so tests exercising the timeout
// path don't have to wait out the production value.
var ResultTimeout = 5 * time.Second

// connectAttempts and connectDelay bound how long Init retries dialing the
// coordinator, mirroring the teacher's register() retry loop in
// cmd/node/main.go (10 attempts x 400ms there; a barrier rendezvous is
// latency-sensitive enough to warrant a shorter, more frequent retry here).
const (
	connectAttempts = 50
	connectDelay    = 100 * time.Millisecond
)

// Client is the participant-side handle to a validation run.
type Client struct {
	instanceID int32
	n          int
	endpoint   transport.Endpoint
	logger     *log.Logger

	mu    sync.Mutex
	state State
	conn  net.Conn

	resultCh chan wire.Message
	closeCh  chan struct{}
}

// New constructs a participant client for instanceID out of n total
// participants, targeting endpoint.
func New(instanceID int32, n int, endpoint transport.Endpoint, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		instanceID: instanceID,
		n:          n,
		endpoint:   endpoint,
		logger:     logger,
		state:      StateInit,
		resultCh:   make(chan wire.Message, 1),
		closeCh:    make(chan struct{}),
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Init connects to the coordinator, retrying up to connectAttempts times,
// then sends REGISTER and starts the background read loop.
func (c *Client) Init(ctx context.Context) error {
	c.setState(StateConnecting)

	var conn net.Conn
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, connectDelay)
		conn, lastErr = transport.Dial(dialCtx, c.endpoint)
		cancel()
		if lastErr == nil {
			break
		}
		c.logger.Printf("client[%d]: connect retry %d: %v", c.instanceID, attempt+1, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("client[%d]: failed to connect to coordinator: %w", c.instanceID, lastErr)
	}

	reg := wire.NewRegister(c.instanceID)
	if err := reg.Encode(conn); err != nil {
		conn.Close()
		return fmt.Errorf("client[%d]: sending register: %w", c.instanceID, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateRegistered
	c.mu.Unlock()

	go c.readLoop(conn)

	c.setState(StateIdle)
	c.logger.Printf("client[%d]: registered with coordinator at %s", c.instanceID, c.endpoint.Address)
	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		msg, err := wire.Decode(conn)
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.logger.Printf("client[%d]: connection to coordinator lost: %v", c.instanceID, err)
			}
			return
		}
		if msg.Type != wire.ValidationResult {
			continue
		}
		select {
		case c.resultCh <- msg:
		case <-c.closeCh:
			return
		}
	}
}

// Validate submits fingerprint for the sync point identified by label,
// blocks until every participant's submission has been compared, and
// aborts the process (via ProcessAbort) if the result is a mismatch. A
// timeout waiting for the result is logged and returned as success: it is
// not treated as a mismatch.
//
// label is used only for logging; the wire protocol identifies sync points
// by an ordinal, which the caller supplies as syncPoint.
func (c *Client) Validate(ctx context.Context, syncPoint int64, label, fp string) error {
	c.mu.Lock()
	conn := c.conn
	c.state = StateAwaitingResult
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("client[%d]: Validate called before Init", c.instanceID)
	}

	msg, err := wire.NewSyncPoint(c.instanceID, syncPoint, fp)
	if err != nil {
		return fmt.Errorf("client[%d]: building sync point %q: %w", c.instanceID, label, err)
	}
	if err := msg.Encode(conn); err != nil {
		return fmt.Errorf("client[%d]: sending sync point %q: %w", c.instanceID, label, err)
	}

	select {
	case result := <-c.resultCh:
		c.setState(StateIdle)
		if !result.ValidationPassed {
			c.setState(StateAborted)
			ProcessAbort("ASSERTION FAILED: MISMATCH at sync point %q (instance %d): %s", label, c.instanceID, result.MismatchDetailsString())
			return nil
		}
		c.logger.Printf("client[%d]: sync point %q MATCH", c.instanceID, label)
		return nil
	case <-time.After(ResultTimeout):
		c.setState(StateIdle)
		c.logger.Printf("client[%d]: TIMEOUT waiting for validation result at sync point %q", c.instanceID, label)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidateOrWarn behaves like Validate but logs a warning and returns false
// on mismatch instead of aborting the process. Unlike Validate, a timeout
// waiting for the result also returns false (with a nil error).
func (c *Client) ValidateOrWarn(ctx context.Context, syncPoint int64, label, fp string) (bool, error) {
	c.mu.Lock()
	conn := c.conn
	c.state = StateAwaitingResult
	c.mu.Unlock()

	if conn == nil {
		return false, fmt.Errorf("client[%d]: ValidateOrWarn called before Init", c.instanceID)
	}

	msg, err := wire.NewSyncPoint(c.instanceID, syncPoint, fp)
	if err != nil {
		return false, fmt.Errorf("client[%d]: building sync point %q: %w", c.instanceID, label, err)
	}
	if err := msg.Encode(conn); err != nil {
		return false, fmt.Errorf("client[%d]: sending sync point %q: %w", c.instanceID, label, err)
	}

	select {
	case result := <-c.resultCh:
		c.setState(StateIdle)
		if !result.ValidationPassed {
			c.logger.Printf("client[%d]: sync point %q MISMATCH (warn-only): %s", c.instanceID, label, result.MismatchDetailsString())
			return false, nil
		}
		return true, nil
	case <-time.After(ResultTimeout):
		c.setState(StateIdle)
		c.logger.Printf("client[%d]: TIMEOUT waiting for validation result at sync point %q (warn-only)", c.instanceID, label)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Shutdown sends SHUTDOWN and closes the connection. It is idempotent: a
// second call is a no-op.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.state == StateShutDown {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.state = StateShutDown
	c.mu.Unlock()

	close(c.closeCh)
	if conn == nil {
		return nil
	}
	msg := wire.NewShutdown(c.instanceID)
	_ = msg.Encode(conn)
	return conn.Close()
}
