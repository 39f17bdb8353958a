package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrClosed is returned once the Reconnector has been closed.
	ErrClosed = errors.New("connection: reconnector closed")

	// ErrExhausted is returned when every attempt failed.
	ErrExhausted = fmt.Errorf("connection: reconnect attempts exhausted: %w", hap.ErrTransport)

	// ErrNilConnect is returned when Config.Connect is nil.
	ErrNilConnect = errors.New("connection: nil connect function")
)

// State is the connection state tracked by a Reconnector.
type State uint8

const (
	// StateDisconnected indicates no usable connection.
	StateDisconnected State = iota

	// StateConnected indicates a verified connection.
	StateConnected

	// StateReconnecting indicates attempts are in progress.
	StateReconnecting

	// StateClosed indicates the owner shut down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectFunc establishes (and verifies) a connection.
type ConnectFunc func(ctx context.Context) error

// Config configures a Reconnector.
type Config struct {
	// Connect performs one attempt. Required.
	Connect ConnectFunc

	// Delay and Attempts shape the schedule; see BackoffConfig.
	Delay    time.Duration
	Attempts int

	// Clock times the delays. Defaults to the wall clock.
	Clock clock.Clock

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)

	// OnAttempt is called before each attempt with its number (from 1)
	// and the wait that precedes it. The wait timer already runs when it
	// is called.
	OnAttempt func(attempt int, delay time.Duration)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Reconnector runs the reconnect schedule with a single attempt sequence
// in flight.
type Reconnector struct {
	cfg   Config
	log   logging.LeveledLogger
	group singleflight.Group

	mu     sync.Mutex
	state  State
	closed chan struct{}
}

// NewReconnector creates a Reconnector in StateDisconnected.
func NewReconnector(config Config) (*Reconnector, error) {
	if config.Connect == nil {
		return nil, ErrNilConnect
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	r := &Reconnector{
		cfg:    config,
		closed: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("hap-reconnect")
	}
	return r, nil
}

// State returns the current state.
func (r *Reconnector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MarkConnected records a connection established outside Reconnect.
func (r *Reconnector) MarkConnected() {
	r.setState(StateConnected)
}

// MarkDisconnected records a connection loss.
func (r *Reconnector) MarkDisconnected() {
	r.setState(StateDisconnected)
}

// Reconnect runs the schedule until an attempt succeeds. An error outside
// the retryable categories of hap.IsRetryable ends the schedule at once and
// is returned as is. Concurrent calls join the running sequence and receive
// its result.
func (r *Reconnector) Reconnect(ctx context.Context) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	_, err, _ := r.group.Do("reconnect", func() (any, error) {
		return nil, r.run(ctx)
	})
	return err
}

// Close aborts any running sequence.
func (r *Reconnector) Close() error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return nil
	}
	old := r.state
	r.state = StateClosed
	close(r.closed)
	r.mu.Unlock()

	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(old, StateClosed)
	}
	return nil
}

func (r *Reconnector) run(ctx context.Context) error {
	r.setState(StateReconnecting)
	backoff := NewBackoff(BackoffConfig{Delay: r.cfg.Delay, Attempts: r.cfg.Attempts})

	var lastErr error
	for attempt := 1; ; attempt++ {
		delay, ok := backoff.Next()
		if !ok {
			break
		}
		if err := r.wait(ctx, attempt, delay); err != nil {
			r.setState(StateDisconnected)
			return err
		}
		if r.log != nil {
			r.log.Debugf("reconnect attempt %d", attempt)
		}
		err := r.cfg.Connect(ctx)
		if err == nil {
			r.setState(StateConnected)
			return nil
		}
		if !hap.IsRetryable(err) {
			if r.log != nil {
				r.log.Warnf("reconnect attempt %d failed, not retrying: %v", attempt, err)
			}
			r.setState(StateDisconnected)
			return err
		}
		lastErr = err
		if r.log != nil {
			r.log.Warnf("reconnect attempt %d failed: %v", attempt, err)
		}
	}

	r.setState(StateDisconnected)
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, backoff.Attempts(), lastErr)
}

func (r *Reconnector) wait(ctx context.Context, attempt int, delay time.Duration) error {
	if delay <= 0 {
		if r.cfg.OnAttempt != nil {
			r.cfg.OnAttempt(attempt, 0)
		}
		select {
		case <-r.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	t := r.cfg.Clock.Timer(delay)
	defer t.Stop()
	if r.cfg.OnAttempt != nil {
		r.cfg.OnAttempt(attempt, delay)
	}
	select {
	case <-t.C:
		return nil
	case <-r.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconnector) setState(s State) {
	r.mu.Lock()
	old := r.state
	if old == StateClosed || old == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	r.mu.Unlock()

	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(old, s)
	}
}
