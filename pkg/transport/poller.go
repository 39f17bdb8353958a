package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/hap/pkg/connection"
	"github.com/backkem/hap/pkg/hap"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// DefaultPollInterval is how often subscribed BLE characteristics are
// re-read when no GSN change is seen.
const DefaultPollInterval = 5 * time.Minute

var (
	// ErrNilPoll is returned when PollerConfig.Poll is nil.
	ErrNilPoll = errors.New("transport: nil poll function")

	// ErrPollFailed is reported once a poll and its retries failed.
	ErrPollFailed = fmt.Errorf("transport: poll failed: %w", hap.ErrTransport)
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// Poll is called on every tick and GSN change. Required.
	Poll func(ctx context.Context) error

	// Interval between polls. Defaults to DefaultPollInterval.
	Interval time.Duration

	// RetryDelay and RetryAttempts bound the attempts made for one poll,
	// on the schedule of connection.Backoff.
	RetryDelay    time.Duration
	RetryAttempts int

	// OnFailure receives the error of a poll whose attempts all failed.
	// Errors outside hap.IsRetryable end the attempts at once and are
	// passed on unwrapped.
	OnFailure func(err error)

	// Clock drives the interval. Defaults to the wall clock.
	Clock clock.Clock

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Poller periodically invokes a poll function and also invokes it as soon
// as an advertised global state number changes.
type Poller struct {
	cfg PollerConfig
	log logging.LeveledLogger

	trigger chan struct{}

	mu      sync.Mutex
	gsn     uint16
	haveGSN bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a stopped Poller.
func NewPoller(config PollerConfig) (*Poller, error) {
	if config.Poll == nil {
		return nil, ErrNilPoll
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	p := &Poller{cfg: config, trigger: make(chan struct{}, 1)}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("hap-poller")
	}
	return p, nil
}

// Start begins polling. The interval timer starts before Start returns.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	ticker := p.cfg.Clock.Ticker(p.cfg.Interval)

	p.wg.Add(1)
	go p.loop(ctx, ticker)
}

// Stop halts polling and waits for a running poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger requests an immediate poll.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// NotifyGSN records an advertised global state number and triggers a poll
// when it differs from the previous one. The first number seen only sets
// the baseline. It reports whether a poll was triggered.
func (p *Poller) NotifyGSN(gsn uint16) bool {
	p.mu.Lock()
	changed := p.haveGSN && gsn != p.gsn
	p.gsn = gsn
	p.haveGSN = true
	p.mu.Unlock()

	if changed {
		if p.log != nil {
			p.log.Debugf("GSN changed to %d", gsn)
		}
		p.Trigger()
	}
	return changed
}

func (p *Poller) loop(ctx context.Context, ticker *clock.Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		p.run(ctx)
	}
}

// run makes one poll, retrying on the backoff schedule.
func (p *Poller) run(ctx context.Context) {
	b := connection.NewBackoff(connection.BackoffConfig{Delay: p.cfg.RetryDelay, Attempts: p.cfg.RetryAttempts})
	var err error
	for {
		delay, ok := b.Next()
		if !ok {
			err = fmt.Errorf("%w after %d attempts: %w", ErrPollFailed, b.Attempts(), err)
			break
		}
		if delay > 0 {
			t := p.cfg.Clock.Timer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if err = p.cfg.Poll(ctx); err == nil || ctx.Err() != nil {
			return
		}
		if p.log != nil {
			p.log.Warnf("poll attempt %d failed: %v", b.Attempts(), err)
		}
		if !hap.IsRetryable(err) {
			break
		}
	}

	if p.log != nil {
		p.log.Errorf("giving up on poll: %v", err)
	}
	if p.cfg.OnFailure != nil {
		p.cfg.OnFailure(err)
	}
}
