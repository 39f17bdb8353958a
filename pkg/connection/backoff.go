package connection

import (
	"sync"
	"time"
)

// Reconnect defaults.
const (
	// DefaultDelay is the wait before every attempt after the first.
	DefaultDelay = 5 * time.Second

	// DefaultAttempts is the number of attempts before giving up.
	DefaultAttempts = 2
)

// BackoffConfig configures a Backoff.
type BackoffConfig struct {
	Delay    time.Duration
	Attempts int
}

// Backoff yields a fixed schedule: the first attempt is immediate and each
// later one waits Delay. It is exhausted after Attempts attempts.
type Backoff struct {
	mu       sync.Mutex
	delay    time.Duration
	max      int
	attempts int
}

// NewBackoff creates a Backoff. Zero fields take the defaults.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Delay <= 0 {
		config.Delay = DefaultDelay
	}
	if config.Attempts <= 0 {
		config.Attempts = DefaultAttempts
	}
	return &Backoff{delay: config.Delay, max: config.Attempts}
}

// Next returns the wait before the next attempt, or false once exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempts >= b.max {
		return 0, false
	}
	b.attempts++
	if b.attempts == 1 {
		return 0, true
	}
	return b.delay, true
}

// Attempts returns the number of attempts handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset restarts the schedule. Call it after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Schedule returns the full list of waits.
func (b *Backoff) Schedule() []time.Duration {
	out := make([]time.Duration, b.max)
	for i := 1; i < b.max; i++ {
		out[i] = b.delay
	}
	return out
}
