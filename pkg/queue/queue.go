// Package queue serializes operations that share one radio. HAP-BLE
// allows a single GATT procedure at a time and scanning interferes with
// connected traffic, so every BLE procedure is submitted here and runs on
// one worker in submission order. The queue also owns the one link the
// radio may hold open between procedures.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// DefaultLinger is how long a held link stays open after the queue drains.
const DefaultLinger = time.Second

// ErrClosed fails operations submitted to, or still pending in, a closed
// queue.
var ErrClosed = errors.New("queue: closed")

// Scanner is paused while the queue has work and resumed when it drains.
type Scanner interface {
	PauseScan()
	ResumeScan()
}

// Link is an open connection kept between operations. Release closes it
// and is called from the queue's worker, or after Close.
type Link interface {
	Release()
}

// Config configures a Queue.
type Config struct {
	// Scanner is paused on busy and resumed on idle. Optional.
	Scanner Scanner

	// Linger is how long the queue waits for more work before releasing
	// a held link and going idle. Zero uses DefaultLinger; a negative
	// value releases at once.
	Linger time.Duration

	// Clock times Linger. Defaults to the wall clock.
	Clock clock.Clock

	// OnBusy is called when the queue goes from empty to non-empty.
	OnBusy func()

	// OnIdle is called when the last queued operation completes.
	OnIdle func()

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

type job struct {
	run  func(ctx context.Context)
	fail func(err error)
}

// Queue runs submitted operations one at a time in FIFO order. A failed
// operation does not affect the ones after it.
type Queue struct {
	cfg Config
	log logging.LeveledLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []job
	held    Link
	closed  bool
	wake    chan struct{}

	done chan struct{}
}

// New creates a queue and starts its worker.
func New(config Config) *Queue {
	if config.Linger == 0 {
		config.Linger = DefaultLinger
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    config,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		q.log = config.LoggerFactory.NewLogger("hap-queue")
	}
	go q.worker()
	return q
}

// Len returns the number of operations waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the worker, cancels the running operation's context and
// fails every pending operation with ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	for _, j := range pending {
		j.fail(ErrClosed)
	}
	<-q.done
	q.release()
	return nil
}

// Hold makes l the queue's open link. A link held for someone else is
// released first, so at most one is open at a time. Call it from inside
// an operation before connecting.
func (q *Queue) Hold(l Link) {
	q.mu.Lock()
	prev := q.held
	q.held = l
	q.mu.Unlock()
	if prev != nil && prev != l {
		if q.log != nil {
			q.log.Debug("releasing link held for another owner")
		}
		prev.Release()
	}
}

// Drop forgets l if it is the held link. Owners call it after closing the
// link themselves.
func (q *Queue) Drop(l Link) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.held == l {
		q.held = nil
	}
}

// Holding reports whether a link is held.
func (q *Queue) Holding() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.held != nil
}

func (q *Queue) release() {
	q.mu.Lock()
	l := q.held
	q.held = nil
	q.mu.Unlock()
	if l != nil {
		l.Release()
	}
}

func (q *Queue) enqueue(j job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) next() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return job{}, false
	}
	j := q.pending[0]
	q.pending[0] = job{}
	q.pending = q.pending[1:]
	return j, true
}

func (q *Queue) worker() {
	defer close(q.done)

	busy := false
	for {
		j, ok := q.next()
		if !ok {
			if busy {
				if q.linger() {
					continue
				}
				busy = false
				q.release()
				q.setIdle()
			}
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}
		if !busy {
			busy = true
			q.setBusy()
		}
		j.run(q.ctx)
	}
}

// linger waits up to Config.Linger for more work while a link is held.
// It reports whether work may have arrived.
func (q *Queue) linger() bool {
	if q.cfg.Linger < 0 || !q.Holding() {
		return false
	}
	t := q.cfg.Clock.Timer(q.cfg.Linger)
	defer t.Stop()
	select {
	case <-q.wake:
		return true
	case <-t.C:
		return false
	case <-q.ctx.Done():
		return false
	}
}

func (q *Queue) setBusy() {
	if q.log != nil {
		q.log.Trace("queue busy")
	}
	if q.cfg.Scanner != nil {
		q.cfg.Scanner.PauseScan()
	}
	if q.cfg.OnBusy != nil {
		q.cfg.OnBusy()
	}
}

func (q *Queue) setIdle() {
	if q.log != nil {
		q.log.Trace("queue idle")
	}
	if q.cfg.Scanner != nil {
		q.cfg.Scanner.ResumeScan()
	}
	if q.cfg.OnIdle != nil {
		q.cfg.OnIdle()
	}
}

// Future is the eventual result of a submitted operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks for the result or until ctx ends. Abandoning the wait does
// not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues op and returns its future. On a closed queue the future
// fails immediately with ErrClosed.
func Submit[T any](q *Queue, op func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	j := job{
		run: func(ctx context.Context) {
			v, err := op(ctx)
			f.complete(v, err)
		},
		fail: func(err error) {
			var zero T
			f.complete(zero, err)
		},
	}
	if !q.enqueue(j) {
		j.fail(ErrClosed)
	}
	return f
}

// Do submits op and waits for its result.
func Do[T any](ctx context.Context, q *Queue, op func(ctx context.Context) (T, error)) (T, error) {
	return Submit(q, op).Wait(ctx)
}
