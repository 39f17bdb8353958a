package transport

import (
	"sync"

	"github.com/backkem/hap/pkg/accessory"
)

// Subscription delivers events for a set of characteristics in arrival
// order. Events are buffered without bound so a slow consumer never stalls
// the session. Errors carries at most one error, sent when notifications
// can no longer be delivered; both channels are closed afterwards.
type Subscription struct {
	events chan Event
	errs   chan error

	mu     sync.Mutex
	ids    map[accessory.ID]struct{}
	queue  []Event
	notify chan struct{}
	done   chan struct{}
	closed bool
	failed bool

	wg sync.WaitGroup
}

func newSubscription(ids []accessory.ID) *Subscription {
	s := &Subscription{
		events: make(chan Event),
		errs:   make(chan error, 1),
		ids:    make(map[accessory.ID]struct{}, len(ids)),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.wg.Add(1)
	go s.pump()
	return s
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errors returns the error channel.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// IDs returns the subscribed characteristics.
func (s *Subscription) IDs() []accessory.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accessory.ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Has reports whether id is part of the subscription.
func (s *Subscription) Has(id accessory.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// remove drops ids and reports whether the subscription is now empty.
func (s *Subscription) remove(ids []accessory.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.ids, id)
	}
	return len(s.ids) == 0
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.ids[ev.ID]; !ok {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// fail delivers err and closes the subscription.
func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.closed || s.failed {
		s.mu.Unlock()
		return
	}
	s.failed = true
	s.errs <- err
	s.mu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	close(s.errs)
}

func (s *Subscription) pump() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// subscriptions is the set of live subscriptions of a session.
type subscriptions struct {
	mu   sync.Mutex
	list []*Subscription
}

func (l *subscriptions) add(s *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, s)
}

func (l *subscriptions) snapshot() []*Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Subscription(nil), l.list...)
}

// ids returns the union of all subscribed characteristics.
func (l *subscriptions) ids() []accessory.ID {
	seen := make(map[accessory.ID]struct{})
	var out []accessory.ID
	for _, s := range l.snapshot() {
		for _, id := range s.IDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

func (l *subscriptions) empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list) == 0
}

func (l *subscriptions) dispatch(ev Event) {
	for _, s := range l.snapshot() {
		s.push(ev)
	}
}

// remove drops ids from every subscription and closes the emptied ones.
// It returns the ids no longer referenced by any subscription.
func (l *subscriptions) remove(ids []accessory.ID) []accessory.ID {
	l.mu.Lock()
	var emptied []*Subscription
	kept := l.list[:0]
	for _, s := range l.list {
		if s.remove(ids) {
			emptied = append(emptied, s)
			continue
		}
		kept = append(kept, s)
	}
	l.list = kept
	l.mu.Unlock()

	for _, s := range emptied {
		s.close()
	}

	var released []accessory.ID
	for _, id := range ids {
		referenced := false
		for _, s := range l.snapshot() {
			if s.Has(id) {
				referenced = true
				break
			}
		}
		if !referenced {
			released = append(released, id)
		}
	}
	return released
}

// failAll fails and drops every subscription.
func (l *subscriptions) failAll(err error) {
	l.mu.Lock()
	list := l.list
	l.list = nil
	l.mu.Unlock()

	for _, s := range list {
		if err != nil {
			s.fail(err)
		} else {
			s.close()
		}
	}
}
