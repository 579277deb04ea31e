// Package events fans pipeline progress out to any number of observers
// (the CLI printer, SSE streams) without threading callbacks through every
// call signature.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind says what an event reports.
type Kind string

const (
	KindState Kind = "state" // the pipeline entered State
	KindLog   Kind = "log"   // a log entry was appended
	KindRetry Kind = "retry" // generation is backing off
	KindDone  Kind = "done"  // the run ended; State is completed or failed
)

// Event is one progress notification.
type Event struct {
	ID       uint64    `json:"id"`
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	RunID    string    `json:"run_id,omitempty"`
	State    string    `json:"state,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Message  string    `json:"message,omitempty"`

	// Position is the 1-based index of a log entry in the run log. Observers
	// use it to notice entries they missed.
	Position int `json:"position,omitempty"`
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus dispatches events to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	sequence atomic.Uint64
	dropped  atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is a registered observer.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	bus     *Bus
	once    sync.Once
	dropped atomic.Uint64
}

// Dropped returns how many events this subscriber missed because its
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribe registers an observer with a buffer of n events
// (DefaultBuffer when n <= 0). On a closed bus the channel is already closed.
func (b *Bus) Subscribe(n int) *Subscription {
	if n <= 0 {
		n = DefaultBuffer
	}
	ch := make(chan Event, n)
	s := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.ch)
		}
	})
}

// Publish stamps e with a sequence number and time, then delivers it.
func (b *Bus) Publish(e Event) Event {
	e.ID = b.sequence.Add(1)
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return e
	}
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
	return e
}

// Close closes every subscriber channel. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscribers: len(b.subs),
		Published:   b.sequence.Load(),
		Dropped:     b.dropped.Load(),
	}
}
