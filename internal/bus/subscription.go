package bus

import (
	"sync"
	"sync/atomic"
)

// Subscription is the outbound queue of one connection. The transport drains
// Events() until Done() is closed.
type Subscription struct {
	connID string
	ch     chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

func newSubscription(connID string, buffer int) *Subscription {
	return &Subscription{
		connID: connID,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) ConnID() string        { return s.connID }
func (s *Subscription) Events() <-chan Event  { return s.ch }
func (s *Subscription) Done() <-chan struct{} { return s.done }
func (s *Subscription) Dropped() int64        { return s.dropped.Load() }

type delivery int

const (
	delivered delivery = iota
	queueFull
	queueClosed
)

// deliver never blocks: a full or closed queue drops the event.
func (s *Subscription) deliver(e Event) delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return queueClosed
	}
	select {
	case s.ch <- e:
		return delivered
	default:
		s.dropped.Add(1)
		return queueFull
	}
}

// close is idempotent. The event channel itself stays open so a concurrent
// deliver can never panic; readers stop on Done().
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
