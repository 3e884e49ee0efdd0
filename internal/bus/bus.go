package bus

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrNotAttached     = errors.New("bus: connection not attached")
	ErrAlreadyAttached = errors.New("bus: connection already attached")
)

const DefaultBuffer = 256

type topic struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
	dead bool // removed from Bus.topics; subscribers must pick a fresh entry
}

// Bus is an in-process publish/subscribe registry. Each topic has its own
// lock so publishing to one room never waits on another.
type Bus struct {
	buffer int

	connMu sync.RWMutex
	conns  map[string]*Subscription
	joined map[string]map[string]struct{} // connID -> topics

	topicMu sync.RWMutex
	topics  map[string]*topic
}

type Option func(*Bus)

// WithBuffer sets the per-connection queue length.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		buffer: DefaultBuffer,
		conns:  make(map[string]*Subscription),
		joined: make(map[string]map[string]struct{}),
		topics: make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers the delivery queue of a new connection.
func (b *Bus) Attach(connID string) (*Subscription, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if _, ok := b.conns[connID]; ok {
		return nil, ErrAlreadyAttached
	}
	s := newSubscription(connID, b.buffer)
	b.conns[connID] = s
	b.joined[connID] = make(map[string]struct{})
	return s, nil
}

// Detach removes the connection from every topic and closes its queue.
func (b *Bus) Detach(connID string) {
	b.connMu.Lock()
	s, ok := b.conns[connID]
	topics := b.joined[connID]
	delete(b.conns, connID)
	delete(b.joined, connID)
	b.connMu.Unlock()

	if !ok {
		return
	}
	for name := range topics {
		b.removeFromTopic(name, connID)
	}
	s.close()
}

func (b *Bus) Subscribe(name, connID string) error {
	b.connMu.Lock()
	s, ok := b.conns[connID]
	if !ok {
		b.connMu.Unlock()
		return ErrNotAttached
	}
	b.joined[connID][name] = struct{}{}
	b.connMu.Unlock()

	for {
		t := b.topic(name, true)
		t.mu.Lock()
		if t.dead {
			t.mu.Unlock()
			continue
		}
		t.subs[connID] = s
		t.mu.Unlock()
		return nil
	}
}

func (b *Bus) Unsubscribe(name, connID string) {
	b.connMu.Lock()
	if topics, ok := b.joined[connID]; ok {
		delete(topics, name)
	}
	b.connMu.Unlock()

	b.removeFromTopic(name, connID)
}

// Publish delivers an event to every current subscriber of the topic and
// returns it. Subscribers that cannot take the event lose it; the publisher
// is never blocked or failed by them.
func (b *Bus) Publish(name string, kind Kind, payload any) Event {
	e := newEvent(name, kind, payload)

	t := b.topic(name, false)
	if t == nil {
		return e
	}

	t.mu.RLock()
	targets := make([]*Subscription, 0, len(t.subs))
	for _, s := range t.subs {
		targets = append(targets, s)
	}
	t.mu.RUnlock()

	for _, s := range targets {
		switch s.deliver(e) {
		case queueFull:
			slog.Warn("bus: slow consumer, event dropped",
				"topic", name, "kind", string(kind), "conn_id", s.connID)
		case queueClosed:
			b.removeFromTopic(name, s.connID)
		}
	}
	return e
}

// SendTo delivers an event to one connection only.
func (b *Bus) SendTo(connID string, kind Kind, payload any) bool {
	b.connMu.RLock()
	s, ok := b.conns[connID]
	b.connMu.RUnlock()
	if !ok {
		return false
	}
	return s.deliver(newEvent("", kind, payload)) == delivered
}

// Subscribers returns the number of connections on a topic.
func (b *Bus) Subscribers(name string) int {
	t := b.topic(name, false)
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Topics returns the topics a connection is subscribed to.
func (b *Bus) Topics(connID string) []string {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	out := make([]string, 0, len(b.joined[connID]))
	for name := range b.joined[connID] {
		out = append(out, name)
	}
	return out
}

func (b *Bus) topic(name string, create bool) *topic {
	b.topicMu.RLock()
	t, ok := b.topics[name]
	b.topicMu.RUnlock()
	if ok || !create {
		return t
	}

	b.topicMu.Lock()
	defer b.topicMu.Unlock()
	if t, ok = b.topics[name]; ok {
		return t
	}
	t = &topic{subs: make(map[string]*Subscription)}
	b.topics[name] = t
	return t
}

func (b *Bus) removeFromTopic(name, connID string) {
	t := b.topic(name, false)
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.subs, connID)
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if !empty {
		return
	}
	b.topicMu.Lock()
	t.mu.Lock()
	if !t.dead && len(t.subs) == 0 && b.topics[name] == t {
		t.dead = true
		delete(b.topics, name)
	}
	t.mu.Unlock()
	b.topicMu.Unlock()
}
