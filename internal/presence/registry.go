package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

var ErrConnectionClosed = errors.New("presence: connection closed")

// RoomCounter keeps the persistent viewer counter of a room. Decrement must
// never take the stored value below zero.
type RoomCounter interface {
	IncrementViewerCount(ctx context.Context, roomID string) (int64, error)
	DecrementViewerCount(ctx context.Context, roomID string) (int64, error)
}

type Recorder interface {
	Record(ctx context.Context, ev domain.AnalyticsEvent) error
}

// Publisher is the part of the event bus the registry drives. Topic
// subscriptions always mirror room membership.
type Publisher interface {
	Subscribe(topic, connID string) error
	Unsubscribe(topic, connID string)
	Publish(topic string, kind bus.Kind, payload any) bus.Event
}

// CountPayload is broadcast to a room whenever its membership changes.
type CountPayload struct {
	RoomID  string `json:"room_id"`
	Viewers int    `json:"viewers"`
	UserID  int64  `json:"user_id,omitempty"`
	Joined  bool   `json:"joined"`
}

type room struct {
	mu      sync.Mutex
	members map[string]int64 // connID -> userID
	dead    bool
}

// Registry tracks which connections are in which room. Mutations of one room
// are serialized by that room's lock; different rooms never contend beyond
// the short map lookups.
type Registry struct {
	counter   RoomCounter
	analytics Recorder
	pub       Publisher

	mu    sync.RWMutex
	rooms map[string]*room

	connMu sync.Mutex
	conns  map[string]map[string]struct{} // connID -> roomIDs
}

func NewRegistry(counter RoomCounter, analytics Recorder, pub Publisher) *Registry {
	return &Registry{
		counter:   counter,
		analytics: analytics,
		pub:       pub,
		rooms:     make(map[string]*room),
		conns:     make(map[string]map[string]struct{}),
	}
}

// Open registers a live connection. Joins for unknown connections fail.
func (r *Registry) Open(connID string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[string]struct{})
	}
}

// Join adds the connection to the room and returns the live viewer count.
// Joining twice is a no-op.
func (r *Registry) Join(ctx context.Context, connID, roomID string, userID int64) (int, error) {
	if !r.isOpen(connID) {
		return 0, ErrConnectionClosed
	}

	rm := r.lockRoom(roomID)
	defer r.unlockRoom(roomID, rm)

	if _, ok := rm.members[connID]; ok {
		return len(rm.members), nil
	}

	topic := bus.RoomTopic(roomID)
	if err := r.pub.Subscribe(topic, connID); err != nil {
		return 0, err
	}

	if _, err := r.counter.IncrementViewerCount(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			r.pub.Unsubscribe(topic, connID)
			return 0, err
		}
		slog.Warn("presence: increment viewer count failed",
			"room_id", roomID, slog.Any("err", err))
	}

	// the connection may have been torn down while the store call ran
	r.connMu.Lock()
	joined, open := r.conns[connID]
	if open {
		joined[roomID] = struct{}{}
	}
	r.connMu.Unlock()
	if !open {
		r.pub.Unsubscribe(topic, connID)
		r.decrement(ctx, roomID)
		return 0, ErrConnectionClosed
	}

	rm.members[connID] = userID
	count := len(rm.members)

	r.pub.Publish(topic, bus.KindPresenceCount, CountPayload{
		RoomID:  roomID,
		Viewers: count,
		UserID:  userID,
		Joined:  true,
	})
	r.record(ctx, domain.ViewerJoined, userID, roomID)

	return count, nil
}

// Leave removes the connection from the room. Leaving a room the connection
// is not in is a no-op.
func (r *Registry) Leave(ctx context.Context, connID, roomID string, userID int64) (int, error) {
	rm := r.lockRoom(roomID)
	defer r.unlockRoom(roomID, rm)

	r.connMu.Lock()
	if joined, ok := r.conns[connID]; ok {
		delete(joined, roomID)
	}
	r.connMu.Unlock()

	return r.removeLocked(ctx, rm, connID, roomID, userID), nil
}

// DisconnectAll leaves every room the connection joined and forgets it.
func (r *Registry) DisconnectAll(ctx context.Context, connID string) []string {
	r.connMu.Lock()
	joined := r.conns[connID]
	delete(r.conns, connID)
	r.connMu.Unlock()

	left := make([]string, 0, len(joined))
	for roomID := range joined {
		rm := r.lockRoom(roomID)
		r.removeLocked(ctx, rm, connID, roomID, 0)
		r.unlockRoom(roomID, rm)
		left = append(left, roomID)
	}
	return left
}

// Count returns the live number of connections in a room.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Rooms returns the rooms a connection is currently in.
func (r *Registry) Rooms(connID string) []string {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	out := make([]string, 0, len(r.conns[connID]))
	for id := range r.conns[connID] {
		out = append(out, id)
	}
	return out
}

func (r *Registry) removeLocked(ctx context.Context, rm *room, connID, roomID string, userID int64) int {
	member, ok := rm.members[connID]
	if !ok {
		return len(rm.members)
	}
	if userID == 0 {
		userID = member
	}
	delete(rm.members, connID)

	topic := bus.RoomTopic(roomID)
	r.pub.Unsubscribe(topic, connID)
	r.decrement(ctx, roomID)

	count := len(rm.members)
	r.pub.Publish(topic, bus.KindPresenceCount, CountPayload{
		RoomID:  roomID,
		Viewers: count,
		UserID:  userID,
		Joined:  false,
	})
	r.record(ctx, domain.ViewerLeft, userID, roomID)
	return count
}

func (r *Registry) decrement(ctx context.Context, roomID string) {
	if _, err := r.counter.DecrementViewerCount(ctx, roomID); err != nil {
		slog.Warn("presence: decrement viewer count failed",
			"room_id", roomID, slog.Any("err", err))
	}
}

func (r *Registry) record(ctx context.Context, kind domain.AnalyticsKind, userID int64, roomID string) {
	if r.analytics == nil {
		return
	}
	err := r.analytics.Record(ctx, domain.AnalyticsEvent{
		Kind:   kind,
		UserID: userID,
		RoomID: roomID,
	})
	if err != nil {
		slog.Warn("presence: record analytics failed",
			"kind", string(kind), "room_id", roomID, slog.Any("err", err))
	}
}

func (r *Registry) isOpen(connID string) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	_, ok := r.conns[connID]
	return ok
}

// lockRoom returns the locked, live entry for roomID, creating it if needed.
func (r *Registry) lockRoom(roomID string) *room {
	for {
		r.mu.RLock()
		rm, ok := r.rooms[roomID]
		r.mu.RUnlock()

		if !ok {
			r.mu.Lock()
			if rm, ok = r.rooms[roomID]; !ok {
				rm = &room{members: make(map[string]int64)}
				r.rooms[roomID] = rm
			}
			r.mu.Unlock()
		}

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
	}
}

// unlockRoom releases the room and retires the entry once it is empty.
func (r *Registry) unlockRoom(roomID string, rm *room) {
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if !empty {
		return
	}

	r.mu.Lock()
	rm.mu.Lock()
	if !rm.dead && len(rm.members) == 0 && r.rooms[roomID] == rm {
		rm.dead = true
		delete(r.rooms, roomID)
	}
	rm.mu.Unlock()
	r.mu.Unlock()
}
