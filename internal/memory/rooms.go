// Package memory holds process-local implementations of the stores. They
// back the "memory" storage driver and the tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*domain.Room)}
}

// Put creates or replaces a room.
func (s *RoomStore) Put(r domain.Room) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = &r
}

func (s *RoomStore) Get(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *RoomStore) IsActive(_ context.Context, roomID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	return r.IsActive, nil
}

func (s *RoomStore) Owner(_ context.Context, roomID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	return r.OwnerID, nil
}

func (s *RoomStore) IncrementViewerCount(_ context.Context, roomID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	r.ViewerCount++
	return r.ViewerCount, nil
}

// DecrementViewerCount stops at zero.
func (s *RoomStore) DecrementViewerCount(_ context.Context, roomID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	if r.ViewerCount > 0 {
		r.ViewerCount--
	}
	return r.ViewerCount, nil
}

func (s *RoomStore) ActiveRooms(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rooms {
		if r.IsActive {
			n++
		}
	}
	return n, nil
}

type UserStore struct {
	mu    sync.RWMutex
	users map[int64]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]domain.User)}
}

func (s *UserStore) Put(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// IsVIP is false for users the store has never seen.
func (s *UserStore) IsVIP(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].IsVIP, nil
}

func (s *UserStore) IsAdmin(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].IsAdmin, nil
}
