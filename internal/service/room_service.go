package service

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/live-service/internal/domain"
)

// LiveCounter reports the runtime presence of a room.
type LiveCounter interface {
	Count(roomID string) int
}

type TotalsReader interface {
	RoomTotals(ctx context.Context, roomID string) (domain.RoomTotals, error)
}

type RoomView struct {
	Room    *domain.Room      `json:"room"`
	Viewers int               `json:"viewers"`
	Totals  domain.RoomTotals `json:"totals"`
}

type RoomService struct {
	rooms    RoomStore
	presence LiveCounter
	totals   TotalsReader
}

func NewRoomService(rooms RoomStore, presence LiveCounter, totals TotalsReader) *RoomService {
	return &RoomService{rooms: rooms, presence: presence, totals: totals}
}

// GetRoom возвращает комнату вместе с живым счётчиком и накопленной статистикой.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*RoomView, error) {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rooms.Get: %w", err)
	}
	view := &RoomView{Room: room, Viewers: s.presence.Count(id)}
	if s.totals != nil {
		totals, err := s.totals.RoomTotals(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("totals.RoomTotals: %w", err)
		}
		view.Totals = totals
	}
	return view, nil
}
