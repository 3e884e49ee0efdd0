package service

import (
	"context"
	"log/slog"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

// Publisher is the fan-out side of the room event bus.
type Publisher interface {
	Publish(topic string, kind bus.Kind, payload any) bus.Event
}

// Recorder appends analytics events. Failures never fail the caller.
type Recorder interface {
	Record(ctx context.Context, ev domain.AnalyticsEvent) error
}

type RoomStore interface {
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	IsActive(ctx context.Context, roomID string) (bool, error)
	Owner(ctx context.Context, roomID string) (int64, error)
}

type UserStore interface {
	IsVIP(ctx context.Context, userID int64) (bool, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

func record(ctx context.Context, rec Recorder, ev domain.AnalyticsEvent) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, ev); err != nil {
		slog.Warn("record analytics failed",
			"kind", string(ev.Kind), "room_id", ev.RoomID, slog.Any("err", err))
	}
}
