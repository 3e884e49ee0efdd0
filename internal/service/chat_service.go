package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

const DefaultChatMaxLength = 4000

type ChatStore interface {
	Save(ctx context.Context, roomID string, userID int64, text string, replyTo *string) (*domain.ChatMessage, error)
	History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error)
}

type ChatService struct {
	store     ChatStore
	pub       Publisher
	analytics Recorder
	maxLength int
}

func NewChatService(store ChatStore, pub Publisher, analytics Recorder, maxLength int) *ChatService {
	if maxLength <= 0 {
		maxLength = DefaultChatMaxLength
	}
	return &ChatService{store: store, pub: pub, analytics: analytics, maxLength: maxLength}
}

// Send broadcasts a chat line to the room. Chat is ephemeral: when the
// store fails the message still goes out, just without an id.
func (s *ChatService) Send(ctx context.Context, roomID string, userID int64, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return nil, domain.ErrContentTooLong
	}

	msg, err := s.store.Save(ctx, roomID, userID, text, nil)
	if err != nil {
		slog.Warn("chat save failed",
			"room_id", roomID, "user_id", userID, slog.Any("err", err))
		msg = &domain.ChatMessage{
			RoomID:    roomID,
			UserID:    userID,
			Text:      text,
			CreatedAt: time.Now().UTC(),
		}
	}

	s.pub.Publish(bus.RoomTopic(roomID), bus.KindChatMessage, msg)
	record(ctx, s.analytics, domain.AnalyticsEvent{
		Kind:   domain.ChatSent,
		UserID: userID,
		RoomID: roomID,
	})
	return msg, nil
}

func (s *ChatService) History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error) {
	return s.store.History(ctx, roomID, after, limit)
}
