package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

type DanmuStore interface {
	Create(ctx context.Context, d *domain.Danmu) error
	Get(ctx context.Context, id int64) (*domain.Danmu, error)
	Delete(ctx context.Context, id int64) error
	History(ctx context.Context, roomID, after string, limit int) ([]domain.Danmu, string, error)
	Popular(ctx context.Context, roomID string, since time.Time, limit int) ([]domain.PopularDanmu, error)
}

// DanmuRequest is what a client submits. Empty style fields take defaults.
type DanmuRequest struct {
	Content         string `json:"content"`
	Color           string `json:"color" validate:"omitempty,len=7,hexcolor"`
	Size            string `json:"size" validate:"omitempty,oneof=small medium large"`
	Position        string `json:"position" validate:"omitempty,oneof=scroll top bottom"`
	FontSize        int    `json:"font_size" validate:"omitempty,min=8,max=72"`
	FontFamily      string `json:"font_family" validate:"omitempty,max=50"`
	BackgroundColor string `json:"background_color" validate:"omitempty,eq=transparent|hexcolor"`
	BorderColor     string `json:"border_color" validate:"omitempty,eq=transparent|hexcolor"`
}

// DanmuPayload is broadcast as danmu_new.
type DanmuPayload struct {
	domain.Danmu
	DisplayMS int64 `json:"display_ms"`
}

type DanmuDeletedPayload struct {
	ID     int64  `json:"id"`
	RoomID string `json:"room_id"`
}

type DanmuService struct {
	rooms     RoomStore
	users     UserStore
	store     DanmuStore
	pub       Publisher
	analytics Recorder
	display   time.Duration
}

func NewDanmuService(rooms RoomStore, users UserStore, store DanmuStore, pub Publisher, analytics Recorder, display time.Duration) *DanmuService {
	if display <= 0 {
		display = domain.DefaultDanmuDisplay
	}
	return &DanmuService{
		rooms:     rooms,
		users:     users,
		store:     store,
		pub:       pub,
		analytics: analytics,
		display:   display,
	}
}

// Send validates, persists and broadcasts a danmu. Nothing is stored or
// published for a rejected request.
func (s *DanmuService) Send(ctx context.Context, roomID string, userID int64, req DanmuRequest) (*domain.Danmu, error) {
	if userID == 0 {
		return nil, domain.ErrAnonymous
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(req.Content) > domain.DanmuMaxLength {
		return nil, domain.ErrContentTooLong
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	active, err := s.rooms.IsActive(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("rooms.IsActive: %w", err)
	}
	if !active {
		return nil, domain.ErrRoomNotLive
	}

	vip, err := s.isVIP(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	d := &domain.Danmu{
		RoomID:    roomID,
		UserID:    userID,
		Content:   req.Content,
		Style:     styleWithDefaults(req),
		IsVIP:     vip,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("danmus.Create: %w", err)
	}

	s.pub.Publish(bus.RoomTopic(roomID), bus.KindDanmuNew, DanmuPayload{
		Danmu:     *d,
		DisplayMS: s.display.Milliseconds(),
	})
	record(ctx, s.analytics, domain.AnalyticsEvent{
		Kind:   domain.DanmuSent,
		UserID: userID,
		RoomID: roomID,
	})
	return d, nil
}

// Delete removes a danmu on behalf of the room owner or an administrator.
func (s *DanmuService) Delete(ctx context.Context, danmuID, userID int64) error {
	if userID == 0 {
		return domain.ErrAnonymous
	}
	d, err := s.store.Get(ctx, danmuID)
	if err != nil {
		return fmt.Errorf("danmus.Get: %w", err)
	}

	owner, err := s.rooms.Owner(ctx, d.RoomID)
	if err != nil {
		return fmt.Errorf("rooms.Owner: %w", err)
	}
	if owner != userID {
		admin, err := s.users.IsAdmin(ctx, userID)
		if err != nil {
			return fmt.Errorf("users.IsAdmin: %w", err)
		}
		if !admin {
			return domain.ErrForbidden
		}
	}

	if err := s.store.Delete(ctx, danmuID); err != nil {
		return fmt.Errorf("danmus.Delete: %w", err)
	}
	s.pub.Publish(bus.RoomTopic(d.RoomID), bus.KindDanmuDeleted, DanmuDeletedPayload{
		ID:     danmuID,
		RoomID: d.RoomID,
	})
	return nil
}

func (s *DanmuService) History(ctx context.Context, roomID, after string, limit int) ([]domain.Danmu, string, error) {
	return s.store.History(ctx, roomID, after, limit)
}

// Popular returns the most repeated danmu texts of the last window.
func (s *DanmuService) Popular(ctx context.Context, roomID string, window time.Duration) ([]domain.PopularDanmu, error) {
	if window <= 0 {
		window = time.Hour
	}
	return s.store.Popular(ctx, roomID, time.Now().Add(-window), 10)
}

func (s *DanmuService) isVIP(ctx context.Context, roomID string, userID int64) (bool, error) {
	owner, err := s.rooms.Owner(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("rooms.Owner: %w", err)
	}
	if owner == userID {
		return true, nil
	}
	vip, err := s.users.IsVIP(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("users.IsVIP: %w", err)
	}
	return vip, nil
}

func styleWithDefaults(req DanmuRequest) domain.DanmuStyle {
	st := domain.DanmuStyle{
		Color:           req.Color,
		Size:            domain.DanmuSize(req.Size),
		Position:        domain.DanmuPosition(req.Position),
		FontSize:        req.FontSize,
		FontFamily:      req.FontFamily,
		BackgroundColor: req.BackgroundColor,
		BorderColor:     req.BorderColor,
	}
	if st.Color == "" {
		st.Color = domain.DefaultDanmuColor
	}
	if st.Size == "" {
		st.Size = domain.DefaultDanmuSize
	}
	if st.Position == "" {
		st.Position = domain.DefaultDanmuPos
	}
	if st.FontSize == 0 {
		st.FontSize = domain.DefaultDanmuFontPx
	}
	if st.FontFamily == "" {
		st.FontFamily = domain.DefaultDanmuFont
	}
	if st.BackgroundColor == "" {
		st.BackgroundColor = domain.DefaultDanmuFill
	}
	if st.BorderColor == "" {
		st.BorderColor = domain.DefaultDanmuFill
	}
	return st
}
