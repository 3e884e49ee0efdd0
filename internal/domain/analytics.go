package domain

import "time"

type AnalyticsKind string

const (
	ViewerJoined AnalyticsKind = "viewer_joined"
	ViewerLeft   AnalyticsKind = "viewer_left"
	ChatSent     AnalyticsKind = "chat_message"
	GiftSent     AnalyticsKind = "gift_sent"
	DanmuSent    AnalyticsKind = "danmu_sent"
)

type AnalyticsEvent struct {
	Kind   AnalyticsKind
	UserID int64  // 0 when anonymous
	RoomID string // empty when not room scoped
	Value  int64
	At     time.Time // zero: stamped by the store on Record
}

// MetricsSnapshot is one immutable aggregate reading.
type MetricsSnapshot struct {
	ActiveRooms int64     `json:"active_rooms"`
	Viewers     int64     `json:"viewers"`
	Chats       int64     `json:"chats"`
	Gifts       int64     `json:"gifts"`
	Danmus      int64     `json:"danmus"`
	WindowStart time.Time `json:"window_start"`
	Timestamp   time.Time `json:"timestamp"`
}
