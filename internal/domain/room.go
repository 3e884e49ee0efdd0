package domain

import "time"

type Room struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	Title       string    `db:"title" json:"title"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	ViewerCount int64     `db:"viewer_count" json:"viewer_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RoomTotals are cumulative counters, unlike the live presence count.
type RoomTotals struct {
	Viewers int64 `json:"total_viewers"`
	Chats   int64 `json:"total_chat_messages"`
	Gifts   int64 `json:"total_gifts"`
	Danmus  int64 `json:"total_danmus"`
	Revenue int64 `json:"total_revenue"`
}

type User struct {
	ID      int64
	IsVIP   bool
	IsAdmin bool
}
