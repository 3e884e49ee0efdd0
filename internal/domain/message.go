package domain

import "time"

type ChatMessage struct {
	ID        string    `db:"id" json:"id,omitempty"`
	RoomID    string    `db:"room_id" json:"room_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Text      string    `db:"text" json:"text"`
	ReplyTo   *string   `db:"reply_to" json:"reply_to,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
