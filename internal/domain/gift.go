package domain

import "time"

type Gift struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Price       int64  `db:"price" json:"price"`
	Icon        string `db:"icon" json:"icon,omitempty"`
	Description string `db:"description" json:"description,omitempty"`
}

// Wallet is a user's virtual currency account.
type Wallet struct {
	UserID        int64 `db:"user_id" json:"user_id"`
	Balance       int64 `db:"balance" json:"balance"`
	TotalSpent    int64 `db:"total_spent" json:"total_spent"`
	TotalReceived int64 `db:"total_received" json:"total_received"`
}

// GiftTransaction is the immutable record of a committed transfer.
type GiftTransaction struct {
	ID         string    `db:"id" json:"id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	GiftID     int64     `db:"gift_id" json:"gift_id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	Quantity   int64     `db:"quantity" json:"quantity"`
	UnitPrice  int64     `db:"unit_price" json:"unit_price"`
	TotalPrice int64     `db:"total_price" json:"total_price"`
	Message    string    `db:"message" json:"message,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
