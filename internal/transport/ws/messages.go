package ws

import (
	"github.com/cwrk-planet/live-service/internal/service"
)

// Типы кадров, которые клиент шлёт в WS
const (
	TypeJoinRoom           = "join_room"
	TypeLeaveRoom          = "leave_room"
	TypeChat               = "chat"
	TypeDanmu              = "danmu"
	TypeDeleteDanmu        = "delete_danmu"
	TypeGift               = "gift"
	TypeSubscribeMetrics   = "subscribe_metrics"
	TypeUnsubscribeMetrics = "unsubscribe_metrics"
)

// Client frame: {"type": ..., "ref": ..., "payload": {...}}. Server frames
// are bus events.

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type ChatPayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

type DanmuPayload struct {
	RoomID string `json:"room_id"`
	service.DanmuRequest
}

type DeleteDanmuPayload struct {
	ID int64 `json:"id"`
}

// AckPayload — ответ только отправителю; Ref повторяет ref из запроса.
type AckPayload struct {
	Ref  string `json:"ref,omitempty"`
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Ref     string `json:"ref,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PresenceAck struct {
	RoomID  string `json:"room_id"`
	Viewers int    `json:"viewers"`
}
