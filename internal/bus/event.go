package bus

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindChatMessage     Kind = "chat_message"
	KindGiftReceived    Kind = "gift_received"
	KindDanmuNew        Kind = "danmu_new"
	KindDanmuDeleted    Kind = "danmu_deleted"
	KindPresenceCount   Kind = "presence_count"
	KindMetricsSnapshot Kind = "metrics_snapshot"

	// replies addressed to a single connection
	KindAck   Kind = "ack"
	KindError Kind = "error"
)

// MetricsTopic is the global monitoring feed.
const MetricsTopic = "metrics"

// RoomTopic returns the topic name for a room id.
func RoomTopic(roomID string) string {
	return "room:" + roomID
}

// Event is what subscribers receive. Events are never mutated after publish.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"type"`
	Topic   string    `json:"topic,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"ts"`
}

func newEvent(topic string, kind Kind, payload any) Event {
	return Event{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Topic:   topic,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}
