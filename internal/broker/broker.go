// Package broker is the entry point transports drive: connection lifecycle,
// room membership and the send operations of one live platform instance.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/service"
)

const DefaultTeardownTimeout = 5 * time.Second

type Broker struct {
	bus      *bus.Bus
	presence *presence.Registry
	chat     *service.ChatService
	danmu    *service.DanmuService
	gifts    *service.GiftService

	teardown time.Duration
}

func New(b *bus.Bus, reg *presence.Registry, chat *service.ChatService, danmu *service.DanmuService, gifts *service.GiftService, teardown time.Duration) *Broker {
	if teardown <= 0 {
		teardown = DefaultTeardownTimeout
	}
	return &Broker{
		bus:      b,
		presence: reg,
		chat:     chat,
		danmu:    danmu,
		gifts:    gifts,
		teardown: teardown,
	}
}

// OnConnectionOpened registers a connection and returns its outbound queue.
func (br *Broker) OnConnectionOpened(connID string) (*bus.Subscription, error) {
	sub, err := br.bus.Attach(connID)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", connID, err)
	}
	br.presence.Open(connID)
	slog.Debug("connection opened", "conn_id", connID)
	return sub, nil
}

// OnConnectionClosed leaves every room the connection joined and drops its
// queue. Store calls are bounded by the teardown timeout.
func (br *Broker) OnConnectionClosed(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), br.teardown)
	defer cancel()

	left := br.presence.DisconnectAll(ctx, connID)
	br.bus.Detach(connID)
	slog.Debug("connection closed", "conn_id", connID, "rooms_left", len(left))
}

func (br *Broker) JoinRoom(ctx context.Context, connID, roomID string, userID int64) (int, error) {
	if roomID == "" {
		return 0, domain.Validationf("room id is required")
	}
	return br.presence.Join(ctx, connID, roomID, userID)
}

func (br *Broker) LeaveRoom(ctx context.Context, connID, roomID string, userID int64) (int, error) {
	return br.presence.Leave(ctx, connID, roomID, userID)
}

func (br *Broker) SendChat(ctx context.Context, roomID string, userID int64, text string) (*domain.ChatMessage, error) {
	return br.chat.Send(ctx, roomID, userID, text)
}

func (br *Broker) SendDanmu(ctx context.Context, roomID string, userID int64, req service.DanmuRequest) (*domain.Danmu, error) {
	return br.danmu.Send(ctx, roomID, userID, req)
}

func (br *Broker) DeleteDanmu(ctx context.Context, danmuID, userID int64) error {
	return br.danmu.Delete(ctx, danmuID, userID)
}

func (br *Broker) SendGift(ctx context.Context, senderID int64, req service.GiftRequest) (*service.GiftResult, error) {
	return br.gifts.Send(ctx, senderID, req)
}

func (br *Broker) SubscribeMetrics(connID string) error {
	return br.bus.Subscribe(bus.MetricsTopic, connID)
}

func (br *Broker) UnsubscribeMetrics(connID string) {
	br.bus.Unsubscribe(bus.MetricsTopic, connID)
}

// Reply delivers an ack or error to the invoking connection only.
func (br *Broker) Reply(connID string, kind bus.Kind, payload any) bool {
	return br.bus.SendTo(connID, kind, payload)
}
