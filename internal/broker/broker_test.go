package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/memory"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/service"
)

type stack struct {
	broker   *Broker
	presence *presence.Registry
	rooms    *memory.RoomStore
	ledger   *memory.Ledger
}

func newStack() *stack {
	b := bus.New()
	rooms := memory.NewRoomStore()
	users := memory.NewUserStore()
	ledger := memory.NewLedger()
	analytics := memory.NewAnalyticsStore(time.Hour)
	catalog := memory.NewGiftCatalog(domain.Gift{ID: 1, Name: "Rose", Price: 50})

	reg := presence.NewRegistry(rooms, analytics, b)
	chat := service.NewChatService(memory.NewChatStore(), b, analytics, 0)
	danmu := service.NewDanmuService(rooms, users, memory.NewDanmuStore(), b, analytics, 0)
	gifts := service.NewGiftService(catalog, rooms, ledger, b, analytics)

	return &stack{
		broker:   New(b, reg, chat, danmu, gifts, time.Second),
		presence: reg,
		rooms:    rooms,
		ledger:   ledger,
	}
}

func kinds(s *bus.Subscription) []bus.Kind {
	var out []bus.Kind
	for {
		select {
		case e := <-s.Events():
			out = append(out, e.Kind)
		default:
			return out
		}
	}
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	st := newStack()
	st.rooms.Put(domain.Room{ID: "R", OwnerID: 1, IsActive: true})
	_, err := st.ledger.Recharge(ctx, 2, 100)
	require.NoError(t, err)

	u2, err := st.broker.OnConnectionOpened("c2")
	require.NoError(t, err)
	u3, err := st.broker.OnConnectionOpened("c3")
	require.NoError(t, err)

	n, err := st.broker.JoinRoom(ctx, "c2", "R", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = st.broker.JoinRoom(ctx, "c3", "R", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	kinds(u2)
	kinds(u3)

	res, err := st.broker.SendGift(ctx, 2, service.GiftRequest{ReceiverID: 1, GiftID: 1, RoomID: "R", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Balance)

	owner, _ := st.ledger.Balance(ctx, 1)
	assert.Equal(t, int64(50), owner.TotalReceived)
	assert.Equal(t, []bus.Kind{bus.KindGiftReceived}, kinds(u2))
	assert.Equal(t, []bus.Kind{bus.KindGiftReceived}, kinds(u3))

	st.broker.OnConnectionClosed("c3")

	assert.Equal(t, 1, st.presence.Count("R"))
	assert.Equal(t, []bus.Kind{bus.KindPresenceCount}, kinds(u2))
	room, _ := st.rooms.Get(ctx, "R")
	assert.Equal(t, int64(1), room.ViewerCount)

	select {
	case <-u3.Done():
	default:
		t.Fatal("closed connection still has a live queue")
	}
}

func TestMetricsSubscription(t *testing.T) {
	st := newStack()
	sub, err := st.broker.OnConnectionOpened("dash")
	require.NoError(t, err)

	require.NoError(t, st.broker.SubscribeMetrics("dash"))
	st.broker.bus.Publish(bus.MetricsTopic, bus.KindMetricsSnapshot, domain.MetricsSnapshot{})
	assert.Equal(t, []bus.Kind{bus.KindMetricsSnapshot}, kinds(sub))

	st.broker.UnsubscribeMetrics("dash")
	st.broker.bus.Publish(bus.MetricsTopic, bus.KindMetricsSnapshot, domain.MetricsSnapshot{})
	assert.Empty(t, kinds(sub))
}

func TestRejectionsGoOnlyToCaller(t *testing.T) {
	ctx := context.Background()
	st := newStack()
	st.rooms.Put(domain.Room{ID: "R", OwnerID: 1, IsActive: true})
	caller, _ := st.broker.OnConnectionOpened("caller")
	other, _ := st.broker.OnConnectionOpened("other")
	_, _ = st.broker.JoinRoom(ctx, "caller", "R", 2)
	_, _ = st.broker.JoinRoom(ctx, "other", "R", 3)
	kinds(caller)
	kinds(other)

	_, err := st.broker.SendGift(ctx, 2, service.GiftRequest{ReceiverID: 1, GiftID: 1, RoomID: "R"})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	st.broker.Reply("caller", bus.KindError, domain.Code(err))

	assert.Equal(t, []bus.Kind{bus.KindError}, kinds(caller))
	assert.Empty(t, kinds(other))
}

func TestJoinUnknownRoom(t *testing.T) {
	st := newStack()
	_, _ = st.broker.OnConnectionOpened("c")
	_, err := st.broker.JoinRoom(context.Background(), "c", "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, st.presence.Rooms("c"))

	_, err = st.broker.JoinRoom(context.Background(), "c", "", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
