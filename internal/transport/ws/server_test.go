package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/live-service/internal/broker"
	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/memory"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/service"
	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Ledger) {
	t.Helper()

	b := bus.New()
	rooms := memory.NewRoomStore()
	rooms.Put(domain.Room{ID: "R", OwnerID: 1, IsActive: true})
	ledger := memory.NewLedger()
	analytics := memory.NewAnalyticsStore(time.Hour)

	reg := presence.NewRegistry(rooms, analytics, b)
	chat := service.NewChatService(memory.NewChatStore(), b, analytics, 0)
	danmu := service.NewDanmuService(rooms, memory.NewUserStore(), memory.NewDanmuStore(), b, analytics, 0)
	gifts := service.NewGiftService(memory.NewGiftCatalog(domain.Gift{ID: 1, Name: "Rose", Price: 10}), rooms, ledger, b, analytics)
	br := broker.New(b, reg, chat, danmu, gifts, time.Second)

	s := NewServer(br, WithPingEvery(time.Second))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, err := strconv.ParseInt(r.URL.Query().Get("uid"), 10, 64); err == nil {
			r = r.WithContext(httpmw.WithUserID(r.Context(), uid))
		}
		s.HandleWS(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, ledger
}

func dial(t *testing.T, ts *httptest.Server, uid int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?uid=" + strconv.FormatInt(uid, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, c *websocket.Conn, typ, ref string, payload any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"type": typ, "ref": ref, "payload": payload}))
}

// readUntil skips frames until one of the given type arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, c.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func TestWS_JoinAndChat(t *testing.T) {
	ts, _ := newTestServer(t)
	a := dial(t, ts, 2)
	b := dial(t, ts, 3)

	send(t, a, TypeJoinRoom, "j1", RoomPayload{RoomID: "R"})
	var ack AckPayload
	require.NoError(t, json.Unmarshal(readUntil(t, a, string(bus.KindAck)).Payload, &ack))
	assert.Equal(t, "j1", ack.Ref)

	send(t, b, TypeJoinRoom, "j2", RoomPayload{RoomID: "R"})
	readUntil(t, b, string(bus.KindAck))

	var count presence.CountPayload
	require.NoError(t, json.Unmarshal(readUntil(t, a, string(bus.KindPresenceCount)).Payload, &count))
	assert.Equal(t, 2, count.Viewers)

	send(t, a, TypeChat, "c1", ChatPayload{RoomID: "R", Text: "  hello  "})
	for _, c := range []*websocket.Conn{a, b} {
		var msg domain.ChatMessage
		require.NoError(t, json.Unmarshal(readUntil(t, c, string(bus.KindChatMessage)).Payload, &msg))
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, int64(2), msg.UserID)
	}
}

func TestWS_RejectionOnlyToCaller(t *testing.T) {
	ts, _ := newTestServer(t)
	anon := dial(t, ts, 0)

	send(t, anon, TypeJoinRoom, "", RoomPayload{RoomID: "R"})
	readUntil(t, anon, string(bus.KindAck))

	send(t, anon, TypeDanmu, "d1", map[string]any{"room_id": "R", "content": "hi"})
	var e ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, anon, string(bus.KindError)).Payload, &e))
	assert.Equal(t, "d1", e.Ref)
	assert.Equal(t, "unauthorized", e.Code)
}

func TestWS_BadFrames(t *testing.T) {
	ts, _ := newTestServer(t)
	c := dial(t, ts, 2)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var e ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, string(bus.KindError)).Payload, &e))
	assert.Equal(t, "validation", e.Code)

	send(t, c, "dance", "x", nil)
	require.NoError(t, json.Unmarshal(readUntil(t, c, string(bus.KindError)).Payload, &e))
	assert.Equal(t, "x", e.Ref)
	assert.Equal(t, "validation", e.Code)

	send(t, c, TypeJoinRoom, "y", RoomPayload{RoomID: "missing"})
	require.NoError(t, json.Unmarshal(readUntil(t, c, string(bus.KindError)).Payload, &e))
	assert.Equal(t, "not_found", e.Code)
}

func TestWS_GiftBroadcast(t *testing.T) {
	ts, ledger := newTestServer(t)
	_, err := ledger.Recharge(context.Background(), 2, 100)
	require.NoError(t, err)

	sender := dial(t, ts, 2)
	viewer := dial(t, ts, 3)
	for _, c := range []*websocket.Conn{sender, viewer} {
		send(t, c, TypeJoinRoom, "", RoomPayload{RoomID: "R"})
		readUntil(t, c, string(bus.KindAck))
	}

	send(t, sender, TypeGift, "g1", service.GiftRequest{ReceiverID: 1, GiftID: 1, RoomID: "R", Quantity: 3})
	var gift domain.GiftTransaction
	require.NoError(t, json.Unmarshal(readUntil(t, viewer, string(bus.KindGiftReceived)).Payload, &gift))
	assert.Equal(t, int64(30), gift.TotalPrice)

	w, err := ledger.Balance(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(70), w.Balance)
}

func TestWS_DisconnectLeavesRooms(t *testing.T) {
	ts, _ := newTestServer(t)
	a := dial(t, ts, 2)
	b := dial(t, ts, 3)
	for _, c := range []*websocket.Conn{a, b} {
		send(t, c, TypeJoinRoom, "", RoomPayload{RoomID: "R"})
		readUntil(t, c, string(bus.KindAck))
	}

	require.NoError(t, b.Close())

	for {
		var count presence.CountPayload
		require.NoError(t, json.Unmarshal(readUntil(t, a, string(bus.KindPresenceCount)).Payload, &count))
		if !count.Joined {
			assert.Equal(t, 1, count.Viewers)
			assert.Equal(t, int64(3), count.UserID)
			return
		}
	}
}

func TestWS_MetricsSubscription(t *testing.T) {
	ts, _ := newTestServer(t)
	c := dial(t, ts, 0)

	send(t, c, TypeSubscribeMetrics, "m1", nil)
	var ack AckPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, string(bus.KindAck)).Payload, &ack))
	assert.Equal(t, "m1", ack.Ref)
	assert.Equal(t, TypeSubscribeMetrics, ack.Type)
}
