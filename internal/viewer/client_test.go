package viewer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/live-service/internal/broker"
	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/memory"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/service"
	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/live-service/internal/transport/ws"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) string {
	t.Helper()
	b := bus.New()
	rooms := memory.NewRoomStore()
	rooms.Put(domain.Room{ID: "R", OwnerID: 1, IsActive: true})
	analytics := memory.NewAnalyticsStore(time.Hour)

	reg := presence.NewRegistry(rooms, analytics, b)
	chat := service.NewChatService(memory.NewChatStore(), b, analytics, 0)
	danmu := service.NewDanmuService(rooms, memory.NewUserStore(), memory.NewDanmuStore(), b, analytics, time.Hour)
	gifts := service.NewGiftService(memory.NewGiftCatalog(), rooms, memory.NewLedger(), b, analytics)
	br := broker.New(b, reg, chat, danmu, gifts, time.Second)

	auth := httpmw.NewAuth(nil)
	ts := httptest.NewServer(auth.Optional(http.HandlerFunc(ws.NewServer(br).HandleWS)))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialViewer(t *testing.T, url string, uid int64, out *syncBuffer) *Client {
	t.Helper()
	cfg := Config{URL: url, RoomID: "R", Out: out}
	if uid > 0 {
		cfg.Token, cfg.UserID = "t", uid
	}
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestClient_RendersRoomEvents(t *testing.T) {
	url := startServer(t)
	var watchOut, ownerOut syncBuffer

	watcher := dialViewer(t, url, 0, &watchOut)
	require.NoError(t, watcher.Join())
	owner := dialViewer(t, url, 1, &ownerOut)
	require.NoError(t, owner.Join())

	require.Eventually(t, func() bool {
		return strings.Contains(watchOut.String(), "-- 2 watching R")
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, owner.Say("hello"))
	require.NoError(t, owner.Danmu("666"))

	require.Eventually(t, func() bool {
		out := watchOut.String()
		return strings.Contains(out, "user 1: hello") && strings.Contains(out, ">> 666 [VIP]")
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, watcher.Overlay().Len())

	d := watcher.Overlay().Active()[0]
	_, err := owner.send("delete_danmu", map[string]int64{"id": d.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return watcher.Overlay().Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, watchOut.String(), "removed")
}

func TestClient_AnonymousDanmuRejected(t *testing.T) {
	url := startServer(t)
	var out syncBuffer

	c := dialViewer(t, url, 0, &out)
	require.NoError(t, c.Join())
	require.NoError(t, c.Danmu("hi"))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "! unauthorized:")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.Overlay().Len())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	url := startServer(t)
	c, err := Dial(context.Background(), Config{URL: url, RoomID: "R"})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Say("late"), errClosed)
}
