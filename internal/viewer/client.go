// Package viewer is the terminal side of a room: a websocket client that
// renders room events and keeps the danmu overlay.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/service"
)

type Config struct {
	URL    string // ws://localhost:8080/ws
	RoomID string
	Token  string
	UserID int64
	Out    io.Writer
}

type handlerFunc func(payload gjson.Result)

type Client struct {
	cfg     Config
	conn    *websocket.Conn
	overlay *Overlay

	handlers map[bus.Kind]handlerFunc

	writeMu sync.Mutex
	outMu   sync.Mutex
	seq     atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if cfg.Token != "" {
		q.Set("access_token", cfg.Token)
	}
	if cfg.UserID > 0 {
		q.Set("user_id", strconv.FormatInt(cfg.UserID, 10))
	}
	u.RawQuery = q.Encode()
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		cfg:  cfg,
		conn: conn,
		done: make(chan struct{}),
	}
	c.overlay = NewOverlay(func(d domain.Danmu) {
		slog.Debug("danmu expired", "danmu_id", d.ID)
	})
	c.registerHandlers()
	return c, nil
}

func (c *Client) registerHandlers() {
	c.handlers = map[bus.Kind]handlerFunc{
		bus.KindChatMessage:     c.onChat,
		bus.KindDanmuNew:        c.onDanmu,
		bus.KindDanmuDeleted:    c.onDanmuDeleted,
		bus.KindGiftReceived:    c.onGift,
		bus.KindPresenceCount:   c.onPresence,
		bus.KindMetricsSnapshot: c.onMetrics,
		bus.KindError:           c.onError,
		bus.KindAck: func(p gjson.Result) {
			slog.Debug("ack", "ref", p.Get("ref").String(), "type", p.Get("type").String())
		},
	}
}

func (c *Client) Overlay() *Overlay { return c.overlay }

func (c *Client) Join() error {
	_, err := c.send("join_room", map[string]string{"room_id": c.cfg.RoomID})
	return err
}

func (c *Client) Leave() error {
	_, err := c.send("leave_room", map[string]string{"room_id": c.cfg.RoomID})
	return err
}

func (c *Client) Say(text string) error {
	_, err := c.send("chat", map[string]string{"room_id": c.cfg.RoomID, "text": text})
	return err
}

func (c *Client) Danmu(content string) error {
	_, err := c.send("danmu", map[string]string{"room_id": c.cfg.RoomID, "content": content})
	return err
}

func (c *Client) SubscribeMetrics() error {
	_, err := c.send("subscribe_metrics", nil)
	return err
}

// Run reads frames until ctx is cancelled or the server goes away.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isClosed(c.done) {
				return nil
			}
			_ = c.Close()
			return fmt.Errorf("read: %w", err)
		}
		c.handle(data)
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.overlay.Close()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) handle(data []byte) {
	kind := bus.Kind(gjson.GetBytes(data, "type").String())
	h, ok := c.handlers[kind]
	if !ok {
		slog.Debug("unhandled event", "type", kind)
		return
	}
	h(gjson.GetBytes(data, "payload"))
}

func (c *Client) send(typ string, payload any) (string, error) {
	ref := strconv.FormatInt(c.seq.Add(1), 10)
	frame := map[string]any{"type": typ, "ref": ref}
	if payload != nil {
		frame["payload"] = payload
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if isClosed(c.done) {
		return "", errClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(frame); err != nil {
		return "", fmt.Errorf("write %s: %w", typ, err)
	}
	return ref, nil
}

var errClosed = errors.New("viewer: connection closed")

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// --- rendering ---

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.cfg.Out, format+"\n", args...)
}

func (c *Client) onChat(p gjson.Result) {
	c.printf("[%s] user %d: %s", p.Get("room_id").String(), p.Get("user_id").Int(), p.Get("text").String())
}

func (c *Client) onDanmu(p gjson.Result) {
	var d service.DanmuPayload
	if err := json.Unmarshal([]byte(p.Raw), &d); err != nil {
		slog.Warn("bad danmu payload", slog.Any("err", err))
		return
	}
	c.overlay.Show(d.Danmu, time.Duration(d.DisplayMS)*time.Millisecond)

	vip := ""
	if d.IsVIP {
		vip = " [VIP]"
	}
	c.printf(">> %s%s (user %d, %s)", d.Content, vip, d.UserID, d.Style.Color)
}

func (c *Client) onDanmuDeleted(p gjson.Result) {
	id := p.Get("id").Int()
	if c.overlay.Remove(id) {
		c.printf("(danmu %d removed)", id)
	}
}

func (c *Client) onGift(p gjson.Result) {
	c.printf("* user %d sent %d x gift #%d to user %d (%d coins)",
		p.Get("sender_id").Int(), p.Get("quantity").Int(), p.Get("gift_id").Int(),
		p.Get("receiver_id").Int(), p.Get("total_price").Int())
}

func (c *Client) onPresence(p gjson.Result) {
	c.printf("-- %d watching %s", p.Get("viewers").Int(), p.Get("room_id").String())
}

func (c *Client) onMetrics(p gjson.Result) {
	c.printf("metrics: rooms=%d viewers=%d chats=%d gifts=%d danmus=%d",
		p.Get("active_rooms").Int(), p.Get("viewers").Int(), p.Get("chats").Int(),
		p.Get("gifts").Int(), p.Get("danmus").Int())
}

func (c *Client) onError(p gjson.Result) {
	c.printf("! %s: %s", p.Get("code").String(), p.Get("message").String())
}
