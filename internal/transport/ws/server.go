package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/service"
	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/live-service/pkg/logger"
)

// Broker is what a websocket connection drives.
type Broker interface {
	OnConnectionOpened(connID string) (*bus.Subscription, error)
	OnConnectionClosed(connID string)
	JoinRoom(ctx context.Context, connID, roomID string, userID int64) (int, error)
	LeaveRoom(ctx context.Context, connID, roomID string, userID int64) (int, error)
	SendChat(ctx context.Context, roomID string, userID int64, text string) (*domain.ChatMessage, error)
	SendDanmu(ctx context.Context, roomID string, userID int64, req service.DanmuRequest) (*domain.Danmu, error)
	DeleteDanmu(ctx context.Context, danmuID, userID int64) error
	SendGift(ctx context.Context, senderID int64, req service.GiftRequest) (*service.GiftResult, error)
	SubscribeMetrics(connID string) error
	UnsubscribeMetrics(connID string)
	Reply(connID string, kind bus.Kind, payload any) bool
}

type Option func(*Server)

func WithPingEvery(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingEvery = d
		}
	}
}

func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

type Server struct {
	upgrader websocket.Upgrader
	broker   Broker

	pingEvery    time.Duration
	writeTimeout time.Duration
	opTimeout    time.Duration
}

func NewServer(br Broker, opts ...Option) *Server {
	s := &Server{
		broker: br,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:    15 * time.Second,
		writeTimeout: 5 * time.Second,
		opTimeout:    10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WS endpoint: GET /ws?access_token=...&user_id=...
// Без токена соединение анонимное: можно смотреть, нельзя писать danmu и дарить.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		logger.FromContext(r.Context()).Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	connID := uuid.NewString()
	log := logger.FromContext(r.Context()).With("conn_id", connID, "user_id", userID)
	ctx := logger.WithContext(r.Context(), log)

	sub, err := s.broker.OnConnectionOpened(connID)
	if err != nil {
		log.Error("ws open connection failed", slog.Any("err", err))
		_ = conn.Close()
		return
	}

	c := &client{conn: conn, id: connID, userID: userID, closed: make(chan struct{})}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, c, sub)
	}()

	s.readLoop(ctx, c)

	s.broker.OnConnectionClosed(connID)
	c.close()
	<-writerDone
	if err := conn.Close(); err != nil {
		log.Debug("ws close failed", slog.Any("err", err))
	}
	log.Debug("ws connection finished", "dropped", sub.Dropped())
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.FromContext(ctx).Debug("ws read failed", slog.Any("err", err))
			}
			return
		}
		s.dispatch(ctx, c, data)
	}
}

// writeLoop is the only writer of data frames. It stops when the bus
// detaches the subscription.
func (s *Server) writeLoop(ctx context.Context, c *client, sub *bus.Subscription) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.FromContext(ctx).Debug("ws write failed", slog.Any("err", err))
				_ = c.conn.Close() // разбудит readLoop
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
		case <-sub.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func (s *Server) dispatch(parent context.Context, c *client, data []byte) {
	if !gjson.ValidBytes(data) {
		s.reject(c, "", "", domain.Validationf("frame is not valid json"))
		return
	}
	typ := gjson.GetBytes(data, "type").String()
	ref := gjson.GetBytes(data, "ref").String()
	raw := gjson.GetBytes(data, "payload").Raw

	ctx, cancel := context.WithTimeout(parent, s.opTimeout)
	defer cancel()

	var (
		result any
		err    error
	)
	switch typ {
	case TypeJoinRoom:
		var p RoomPayload
		if err = decode(raw, &p); err == nil {
			var n int
			n, err = s.broker.JoinRoom(ctx, c.id, p.RoomID, c.userID)
			result = PresenceAck{RoomID: p.RoomID, Viewers: n}
		}
	case TypeLeaveRoom:
		var p RoomPayload
		if err = decode(raw, &p); err == nil {
			var n int
			n, err = s.broker.LeaveRoom(ctx, c.id, p.RoomID, c.userID)
			result = PresenceAck{RoomID: p.RoomID, Viewers: n}
		}
	case TypeChat:
		var p ChatPayload
		if err = decode(raw, &p); err == nil {
			result, err = s.broker.SendChat(ctx, p.RoomID, c.userID, p.Text)
		}
	case TypeDanmu:
		var p DanmuPayload
		if err = decode(raw, &p); err == nil {
			result, err = s.broker.SendDanmu(ctx, p.RoomID, c.userID, p.DanmuRequest)
		}
	case TypeDeleteDanmu:
		var p DeleteDanmuPayload
		if err = decode(raw, &p); err == nil {
			err = s.broker.DeleteDanmu(ctx, p.ID, c.userID)
			result = p
		}
	case TypeGift:
		var p service.GiftRequest
		if err = decode(raw, &p); err == nil {
			result, err = s.broker.SendGift(ctx, c.userID, p)
		}
	case TypeSubscribeMetrics:
		err = s.broker.SubscribeMetrics(c.id)
	case TypeUnsubscribeMetrics:
		s.broker.UnsubscribeMetrics(c.id)
	default:
		err = domain.Validationf("unknown frame type %q", typ)
	}

	if err != nil {
		s.reject(c, ref, typ, err)
		return
	}
	s.broker.Reply(c.id, bus.KindAck, AckPayload{Ref: ref, Type: typ, Data: result})
}

func (s *Server) reject(c *client, ref, typ string, err error) {
	code := domain.Code(err)
	msg := err.Error()
	if code == "internal" || code == "unavailable" {
		slog.Error("ws operation failed", "conn_id", c.id, "type", typ, slog.Any("err", err))
		msg = "temporarily unavailable"
		if code == "internal" {
			msg = "internal error"
		}
	}
	s.broker.Reply(c.id, bus.KindError, ErrorPayload{Ref: ref, Type: typ, Code: code, Message: msg})
}

// --- helpers ---

func decode(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return domain.Validationf("invalid payload: %v", err)
	}
	return nil
}

type client struct {
	conn   *websocket.Conn
	id     string
	userID int64
	closed chan struct{}
}

func (c *client) close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
