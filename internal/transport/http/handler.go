package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/service"
	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/live-service/pkg/httputil"
)

const defaultPopularWindow = time.Hour

// LatestSnapshot is the read side of the metrics aggregator.
type LatestSnapshot interface {
	Latest() (domain.MetricsSnapshot, bool)
}

type Handler struct {
	roomSvc  *service.RoomService
	chatSvc  *service.ChatService
	danmuSvc *service.DanmuService
	giftSvc  *service.GiftService
	metrics  LatestSnapshot
}

func NewHandler(room *service.RoomService, chat *service.ChatService, danmu *service.DanmuService, gift *service.GiftService, metrics LatestSnapshot) *Handler {
	return &Handler{
		roomSvc:  room,
		chatSvc:  chat,
		danmuSvc: danmu,
		giftSvc:  gift,
		metrics:  metrics,
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.Error(ctx, w, domain.HTTPStatus(err), domain.Code(err), err.Error(), nil)
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	view, err := h.roomSvc.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.OK(w, view)
}

// GET /rooms/{id}/chat?after=&limit=
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.chatSvc.History(r.Context(), chi.URLParam(r, "id"),
		r.URL.Query().Get("after"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []domain.ChatMessage{}
	}
	httputil.OK(w, ChatHistoryResponse{Items: items, NextCursor: next})
}

// GET /rooms/{id}/danmus?after=&limit=
func (h *Handler) GetDanmuHistory(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.danmuSvc.History(r.Context(), chi.URLParam(r, "id"),
		r.URL.Query().Get("after"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []domain.Danmu{}
	}
	httputil.OK(w, DanmuHistoryResponse{Items: items, NextCursor: next})
}

// GET /rooms/{id}/danmus/popular?window=1h
func (h *Handler) GetPopularDanmu(w http.ResponseWriter, r *http.Request) {
	window := defaultPopularWindow
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(r.Context(), w, domain.Validationf("invalid window %q", s))
			return
		}
		window = d
	}
	items, err := h.danmuSvc.Popular(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []domain.PopularDanmu{}
	}
	httputil.OK(w, PopularDanmuResponse{Window: window.String(), Items: items})
}

// DELETE /danmus/{id}
func (h *Handler) DeleteDanmu(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, domain.Validationf("invalid danmu id"))
		return
	}
	if err := h.danmuSvc.Delete(r.Context(), id, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.OK(w, map[string]int64{"id": id})
}

// GET /gifts
func (h *Handler) ListGifts(w http.ResponseWriter, r *http.Request) {
	gifts, err := h.giftSvc.Catalog(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.OK(w, gifts)
}

// POST /gifts/send
func (h *Handler) SendGift(w http.ResponseWriter, r *http.Request) {
	var req service.GiftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, domain.Validationf("invalid json"))
		return
	}
	res, err := h.giftSvc.Send(r.Context(), httpmw.UserIDFromCtx(r.Context()), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.Created(w, res)
}

// GET /wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.giftSvc.Balance(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.OK(w, wallet)
}

// POST /wallet/recharge
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	var req RechargeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, domain.Validationf("invalid json"))
		return
	}
	wallet, err := h.giftSvc.Recharge(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.Amount)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	httputil.OK(w, wallet)
}

// GET /wallet/transactions?limit=
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	items, err := h.giftSvc.Transactions(r.Context(), httpmw.UserIDFromCtx(r.Context()), queryInt(r, "limit", 20))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []domain.GiftTransaction{}
	}
	httputil.OK(w, TransactionsResponse{Items: items})
}

// GET /metrics/latest
func (h *Handler) LatestMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.metrics.Latest()
	if !ok {
		writeError(r.Context(), w, errNoSnapshot)
		return
	}
	httputil.OK(w, snap)
}

var errNoSnapshot = fmt.Errorf("%w: no metrics snapshot yet", domain.ErrNotFound)
