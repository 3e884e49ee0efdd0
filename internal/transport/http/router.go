package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/live-service/pkg/httputil"
)

func NewRouter(h *Handler, auth *httpmw.Auth, wsHandler http.HandlerFunc, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// WS: анонимный зритель допустим, без таймаута
	r.With(auth.Optional).Get("/ws", wsHandler)

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		// публичное чтение
		pr.Get("/rooms/{id}", h.GetRoom)
		pr.Get("/rooms/{id}/chat", h.GetChatHistory)
		pr.Get("/rooms/{id}/danmus", h.GetDanmuHistory)
		pr.Get("/rooms/{id}/danmus/popular", h.GetPopularDanmu)
		pr.Get("/gifts", h.ListGifts)
		pr.Get("/metrics/latest", h.LatestMetrics)

		// требуют access_token
		pr.Group(func(ar chi.Router) {
			ar.Use(auth.Require)
			ar.Delete("/danmus/{id}", h.DeleteDanmu)
			ar.Post("/gifts/send", h.SendGift)
			ar.Get("/wallet", h.GetWallet)
			ar.Post("/wallet/recharge", h.Recharge)
			ar.Get("/wallet/transactions", h.GetTransactions)
		})
	})

	return r
}
