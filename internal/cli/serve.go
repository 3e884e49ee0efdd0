package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwrk-planet/live-service/config"
	"github.com/cwrk-planet/live-service/internal/broker"
	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/metrics"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/security"
	"github.com/cwrk-planet/live-service/internal/service"
	grpcx "github.com/cwrk-planet/live-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/live-service/internal/transport/http"
	httpmw "github.com/cwrk-planet/live-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/live-service/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket broker, the gRPC health service and the metrics loop.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := initLogger(cfg.Logging); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting live-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// --- stores ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	if err := seedRooms(ctx, st.seed, cfg.Broker.Rooms); err != nil {
		return err
	}

	// --- broker ---
	b := bus.New(bus.WithBuffer(cfg.Broker.SubscriberBuffer))
	reg := presence.NewRegistry(st.rooms, st.analytics, b)
	chatSvc := service.NewChatService(st.chat, b, st.analytics, cfg.Broker.ChatMaxLength)
	danmuSvc := service.NewDanmuService(st.rooms, st.users, st.danmus, b, st.analytics, cfg.Broker.DanmuDisplayOr())
	giftSvc := service.NewGiftService(st.catalog, st.rooms, st.ledger, b, st.analytics)
	roomSvc := service.NewRoomService(st.rooms, reg, st.analytics)
	br := broker.New(b, reg, chatSvc, danmuSvc, giftSvc, cfg.Broker.TeardownTimeoutOr())

	agg := metrics.New(st.rooms, st.analytics, b,
		metrics.WithInterval(cfg.Metrics.IntervalOr()),
		metrics.WithWindow(cfg.Metrics.WindowOr()),
		metrics.WithSettle(cfg.Metrics.SettleOr()))

	// --- HTTP + WS ---
	auth, err := newAuth(cfg.Auth)
	if err != nil {
		return err
	}
	wsServer := ws.NewServer(br, ws.WithCheckOrigin(originChecker(cfg.HTTP.AllowedOrigins)))
	handler := httpx.NewHandler(roomSvc, chatSvc, danmuSvc, giftSvc, agg)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpx.NewRouter(handler, auth, wsServer.HandleWS, cfg.HTTP.AllowedOrigins),
		ReadTimeout:  cfg.HTTP.ReadTimeoutOr(),
		WriteTimeout: cfg.HTTP.WriteTimeoutOr(),
		IdleTimeout:  cfg.HTTP.IdleTimeoutOr(),
	}

	// --- run ---
	errCh := make(chan error, 2)

	aggCtx, stopAgg := context.WithCancel(context.Background())
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		_ = agg.Run(aggCtx)
	}()

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var health *grpcx.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			stopAgg()
			return fmt.Errorf("grpc listen: %w", err)
		}
		health = grpcx.NewServer(0)
		go func() {
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := health.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		health.SetServing(true)
	}

	// --- graceful shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal")
	case runErr = <-errCh:
		slog.Error("server error", slog.Any("err", runErr))
	}

	if health != nil {
		health.SetServing(false)
	}
	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", slog.Any("err", err))
	}
	if health != nil {
		health.GracefulStop()
	}
	stopAgg()
	<-aggDone

	slog.Info("stopped")
	return runErr
}

// newAuth returns trusted-header auth when no public key is configured.
func newAuth(cfg config.Auth) (*httpmw.Auth, error) {
	if cfg.PublicKeyPath == "" {
		slog.Warn("auth: no public key configured, trusting X-User-ID")
		return httpmw.NewAuth(nil), nil
	}
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth public key: %w", err)
	}
	return httpmw.NewAuth(security.NewVerifier(pub, cfg.Issuer, cfg.Audience, cfg.ClockSkewOr())), nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
