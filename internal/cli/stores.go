package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/live-service/config"
	"github.com/cwrk-planet/live-service/internal/analytics"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/memory"
	"github.com/cwrk-planet/live-service/internal/metrics"
	"github.com/cwrk-planet/live-service/internal/postgres"
	"github.com/cwrk-planet/live-service/internal/presence"
	"github.com/cwrk-planet/live-service/internal/service"
)

type roomStore interface {
	service.RoomStore
	presence.RoomCounter
	metrics.RoomCounter
}

type analyticsStore interface {
	service.Recorder
	service.TotalsReader
	metrics.EventCounter
}

// stores is the persistence of one process, picked by storage.driver.
type stores struct {
	rooms     roomStore
	users     service.UserStore
	chat      service.ChatStore
	danmus    service.DanmuStore
	catalog   service.GiftCatalog
	ledger    service.Ledger
	analytics analyticsStore

	seed    func(ctx context.Context, r domain.Room) error
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, postgresConfig(cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)

		rooms := postgres.NewRoomRepository(pool)
		st.rooms = rooms
		st.users = postgres.NewUserRepository(pool)
		st.chat = postgres.NewChatRepository(pool)
		st.danmus = postgres.NewDanmuRepository(pool)
		st.catalog = postgres.NewGiftRepository(pool)
		st.ledger = postgres.NewLedgerRepository(pool)
		st.seed = func(ctx context.Context, r domain.Room) error { return rooms.Upsert(ctx, &r) }
	default:
		rooms := memory.NewRoomStore()
		st.rooms = rooms
		st.users = memory.NewUserStore()
		st.chat = memory.NewChatStore()
		st.danmus = memory.NewDanmuStore()
		st.catalog = memory.NewGiftCatalog(memory.DefaultGifts()...)
		st.ledger = memory.NewLedger()
		st.seed = func(_ context.Context, r domain.Room) error {
			rooms.Put(r)
			return nil
		}
	}

	if cfg.Redis.Addr != "" {
		client, err := analytics.NewClient(ctx, analytics.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.analytics = analytics.NewStore(client, cfg.Redis.RetentionOr())
	} else {
		st.analytics = memory.NewAnalyticsStore(cfg.Redis.RetentionOr())
	}

	slog.Info("stores ready",
		"driver", cfg.Storage.Driver, "redis_analytics", cfg.Redis.Addr != "")
	return st, nil
}

func seedRooms(ctx context.Context, seed func(context.Context, domain.Room) error, rooms []config.SeedRoom) error {
	for _, r := range rooms {
		room := domain.Room{ID: r.ID, OwnerID: r.OwnerID, Title: r.Title, IsActive: r.Active}
		if err := seed(ctx, room); err != nil {
			return fmt.Errorf("seed room %s: %w", r.ID, err)
		}
	}
	return nil
}

func postgresConfig(c config.Postgres) postgres.Config {
	return postgres.Config{
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetimeOr(),
		MaxConnIdleTime: c.MaxConnIdleTimeOr(),
		ApplicationName: c.ApplicationName,
	}
}
