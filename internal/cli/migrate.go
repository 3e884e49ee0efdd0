package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwrk-planet/live-service/config"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema and upsert the configured rooms.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := initLogger(cfg.Logging); err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	}
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for migrate")
	}
	pool, err := postgres.NewPool(ctx, postgresConfig(cfg.Postgres))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	rooms := postgres.NewRoomRepository(pool)
	seed := func(ctx context.Context, r domain.Room) error { return rooms.Upsert(ctx, &r) }
	if err := seedRooms(ctx, seed, cfg.Broker.Rooms); err != nil {
		return err
	}
	slog.Info("migration applied", "rooms", len(cfg.Broker.Rooms))
	return nil
}
