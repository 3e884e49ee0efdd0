package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, queryGetRoom, id).
		Scan(&rm.ID, &rm.OwnerID, &rm.Title, &rm.IsActive, &rm.ViewerCount, &rm.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, domain.ErrRoomNotFound)
	}
	return &rm, nil
}

func (r *RoomRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var active bool
	if err := r.db.QueryRow(ctx, queryRoomIsActive, id).Scan(&active); err != nil {
		return false, mapPgError(err, domain.ErrRoomNotFound)
	}
	return active, nil
}

func (r *RoomRepository) Owner(ctx context.Context, id string) (int64, error) {
	var owner int64
	if err := r.db.QueryRow(ctx, queryRoomOwner, id).Scan(&owner); err != nil {
		return 0, mapPgError(err, domain.ErrRoomNotFound)
	}
	return owner, nil
}

func (r *RoomRepository) IncrementViewerCount(ctx context.Context, id string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, queryIncViewers, id).Scan(&n); err != nil {
		return 0, mapPgError(err, domain.ErrRoomNotFound)
	}
	return n, nil
}

func (r *RoomRepository) DecrementViewerCount(ctx context.Context, id string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, queryDecViewers, id).Scan(&n); err != nil {
		return 0, mapPgError(err, domain.ErrRoomNotFound)
	}
	return n, nil
}

func (r *RoomRepository) ActiveRooms(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, queryActiveRooms).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

// Upsert creates the room or updates its owner, title and live flag.
func (r *RoomRepository) Upsert(ctx context.Context, room *domain.Room) error {
	err := r.db.QueryRow(ctx, queryUpsertRoom, room.ID, room.OwnerID, room.Title, room.IsActive).
		Scan(&room.ViewerCount, &room.CreatedAt)
	return mapPgError(err)
}

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// flags возвращает false/false для неизвестного пользователя.
func (r *UserRepository) flags(ctx context.Context, id int64) (vip, admin bool, err error) {
	err = r.db.QueryRow(ctx, queryUserFlags, id).Scan(&vip, &admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, mapPgError(err)
	}
	return vip, admin, nil
}

func (r *UserRepository) IsVIP(ctx context.Context, id int64) (bool, error) {
	vip, _, err := r.flags(ctx, id)
	return vip, err
}

func (r *UserRepository) IsAdmin(ctx context.Context, id int64) (bool, error) {
	_, admin, err := r.flags(ctx, id)
	return admin, err
}
