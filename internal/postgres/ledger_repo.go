package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type GiftRepository struct {
	db *pgxpool.Pool
}

func NewGiftRepository(db *pgxpool.Pool) *GiftRepository {
	return &GiftRepository{db: db}
}

func (r *GiftRepository) UnitPrice(ctx context.Context, giftID int64) (int64, error) {
	var price int64
	if err := r.db.QueryRow(ctx, queryGiftPrice, giftID).Scan(&price); err != nil {
		return 0, mapPgError(err, domain.ErrGiftNotFound)
	}
	return price, nil
}

func (r *GiftRepository) List(ctx context.Context) ([]domain.Gift, error) {
	rows, err := r.db.Query(ctx, queryListGifts)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.Gift
	for rows.Next() {
		var g domain.Gift
		if err := rows.Scan(&g.ID, &g.Name, &g.Price, &g.Icon, &g.Description); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, mapPgError(rows.Err())
}

// LedgerRepository keeps wallets and the gift transaction log.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (domain.Wallet, error) {
	w, err := getWallet(ctx, r.db, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return domain.Wallet{}, mapPgError(err)
	}
	return w, nil
}

// Transfer — одна транзакция: обе строки кошельков блокируются FOR UPDATE в
// порядке user_id, баланс перепроверяется под блокировкой.
func (r *LedgerRepository) Transfer(ctx context.Context, gt *domain.GiftTransaction) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)

	if err := transfer(ctx, tx, gt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", mapPgError(err))
	}
	return nil
}

func transfer(ctx context.Context, q querier, gt *domain.GiftTransaction) error {
	ids := []int64{gt.SenderID, gt.ReceiverID}
	if _, err := q.Exec(ctx, queryEnsureWallets, ids); err != nil {
		return mapPgError(err)
	}

	rows, err := q.Query(ctx, queryLockWallets, ids)
	if err != nil {
		return mapPgError(err)
	}
	balances := make(map[int64]int64, 2)
	for rows.Next() {
		var id, balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return err
		}
		balances[id] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapPgError(err)
	}

	if balances[gt.SenderID] < gt.TotalPrice {
		return domain.ErrInsufficientFunds
	}

	if _, err := q.Exec(ctx, queryDebitWallet, gt.SenderID, gt.TotalPrice); err != nil {
		return mapPgError(err)
	}
	if _, err := q.Exec(ctx, queryCreditWallet, gt.ReceiverID, gt.TotalPrice); err != nil {
		return mapPgError(err)
	}
	_, err = q.Exec(ctx, queryInsertGiftTx,
		gt.ID, gt.SenderID, gt.ReceiverID, gt.GiftID, gt.RoomID,
		gt.Quantity, gt.UnitPrice, gt.TotalPrice, gt.Message, gt.CreatedAt)
	return mapPgError(err)
}

func (r *LedgerRepository) Recharge(ctx context.Context, userID, amount int64) (domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx, queryRecharge, userID, amount).
		Scan(&w.UserID, &w.Balance, &w.TotalSpent, &w.TotalReceived)
	if err != nil {
		return domain.Wallet{}, mapPgError(err)
	}
	return w, nil
}

func (r *LedgerRepository) Transactions(ctx context.Context, userID int64, limit int) ([]domain.GiftTransaction, error) {
	rows, err := r.db.Query(ctx, queryListGiftTx, userID, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.GiftTransaction
	for rows.Next() {
		var t domain.GiftTransaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.GiftID, &t.RoomID,
			&t.Quantity, &t.UnitPrice, &t.TotalPrice, &t.Message, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapPgError(rows.Err())
}

func getWallet(ctx context.Context, q querier, userID int64) (domain.Wallet, error) {
	var w domain.Wallet
	err := q.QueryRow(ctx, queryGetWallet, userID).
		Scan(&w.UserID, &w.Balance, &w.TotalSpent, &w.TotalReceived)
	return w, err
}
