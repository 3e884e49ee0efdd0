package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type DanmuRepository struct {
	db *pgxpool.Pool
}

func NewDanmuRepository(db *pgxpool.Pool) *DanmuRepository {
	return &DanmuRepository{db: db}
}

func (r *DanmuRepository) Create(ctx context.Context, d *domain.Danmu) error {
	err := r.db.QueryRow(ctx, queryInsertDanmu,
		d.RoomID, d.UserID, d.Content,
		d.Style.Color, string(d.Style.Size), string(d.Style.Position), d.Style.FontSize, d.Style.FontFamily,
		d.Style.BackgroundColor, d.Style.BorderColor,
		d.IsVIP, d.CreatedAt,
	).Scan(&d.ID, &d.CreatedAt)
	return mapPgError(err)
}

func (r *DanmuRepository) Get(ctx context.Context, id int64) (*domain.Danmu, error) {
	d, err := scanDanmu(r.db.QueryRow(ctx, queryGetDanmu, id))
	if err != nil {
		return nil, mapPgError(err, domain.ErrDanmuNotFound)
	}
	return d, nil
}

func (r *DanmuRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, queryDelDanmu, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrDanmuNotFound
	}
	return nil
}

// History возвращает danmu комнаты с курсорной пагинацией (created_at,id DESC).
func (r *DanmuRepository) History(ctx context.Context, roomID, after string, limit int) ([]domain.Danmu, string, error) {
	limit = domain.ClampLimit(limit, 50, 100)
	cur, err := domain.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		n, err := strconv.ParseInt(cur.ID, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: id %q", domain.ErrInvalidCursor, cur.ID)
		}
		createdAt, id = cur.CreatedAt, n
	}

	rows, err := r.db.Query(ctx, queryDanmuPage, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	defer rows.Close()

	var out []domain.Danmu
	for rows.Next() {
		d, err := scanDanmu(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapPgError(err)
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		next, _ = domain.EncodeCursor(domain.Cursor{CreatedAt: last.CreatedAt, ID: strconv.FormatInt(last.ID, 10)})
	}
	return out, next, nil
}

func (r *DanmuRepository) Popular(ctx context.Context, roomID string, since time.Time, limit int) ([]domain.PopularDanmu, error) {
	rows, err := r.db.Query(ctx, queryPopularDanmu, roomID, since, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.PopularDanmu
	for rows.Next() {
		var p domain.PopularDanmu
		if err := rows.Scan(&p.Content, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapPgError(rows.Err())
}

func scanDanmu(row pgx.Row) (*domain.Danmu, error) {
	var (
		d        domain.Danmu
		size     string
		position string
	)
	err := row.Scan(&d.ID, &d.RoomID, &d.UserID, &d.Content,
		&d.Style.Color, &size, &position, &d.Style.FontSize, &d.Style.FontFamily,
		&d.Style.BackgroundColor, &d.Style.BorderColor,
		&d.IsVIP, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Style.Size = domain.DanmuSize(size)
	d.Style.Position = domain.DanmuPosition(position)
	return &d, nil
}
