package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Save(ctx context.Context, roomID string, userID int64, text string, replyTo *string) (*domain.ChatMessage, error) {
	row := r.db.QueryRow(ctx, querySaveMessage, roomID, userID, text, replyTo)

	var m domain.ChatMessage
	if err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Text, &m.ReplyTo, &m.CreatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &m, nil
}

// History возвращает историю сообщений комнаты с курсорной пагинацией (created_at,id DESC).
func (r *ChatRepository) History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error) {
	limit = domain.ClampLimit(limit, 50, 100)
	cur, err := domain.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, queryMessagePage, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Text, &m.ReplyTo, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapPgError(err)
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := domain.EncodeCursor(domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return out, next, nil
}
