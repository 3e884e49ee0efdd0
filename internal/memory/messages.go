package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/live-service/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type ChatStore struct {
	mu   sync.RWMutex
	msgs map[string][]domain.ChatMessage // roomID -> oldest first
}

func NewChatStore() *ChatStore {
	return &ChatStore{msgs: make(map[string][]domain.ChatMessage)}
}

func (s *ChatStore) Save(_ context.Context, roomID string, userID int64, text string, replyTo *string) (*domain.ChatMessage, error) {
	m := domain.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		Text:      text,
		ReplyTo:   replyTo,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.msgs[roomID] = append(s.msgs[roomID], m)
	s.mu.Unlock()
	return &m, nil
}

func (s *ChatStore) History(_ context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error) {
	limit = domain.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit)
	cur, err := domain.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	all := append([]domain.ChatMessage(nil), s.msgs[roomID]...)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return newer(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID)
	})

	var out []domain.ChatMessage
	for _, m := range all {
		if cur != nil && !newer(cur.CreatedAt, cur.ID, m.CreatedAt, m.ID) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		next, _ = domain.EncodeCursor(domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return out, next, nil
}

// newer orders by (created_at, id) descending.
func newer(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return compareIDs(id, otherID) > 0
}

// compareIDs compares numeric ids numerically and everything else as text.
func compareIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

type DanmuStore struct {
	mu     sync.RWMutex
	seq    int64
	danmus map[int64]domain.Danmu
}

func NewDanmuStore() *DanmuStore {
	return &DanmuStore{danmus: make(map[int64]domain.Danmu)}
}

func (s *DanmuStore) Create(_ context.Context, d *domain.Danmu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	d.ID = s.seq
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.danmus[d.ID] = *d
	return nil
}

func (s *DanmuStore) Get(_ context.Context, id int64) (*domain.Danmu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.danmus[id]
	if !ok {
		return nil, domain.ErrDanmuNotFound
	}
	return &d, nil
}

func (s *DanmuStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.danmus[id]; !ok {
		return domain.ErrDanmuNotFound
	}
	delete(s.danmus, id)
	return nil
}

func (s *DanmuStore) History(_ context.Context, roomID, after string, limit int) ([]domain.Danmu, string, error) {
	limit = domain.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit)
	cur, err := domain.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	all := s.room(roomID)
	sort.Slice(all, func(i, j int) bool {
		return newer(all[i].CreatedAt, strconv.FormatInt(all[i].ID, 10), all[j].CreatedAt, strconv.FormatInt(all[j].ID, 10))
	})

	var out []domain.Danmu
	for _, d := range all {
		if cur != nil && !newer(cur.CreatedAt, cur.ID, d.CreatedAt, strconv.FormatInt(d.ID, 10)) {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		next, _ = domain.EncodeCursor(domain.Cursor{CreatedAt: last.CreatedAt, ID: strconv.FormatInt(last.ID, 10)})
	}
	return out, next, nil
}

func (s *DanmuStore) Popular(_ context.Context, roomID string, since time.Time, limit int) ([]domain.PopularDanmu, error) {
	counts := make(map[string]int64)
	for _, d := range s.room(roomID) {
		if !d.CreatedAt.Before(since) {
			counts[d.Content]++
		}
	}
	out := make([]domain.PopularDanmu, 0, len(counts))
	for content, n := range counts {
		out = append(out, domain.PopularDanmu{Content: content, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Content < out[j].Content
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DanmuStore) room(roomID string) []domain.Danmu {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Danmu
	for _, d := range s.danmus {
		if d.RoomID == roomID {
			out = append(out, d)
		}
	}
	return out
}
