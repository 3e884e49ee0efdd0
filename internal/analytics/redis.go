// Package analytics stores analytics events in Redis: one sorted set per
// event kind scored by unix milliseconds, plus a hash of cumulative totals
// per room.
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/live-service/internal/domain"
)

const (
	DefaultRetention = time.Hour
	keyPrefix        = "live:analytics"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
}

// NewClient connects and pings so misconfiguration fails at startup.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type Store struct {
	client    *redis.Client
	retention time.Duration
}

func NewStore(client *redis.Client, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{client: client, retention: retention}
}

func eventsKey(kind domain.AnalyticsKind) string {
	return fmt.Sprintf("%s:events:%s", keyPrefix, kind)
}

func totalsKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:totals", keyPrefix, roomID)
}

var totalsField = map[domain.AnalyticsKind]string{
	domain.ViewerJoined: "viewers",
	domain.ChatSent:     "chats",
	domain.GiftSent:     "gifts",
	domain.DanmuSent:    "danmus",
}

// Record appends the event and trims entries older than the retention.
func (s *Store) Record(ctx context.Context, ev domain.AnalyticsEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	key := eventsKey(ev.Kind)
	score := float64(ev.At.UnixMilli())
	horizon := strconv.FormatInt(ev.At.Add(-s.retention).UnixMilli(), 10)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: score, Member: uuid.NewString()})
		p.ZRemRangeByScore(ctx, key, "-inf", "("+horizon)
		if ev.RoomID == "" {
			return nil
		}
		if field, ok := totalsField[ev.Kind]; ok {
			p.HIncrBy(ctx, totalsKey(ev.RoomID), field, 1)
		}
		if ev.Kind == domain.GiftSent && ev.Value != 0 {
			p.HIncrBy(ctx, totalsKey(ev.RoomID), "revenue", ev.Value)
		}
		return nil
	})
	if err != nil {
		return unavailable("record", err)
	}
	return nil
}

// CountBetween counts events of kind with from <= At < to at millisecond
// resolution. Adjacent windows sharing a bound never count an event twice.
func (s *Store) CountBetween(ctx context.Context, kind domain.AnalyticsKind, from, to time.Time) (int64, error) {
	lo := strconv.FormatInt(from.UnixMilli(), 10)
	hi := "(" + strconv.FormatInt(to.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, eventsKey(kind), lo, hi).Result()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *Store) RoomTotals(ctx context.Context, roomID string) (domain.RoomTotals, error) {
	m, err := s.client.HGetAll(ctx, totalsKey(roomID)).Result()
	if err != nil {
		return domain.RoomTotals{}, unavailable("totals", err)
	}
	get := func(f string) int64 {
		n, _ := strconv.ParseInt(m[f], 10, 64)
		return n
	}
	return domain.RoomTotals{
		Viewers: get("viewers"),
		Chats:   get("chats"),
		Gifts:   get("gifts"),
		Danmus:  get("danmus"),
		Revenue: get("revenue"),
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("analytics %s: %w: %v", op, domain.ErrUnavailable, err)
}
