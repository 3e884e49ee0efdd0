package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

const DefaultInterval = 5 * time.Second

type RoomCounter interface {
	ActiveRooms(ctx context.Context) (int64, error)
}

type EventCounter interface {
	CountBetween(ctx context.Context, kind domain.AnalyticsKind, from, to time.Time) (int64, error)
}

type Publisher interface {
	Publish(topic string, kind bus.Kind, payload any) bus.Event
}

// Aggregator publishes a MetricsSnapshot on the global metrics topic every
// interval. A tick whose reads fail publishes nothing.
type Aggregator struct {
	rooms     RoomCounter
	analytics EventCounter
	pub       Publisher

	interval time.Duration
	window   time.Duration // 0: since the previous snapshot
	settle   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	last   time.Time
	latest *domain.MetricsSnapshot
}

type Option func(*Aggregator)

func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithWindow switches from "since the previous snapshot" to a fixed
// trailing window.
func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithSettle ends each window d before the tick so events still in flight
// to a remote store land in the next window instead of none.
func WithSettle(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.settle = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func New(rooms RoomCounter, analytics EventCounter, pub Publisher, opts ...Option) *Aggregator {
	a := &Aggregator{
		rooms:     rooms,
		analytics: analytics,
		pub:       pub,
		interval:  DefaultInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.last = a.now().Add(-a.settle)
	return a
}

// Run ticks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	t := time.NewTicker(a.interval)
	defer t.Stop()

	slog.Info("metrics aggregator started",
		"interval", a.interval.String(), "window", a.window.String(), "settle", a.settle.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("metrics aggregator stopped")
			return nil
		case <-t.C:
			if _, err := a.Tick(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("metrics tick skipped", slog.Any("err", err))
			}
		}
	}
}

// Tick takes one reading and publishes it. Either every value is read and
// one snapshot goes out, or an error is returned and nothing is published.
func (a *Aggregator) Tick(ctx context.Context) (domain.MetricsSnapshot, error) {
	now := a.now()
	until := now.Add(-a.settle)

	// windows are half-open [since, until) and chain, so each event falls in
	// exactly one snapshot
	a.mu.Lock()
	since := a.last
	a.mu.Unlock()
	if a.window > 0 {
		since = until.Add(-a.window)
	}

	active, err := a.rooms.ActiveRooms(ctx)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("active rooms: %w", err)
	}

	counts := make(map[domain.AnalyticsKind]int64, 4)
	for _, kind := range []domain.AnalyticsKind{domain.ViewerJoined, domain.ChatSent, domain.GiftSent, domain.DanmuSent} {
		n, err := a.analytics.CountBetween(ctx, kind, since, until)
		if err != nil {
			return domain.MetricsSnapshot{}, fmt.Errorf("count %s: %w", kind, err)
		}
		counts[kind] = n
	}

	if err := ctx.Err(); err != nil {
		return domain.MetricsSnapshot{}, err
	}

	snap := domain.MetricsSnapshot{
		ActiveRooms: active,
		Viewers:     counts[domain.ViewerJoined],
		Chats:       counts[domain.ChatSent],
		Gifts:       counts[domain.GiftSent],
		Danmus:      counts[domain.DanmuSent],
		WindowStart: since.UTC(),
		Timestamp:   now.UTC(),
	}

	a.mu.Lock()
	a.last = until
	a.latest = &snap
	a.mu.Unlock()

	a.pub.Publish(bus.MetricsTopic, bus.KindMetricsSnapshot, snap)
	return snap, nil
}

// Latest returns the last published snapshot, if any.
func (a *Aggregator) Latest() (domain.MetricsSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return domain.MetricsSnapshot{}, false
	}
	return *a.latest, true
}
