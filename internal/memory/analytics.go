package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/live-service/internal/domain"
)

const defaultRetention = time.Hour

type AnalyticsStore struct {
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	events map[domain.AnalyticsKind][]time.Time
	totals map[string]*domain.RoomTotals
}

type AnalyticsOption func(*AnalyticsStore)

// WithAnalyticsClock replaces the clock used to stamp events recorded
// without an explicit time.
func WithAnalyticsClock(now func() time.Time) AnalyticsOption {
	return func(s *AnalyticsStore) { s.now = now }
}

// NewAnalyticsStore keeps raw events for retention; room totals are kept
// forever.
func NewAnalyticsStore(retention time.Duration, opts ...AnalyticsOption) *AnalyticsStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	s := &AnalyticsStore{
		retention: retention,
		now:       time.Now,
		events:    make(map[domain.AnalyticsKind][]time.Time),
		totals:    make(map[string]*domain.RoomTotals),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores ev. An event without At is stamped under the store lock, so
// a concurrent count either sees it or it lands after that count's bound.
func (s *AnalyticsStore) Record(_ context.Context, ev domain.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.At.IsZero() {
		ev.At = s.now()
	}

	// events may arrive out of time order, so filter rather than cut a prefix
	horizon := ev.At.Add(-s.retention)
	ts := s.events[ev.Kind]
	kept := ts[:0]
	for _, at := range ts {
		if !at.Before(horizon) {
			kept = append(kept, at)
		}
	}
	s.events[ev.Kind] = append(kept, ev.At)

	if ev.RoomID == "" {
		return nil
	}
	t, ok := s.totals[ev.RoomID]
	if !ok {
		t = &domain.RoomTotals{}
		s.totals[ev.RoomID] = t
	}
	switch ev.Kind {
	case domain.ViewerJoined:
		t.Viewers++
	case domain.ChatSent:
		t.Chats++
	case domain.GiftSent:
		t.Gifts++
		t.Revenue += ev.Value
	case domain.DanmuSent:
		t.Danmus++
	}
	return nil
}

// CountBetween counts events of kind with from <= At < to.
func (s *AnalyticsStore) CountBetween(_ context.Context, kind domain.AnalyticsKind, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, at := range s.events[kind] {
		if !at.Before(from) && at.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *AnalyticsStore) RoomTotals(_ context.Context, roomID string) (domain.RoomTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.totals[roomID]; ok {
		return *t, nil
	}
	return domain.RoomTotals{}, nil
}
