package viewer

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/live-service/internal/domain"
)

// Overlay holds the danmu currently on screen. Each danmu gets one removal
// timer for its display lifetime; a danmu_deleted cancels it early.
type Overlay struct {
	mu    sync.Mutex
	items map[int64]*shown

	onExpire func(domain.Danmu)
}

type shown struct {
	danmu domain.Danmu
	timer *time.Timer
}

func NewOverlay(onExpire func(domain.Danmu)) *Overlay {
	return &Overlay{items: make(map[int64]*shown), onExpire: onExpire}
}

func (o *Overlay) Show(d domain.Danmu, display time.Duration) {
	if display <= 0 {
		display = domain.DefaultDanmuDisplay
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.items[d.ID]; ok {
		old.timer.Stop()
	}
	s := &shown{danmu: d}
	s.timer = time.AfterFunc(display, func() { o.expire(d.ID, s) })
	o.items[d.ID] = s
}

// Remove takes a danmu off screen before its lifetime ends.
func (o *Overlay) Remove(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.items[id]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(o.items, id)
	return true
}

// Active returns the visible danmu, oldest first.
func (o *Overlay) Active() []domain.Danmu {
	o.mu.Lock()
	out := make([]domain.Danmu, 0, len(o.items))
	for _, s := range o.items {
		out = append(out, s.danmu)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Close stops every pending timer.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, s := range o.items {
		s.timer.Stop()
		delete(o.items, id)
	}
}

func (o *Overlay) expire(id int64, s *shown) {
	o.mu.Lock()
	cur, ok := o.items[id]
	if !ok || cur != s {
		// уже удалён или показан заново
		o.mu.Unlock()
		return
	}
	delete(o.items, id)
	o.mu.Unlock()

	if o.onExpire != nil {
		o.onExpire(s.danmu)
	}
}
