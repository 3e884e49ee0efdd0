package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cwrk-planet/live-service/internal/domain"
)

type GiftCatalog struct {
	mu    sync.RWMutex
	gifts map[int64]domain.Gift
}

func NewGiftCatalog(gifts ...domain.Gift) *GiftCatalog {
	c := &GiftCatalog{gifts: make(map[int64]domain.Gift)}
	for _, g := range gifts {
		c.gifts[g.ID] = g
	}
	return c
}

func (c *GiftCatalog) Put(g domain.Gift) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gifts[g.ID] = g
}

func (c *GiftCatalog) UnitPrice(_ context.Context, giftID int64) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.gifts[giftID]
	if !ok {
		return 0, domain.ErrGiftNotFound
	}
	return g.Price, nil
}

// List returns the catalog ordered by price.
func (c *GiftCatalog) List(context.Context) ([]domain.Gift, error) {
	c.mu.RLock()
	out := make([]domain.Gift, 0, len(c.gifts))
	for _, g := range c.gifts {
		out = append(out, g)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].ID < out[j].ID
		}
		return out[i].Price < out[j].Price
	})
	return out, nil
}

// DefaultGifts seeds the catalog of a fresh deployment.
func DefaultGifts() []domain.Gift {
	return []domain.Gift{
		{ID: 1, Name: "Flower", Price: 1, Icon: "flower"},
		{ID: 2, Name: "Heart", Price: 5, Icon: "heart"},
		{ID: 3, Name: "Cake", Price: 20, Icon: "cake"},
		{ID: 4, Name: "Car", Price: 100, Icon: "car"},
		{ID: 5, Name: "Rocket", Price: 500, Icon: "rocket"},
	}
}
