package viewer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/live-service/internal/domain"
)

func TestOverlay_ExpiresAfterDisplay(t *testing.T) {
	var expired atomic.Int64
	o := NewOverlay(func(d domain.Danmu) { expired.Store(d.ID) })
	defer o.Close()

	o.Show(domain.Danmu{ID: 1, Content: "a"}, 20*time.Millisecond)
	assert.Equal(t, 1, o.Len())

	require.Eventually(t, func() bool { return o.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), expired.Load())
}

func TestOverlay_RemoveCancelsTimer(t *testing.T) {
	var calls atomic.Int32
	o := NewOverlay(func(domain.Danmu) { calls.Add(1) })
	defer o.Close()

	o.Show(domain.Danmu{ID: 1}, 20*time.Millisecond)
	assert.True(t, o.Remove(1))
	assert.False(t, o.Remove(1))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestOverlay_ReshowRestartsLifetime(t *testing.T) {
	o := NewOverlay(nil)
	defer o.Close()

	o.Show(domain.Danmu{ID: 1}, 20*time.Millisecond)
	o.Show(domain.Danmu{ID: 1}, time.Hour)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, o.Len())
}

func TestOverlay_ActiveOrder(t *testing.T) {
	o := NewOverlay(nil)
	defer o.Close()

	now := time.Now()
	o.Show(domain.Danmu{ID: 3, CreatedAt: now}, time.Hour)
	o.Show(domain.Danmu{ID: 1, CreatedAt: now.Add(-time.Second)}, time.Hour)
	o.Show(domain.Danmu{ID: 2, CreatedAt: now}, time.Hour)

	var ids []int64
	for _, d := range o.Active() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	o.Close()
	assert.Zero(t, o.Len())
}
