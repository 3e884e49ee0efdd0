package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
	"github.com/cwrk-planet/live-service/internal/memory"
)

const (
	ownerID  = int64(1)
	viewerID = int64(2)
	adminID  = int64(9)
)

type fixture struct {
	bus       *bus.Bus
	rooms     *memory.RoomStore
	users     *memory.UserStore
	danmus    *memory.DanmuStore
	ledger    *memory.Ledger
	analytics *memory.AnalyticsStore
	watcher   *bus.Subscription
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:       bus.New(),
		rooms:     memory.NewRoomStore(),
		users:     memory.NewUserStore(),
		danmus:    memory.NewDanmuStore(),
		ledger:    memory.NewLedger(),
		analytics: memory.NewAnalyticsStore(time.Hour),
	}
	f.rooms.Put(domain.Room{ID: "R", OwnerID: ownerID, IsActive: true})
	f.rooms.Put(domain.Room{ID: "OFF", OwnerID: ownerID})
	f.users.Put(domain.User{ID: adminID, IsAdmin: true})

	s, err := f.bus.Attach("watcher")
	require.NoError(t, err)
	require.NoError(t, f.bus.Subscribe(bus.RoomTopic("R"), "watcher"))
	f.watcher = s
	return f
}

func (f *fixture) events() []bus.Event {
	var out []bus.Event
	for {
		select {
		case e := <-f.watcher.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func (f *fixture) danmuService() *DanmuService {
	return NewDanmuService(f.rooms, f.users, f.danmus, f.bus, f.analytics, 0)
}

func (f *fixture) giftService() *GiftService {
	catalog := memory.NewGiftCatalog(domain.Gift{ID: 7, Name: "Car", Price: 50})
	return NewGiftService(catalog, f.rooms, f.ledger, f.bus, f.analytics)
}

func TestDanmu_ExactlyMaxLengthAccepted(t *testing.T) {
	f := newFixture(t)
	svc := f.danmuService()

	d, err := svc.Send(context.Background(), "R", viewerID, DanmuRequest{Content: strings.Repeat("弹", 500)})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, domain.DefaultDanmuColor, d.Style.Color)
	assert.Equal(t, domain.DanmuMedium, d.Style.Size)
	assert.Equal(t, domain.DanmuScroll, d.Style.Position)
	assert.Equal(t, 16, d.Style.FontSize)
	assert.Equal(t, "Arial", d.Style.FontFamily)
	assert.Equal(t, "transparent", d.Style.BackgroundColor)
	assert.Equal(t, "transparent", d.Style.BorderColor)

	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, bus.KindDanmuNew, evs[0].Kind)
	payload := evs[0].Payload.(DanmuPayload)
	assert.Equal(t, d.ID, payload.ID)
	assert.Equal(t, int64(5000), payload.DisplayMS)
}

func TestDanmu_TooLongRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	svc := f.danmuService()

	_, err := svc.Send(context.Background(), "R", viewerID, DanmuRequest{Content: strings.Repeat("a", 501)})
	assert.ErrorIs(t, err, domain.ErrContentTooLong)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, f.events())
	page, _, _ := svc.History(context.Background(), "R", "", 10)
	assert.Empty(t, page)
}

func TestDanmu_Rejections(t *testing.T) {
	f := newFixture(t)
	svc := f.danmuService()
	ctx := context.Background()

	cases := []struct {
		name string
		room string
		req  DanmuRequest
		err  error
	}{
		{"blank", "R", DanmuRequest{Content: "   "}, domain.ErrEmptyContent},
		{"unknown room", "nope", DanmuRequest{Content: "hi"}, domain.ErrRoomNotFound},
		{"not live", "OFF", DanmuRequest{Content: "hi"}, domain.ErrRoomNotLive},
		{"bad color", "R", DanmuRequest{Content: "hi", Color: "red"}, domain.ErrValidation},
		{"short color", "R", DanmuRequest{Content: "hi", Color: "#fff"}, domain.ErrValidation},
		{"bad size", "R", DanmuRequest{Content: "hi", Size: "huge"}, domain.ErrValidation},
		{"bad position", "R", DanmuRequest{Content: "hi", Position: "left"}, domain.ErrValidation},
		{"font too big", "R", DanmuRequest{Content: "hi", FontSize: 73}, domain.ErrValidation},
		{"family too long", "R", DanmuRequest{Content: "hi", FontFamily: strings.Repeat("f", 51)}, domain.ErrValidation},
		{"bad background", "R", DanmuRequest{Content: "hi", BackgroundColor: "red"}, domain.ErrValidation},
		{"bad border", "R", DanmuRequest{Content: "hi", BorderColor: "none"}, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tc.room, viewerID, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assert.Empty(t, f.events())

	_, err := svc.Send(ctx, "R", 0, DanmuRequest{Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDanmu_VIPFlag(t *testing.T) {
	f := newFixture(t)
	svc := f.danmuService()
	ctx := context.Background()
	f.users.Put(domain.User{ID: 5, IsVIP: true})

	d, err := svc.Send(ctx, "R", ownerID, DanmuRequest{Content: "owner"})
	require.NoError(t, err)
	assert.True(t, d.IsVIP)

	d, err = svc.Send(ctx, "R", 5, DanmuRequest{Content: "vip"})
	require.NoError(t, err)
	assert.True(t, d.IsVIP)

	d, err = svc.Send(ctx, "R", viewerID, DanmuRequest{
		Content: "plain", Color: "#FF0000", Size: "large", Position: "top", FontSize: 24,
		BackgroundColor: "#000000", BorderColor: "transparent",
	})
	require.NoError(t, err)
	assert.False(t, d.IsVIP)
	assert.Equal(t, domain.DanmuLarge, d.Style.Size)
	assert.Equal(t, domain.DanmuTop, d.Style.Position)
	assert.Equal(t, 24, d.Style.FontSize)
	assert.Equal(t, "#000000", d.Style.BackgroundColor)
	assert.Equal(t, "transparent", d.Style.BorderColor)
}

func TestDanmu_DeletePermissions(t *testing.T) {
	f := newFixture(t)
	svc := f.danmuService()
	ctx := context.Background()

	d, err := svc.Send(ctx, "R", viewerID, DanmuRequest{Content: "hi"})
	require.NoError(t, err)
	f.events()

	err = svc.Delete(ctx, d.ID, viewerID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, f.events())

	require.NoError(t, svc.Delete(ctx, d.ID, ownerID))
	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, bus.KindDanmuDeleted, evs[0].Kind)
	assert.Equal(t, d.ID, evs[0].Payload.(DanmuDeletedPayload).ID)

	err = svc.Delete(ctx, d.ID, ownerID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	d2, err := svc.Send(ctx, "R", viewerID, DanmuRequest{Content: "again"})
	require.NoError(t, err)
	assert.NoError(t, svc.Delete(ctx, d2.ID, adminID))
}

func TestGift_SuccessThenBroadcast(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()
	_, err := f.ledger.Recharge(ctx, viewerID, 100)
	require.NoError(t, err)

	res, err := svc.Send(ctx, viewerID, GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Balance)
	assert.Equal(t, int64(50), res.Transaction.TotalPrice)

	sender, _ := f.ledger.Balance(ctx, viewerID)
	receiver, _ := f.ledger.Balance(ctx, ownerID)
	assert.Equal(t, int64(50), sender.Balance)
	assert.Equal(t, int64(50), receiver.TotalReceived)

	txs, _ := f.ledger.Transactions(ctx, viewerID, 10)
	require.Len(t, txs, 1)

	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, bus.KindGiftReceived, evs[0].Kind)
	assert.Equal(t, txs[0].ID, evs[0].Payload.(GiftReceivedPayload).ID)

	totals, _ := f.analytics.RoomTotals(ctx, "R")
	assert.Equal(t, int64(50), totals.Revenue)
}

func TestGift_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()
	_, _ = f.ledger.Recharge(ctx, viewerID, 99)

	_, err := svc.Send(ctx, viewerID, GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R", Quantity: 2})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	sender, _ := f.ledger.Balance(ctx, viewerID)
	receiver, _ := f.ledger.Balance(ctx, ownerID)
	assert.Equal(t, int64(99), sender.Balance)
	assert.Zero(t, receiver.Balance)
	assert.Empty(t, f.events())
}

// failingLedger passes reads through and fails every transfer.
type failingLedger struct {
	*memory.Ledger
	err error
}

func (l failingLedger) Transfer(context.Context, *domain.GiftTransaction) error { return l.err }

func TestGift_LedgerFailureNoBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.ledger.Recharge(ctx, viewerID, 100)

	ledger := failingLedger{Ledger: f.ledger, err: fmt.Errorf("commit transfer: %w", domain.ErrUnavailable)}
	catalog := memory.NewGiftCatalog(domain.Gift{ID: 7, Name: "Car", Price: 50})
	svc := NewGiftService(catalog, f.rooms, ledger, f.bus, f.analytics)

	res, err := svc.Send(ctx, viewerID, GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R"})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, domain.ErrUnavailable))

	assert.Empty(t, f.events())
	totals, _ := f.analytics.RoomTotals(ctx, "R")
	assert.Zero(t, totals.Gifts)
	n, _ := f.analytics.CountBetween(ctx, domain.GiftSent, time.Time{}, time.Now().Add(time.Hour))
	assert.Zero(t, n)

	sender, _ := f.ledger.Balance(ctx, viewerID)
	assert.Equal(t, int64(100), sender.Balance)
}

func TestGift_UnknownRoomNotFound(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()
	_, _ = f.ledger.Recharge(ctx, viewerID, 100)

	_, err := svc.Send(ctx, viewerID, GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	w, _ := f.ledger.Balance(ctx, viewerID)
	assert.Equal(t, int64(100), w.Balance)
	txs, _ := f.ledger.Transactions(ctx, viewerID, 10)
	assert.Empty(t, txs)
	assert.Empty(t, f.events())
}

func TestGift_Rejections(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()
	_, _ = f.ledger.Recharge(ctx, viewerID, 1000)

	cases := []struct {
		name string
		req  GiftRequest
		err  error
	}{
		{"self", GiftRequest{ReceiverID: viewerID, GiftID: 7, RoomID: "R"}, domain.ErrSelfGift},
		{"unknown gift", GiftRequest{ReceiverID: ownerID, GiftID: 99, RoomID: "R"}, domain.ErrGiftNotFound},
		{"negative quantity", GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R", Quantity: -1}, domain.ErrInvalidQuantity},
		{"huge quantity", GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R", Quantity: 10000}, domain.ErrInvalidQuantity},
		{"no room", GiftRequest{ReceiverID: ownerID, GiftID: 7}, domain.ErrValidation},
		{"long message", GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R", Message: strings.Repeat("m", 256)}, domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, viewerID, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assert.Empty(t, f.events())
	w, _ := f.ledger.Balance(ctx, viewerID)
	assert.Equal(t, int64(1000), w.Balance)
}

func TestGift_ConcurrentSendsNoOverdraft(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()
	_, _ = f.ledger.Recharge(ctx, viewerID, 80)

	var ok, poor atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Send(ctx, viewerID, GiftRequest{ReceiverID: ownerID, GiftID: 7, RoomID: "R"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				poor.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(1), poor.Load())
	w, _ := f.ledger.Balance(ctx, viewerID)
	assert.Equal(t, int64(30), w.Balance)
	assert.Len(t, f.events(), 1)
}

func TestGift_WalletOperations(t *testing.T) {
	f := newFixture(t)
	svc := f.giftService()
	ctx := context.Background()

	_, err := svc.Recharge(ctx, viewerID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.Balance(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	w, err := svc.Recharge(ctx, viewerID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), w.Balance)

	gifts, err := svc.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, gifts, 1)
}

type failingChatStore struct{}

func (failingChatStore) Save(context.Context, string, int64, string, *string) (*domain.ChatMessage, error) {
	return nil, domain.ErrUnavailable
}

func (failingChatStore) History(context.Context, string, string, int) ([]domain.ChatMessage, string, error) {
	return nil, "", domain.ErrUnavailable
}

func TestChat_SendAndHistory(t *testing.T) {
	f := newFixture(t)
	svc := NewChatService(memory.NewChatStore(), f.bus, f.analytics, 10)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "R", viewerID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.NotEmpty(t, msg.ID)

	_, err = svc.Send(ctx, "R", viewerID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	_, err = svc.Send(ctx, "R", viewerID, strings.Repeat("x", 11))
	assert.ErrorIs(t, err, domain.ErrContentTooLong)

	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, bus.KindChatMessage, evs[0].Kind)

	page, _, err := svc.History(ctx, "R", "", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

func TestChat_StoreFailureStillBroadcasts(t *testing.T) {
	f := newFixture(t)
	svc := NewChatService(failingChatStore{}, f.bus, nil, 0)

	msg, err := svc.Send(context.Background(), "R", viewerID, "hello")
	require.NoError(t, err)
	assert.Empty(t, msg.ID)
	assert.Len(t, f.events(), 1)
}

func TestRoomService_GetRoom(t *testing.T) {
	f := newFixture(t)
	_ = f.analytics.Record(context.Background(), domain.AnalyticsEvent{Kind: domain.ViewerJoined, RoomID: "R"})
	svc := NewRoomService(f.rooms, liveCount(3), f.analytics)

	view, err := svc.GetRoom(context.Background(), "R")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Viewers)
	assert.Equal(t, int64(1), view.Totals.Viewers)

	_, err = svc.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

type liveCount int

func (c liveCount) Count(string) int { return int(c) }
