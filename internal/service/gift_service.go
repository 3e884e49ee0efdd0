package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwrk-planet/live-service/internal/bus"
	"github.com/cwrk-planet/live-service/internal/domain"
)

const (
	MaxGiftQuantity      = 9999
	MaxGiftMessageLength = 255
)

type GiftCatalog interface {
	UnitPrice(ctx context.Context, giftID int64) (int64, error)
	List(ctx context.Context) ([]domain.Gift, error)
}

// Ledger owns wallets and the transaction log. Transfer debits the sender,
// credits the receiver and appends tx as one atomic unit, re-checking the
// sender balance under the same lock; it returns ErrInsufficientFunds
// without side effects.
type Ledger interface {
	Balance(ctx context.Context, userID int64) (domain.Wallet, error)
	Transfer(ctx context.Context, tx *domain.GiftTransaction) error
	Recharge(ctx context.Context, userID, amount int64) (domain.Wallet, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]domain.GiftTransaction, error)
}

type GiftRequest struct {
	ReceiverID int64  `json:"receiver_id" validate:"required,gt=0"`
	GiftID     int64  `json:"gift_id" validate:"required,gt=0"`
	RoomID     string `json:"room_id" validate:"required"`
	Quantity   int64  `json:"quantity"`
	Message    string `json:"message" validate:"max=255"`
}

// GiftReceivedPayload is broadcast to the room after a committed transfer.
type GiftReceivedPayload struct {
	domain.GiftTransaction
}

type GiftResult struct {
	Transaction *domain.GiftTransaction `json:"transaction"`
	Balance     int64                   `json:"balance"`
}

type GiftService struct {
	catalog   GiftCatalog
	rooms     RoomStore
	ledger    Ledger
	pub       Publisher
	analytics Recorder
	tracer    trace.Tracer
}

func NewGiftService(catalog GiftCatalog, rooms RoomStore, ledger Ledger, pub Publisher, analytics Recorder) *GiftService {
	return &GiftService{
		catalog:   catalog,
		rooms:     rooms,
		ledger:    ledger,
		pub:       pub,
		analytics: analytics,
		tracer:    otel.Tracer("github.com/cwrk-planet/live-service/internal/service"),
	}
}

// Send moves total = unit price * quantity from sender to receiver and
// announces it to the room. Nothing is broadcast unless the ledger commit
// succeeded.
func (s *GiftService) Send(ctx context.Context, senderID int64, req GiftRequest) (res *GiftResult, err error) {
	ctx, span := s.tracer.Start(ctx, "GiftService.Send", trace.WithAttributes(
		attribute.Int64("gift.sender_id", senderID),
		attribute.Int64("gift.receiver_id", req.ReceiverID),
		attribute.Int64("gift.id", req.GiftID),
		attribute.String("room.id", req.RoomID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if senderID == 0 {
		return nil, domain.ErrAnonymous
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > MaxGiftQuantity {
		return nil, domain.ErrInvalidQuantity
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if senderID == req.ReceiverID {
		return nil, domain.ErrSelfGift
	}
	if _, err := s.rooms.Get(ctx, req.RoomID); err != nil {
		return nil, fmt.Errorf("rooms.Get: %w", err)
	}

	price, err := s.catalog.UnitPrice(ctx, req.GiftID)
	if err != nil {
		return nil, fmt.Errorf("catalog.UnitPrice: %w", err)
	}
	if price <= 0 || price > math.MaxInt64/req.Quantity {
		return nil, domain.Validationf("gift total out of range")
	}
	total := price * req.Quantity

	wallet, err := s.ledger.Balance(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Balance: %w", err)
	}
	if wallet.Balance < total {
		return nil, domain.ErrInsufficientFunds
	}

	tx := &domain.GiftTransaction{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		GiftID:     req.GiftID,
		RoomID:     req.RoomID,
		Quantity:   req.Quantity,
		UnitPrice:  price,
		TotalPrice: total,
		Message:    req.Message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.ledger.Transfer(ctx, tx); err != nil {
		return nil, fmt.Errorf("ledger.Transfer: %w", err)
	}
	span.SetAttributes(attribute.Int64("gift.total", total))

	s.pub.Publish(bus.RoomTopic(req.RoomID), bus.KindGiftReceived, GiftReceivedPayload{*tx})
	record(ctx, s.analytics, domain.AnalyticsEvent{
		Kind:   domain.GiftSent,
		UserID: senderID,
		RoomID: req.RoomID,
		Value:  total,
	})

	res = &GiftResult{Transaction: tx, Balance: wallet.Balance - total}
	if after, err := s.ledger.Balance(ctx, senderID); err == nil {
		res.Balance = after.Balance
	}
	return res, nil
}

func (s *GiftService) Catalog(ctx context.Context) ([]domain.Gift, error) {
	return s.catalog.List(ctx)
}

func (s *GiftService) Balance(ctx context.Context, userID int64) (domain.Wallet, error) {
	if userID == 0 {
		return domain.Wallet{}, domain.ErrAnonymous
	}
	return s.ledger.Balance(ctx, userID)
}

// Recharge tops up a wallet. There is no payment integration behind it.
func (s *GiftService) Recharge(ctx context.Context, userID, amount int64) (domain.Wallet, error) {
	if userID == 0 {
		return domain.Wallet{}, domain.ErrAnonymous
	}
	if amount <= 0 {
		return domain.Wallet{}, domain.ErrInvalidAmount
	}
	return s.ledger.Recharge(ctx, userID, amount)
}

func (s *GiftService) Transactions(ctx context.Context, userID int64, limit int) ([]domain.GiftTransaction, error) {
	if userID == 0 {
		return nil, domain.ErrAnonymous
	}
	return s.ledger.Transactions(ctx, userID, domain.ClampLimit(limit, 20, 100))
}
