package memory

import (
	"context"
	"sync"

	"github.com/cwrk-planet/live-service/internal/domain"
)

const ledgerStripes = 64

// Ledger keeps wallets in memory. Every wallet belongs to one of a fixed set
// of lock stripes; a transfer holds the stripes of both parties, taken in
// stripe order, for the whole debit/credit/append sequence.
type Ledger struct {
	stripes [ledgerStripes]sync.Mutex

	mu      sync.RWMutex // guards the wallets map, not the wallets
	wallets map[int64]*domain.Wallet

	logMu sync.RWMutex
	log   []domain.GiftTransaction
}

func NewLedger() *Ledger {
	return &Ledger{wallets: make(map[int64]*domain.Wallet)}
}

func stripe(userID int64) int {
	i := userID % ledgerStripes
	if i < 0 {
		i = -i
	}
	return int(i)
}

func (l *Ledger) wallet(userID int64) *domain.Wallet {
	l.mu.RLock()
	w, ok := l.wallets[userID]
	l.mu.RUnlock()
	if ok {
		return w
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.wallets[userID]; !ok {
		w = &domain.Wallet{UserID: userID}
		l.wallets[userID] = w
	}
	return w
}

func (l *Ledger) lockPair(a, b int64) func() {
	i, j := stripe(a), stripe(b)
	if i > j {
		i, j = j, i
	}
	l.stripes[i].Lock()
	if i != j {
		l.stripes[j].Lock()
	}
	return func() {
		if i != j {
			l.stripes[j].Unlock()
		}
		l.stripes[i].Unlock()
	}
}

func (l *Ledger) Balance(_ context.Context, userID int64) (domain.Wallet, error) {
	mu := &l.stripes[stripe(userID)]
	mu.Lock()
	defer mu.Unlock()
	return *l.wallet(userID), nil
}

func (l *Ledger) Transfer(_ context.Context, tx *domain.GiftTransaction) error {
	unlock := l.lockPair(tx.SenderID, tx.ReceiverID)
	defer unlock()

	sender := l.wallet(tx.SenderID)
	if sender.Balance < tx.TotalPrice {
		return domain.ErrInsufficientFunds
	}
	receiver := l.wallet(tx.ReceiverID)

	sender.Balance -= tx.TotalPrice
	sender.TotalSpent += tx.TotalPrice
	receiver.Balance += tx.TotalPrice
	receiver.TotalReceived += tx.TotalPrice

	l.logMu.Lock()
	l.log = append(l.log, *tx)
	l.logMu.Unlock()
	return nil
}

func (l *Ledger) Recharge(_ context.Context, userID, amount int64) (domain.Wallet, error) {
	if amount <= 0 {
		return domain.Wallet{}, domain.ErrInvalidAmount
	}
	mu := &l.stripes[stripe(userID)]
	mu.Lock()
	defer mu.Unlock()
	w := l.wallet(userID)
	w.Balance += amount
	return *w, nil
}

// Transactions returns the newest records the user sent or received.
func (l *Ledger) Transactions(_ context.Context, userID int64, limit int) ([]domain.GiftTransaction, error) {
	l.logMu.RLock()
	defer l.logMu.RUnlock()

	var out []domain.GiftTransaction
	for i := len(l.log) - 1; i >= 0; i-- {
		tx := l.log[i]
		if tx.SenderID != userID && tx.ReceiverID != userID {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
