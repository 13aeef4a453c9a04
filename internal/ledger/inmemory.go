package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	currency     string
	wallets      map[string]Wallet
	transactions []Transaction
	keys         map[string]struct{}
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests and dev mode.
func NewInMemory(currency string) Store {
	return &inMemoryStore{
		currency: currency,
		wallets:  make(map[string]Wallet),
		keys:     make(map[string]struct{}),
	}
}

func (s *inMemoryStore) PostTransaction(ctx context.Context, entry Entry) (Transaction, error) {
	txs, err := s.Post(ctx, entry)
	if err != nil {
		return Transaction{}, err
	}
	return txs[0], nil
}

func (s *inMemoryStore) Post(_ context.Context, entries ...Entry) ([]Transaction, error) {
	if len(entries) == 0 {
		return nil, ErrInvalidEntry
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := e.dedupeKey()
		if key == "" {
			continue
		}
		if _, exists := s.keys[key]; exists {
			return nil, ErrDuplicateTransaction
		}
		if _, exists := batch[key]; exists {
			return nil, ErrDuplicateTransaction
		}
		batch[key] = struct{}{}
	}

	now := time.Now().UTC()
	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		w, ok := s.wallets[e.UserID]
		if !ok {
			w = Wallet{UserID: e.UserID, Currency: s.currency, CreatedAt: now}
		}
		w.Balance = w.Balance.Add(e.Amount)
		w.UpdatedAt = now
		s.wallets[e.UserID] = w

		t := Transaction{
			ID:            uuid.NewString(),
			UserID:        e.UserID,
			Type:          e.Type,
			Amount:        e.Amount,
			Description:   e.Description,
			ReferenceID:   e.ReferenceID,
			ReferenceType: e.ReferenceType,
			CreatedAt:     now,
		}
		s.transactions = append(s.transactions, t)
		out = append(out, t)
	}
	for key := range batch {
		s.keys[key] = struct{}{}
	}
	return out, nil
}

func (s *inMemoryStore) Wallet(_ context.Context, userID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallets[userID].Balance, nil
}

func (s *inMemoryStore) Transactions(_ context.Context, userID string, limit, offset int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			out = append(out, s.transactions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *inMemoryStore) VerifyIntegrity(_ context.Context, userID string) (IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	computed := decimal.Zero
	for _, t := range s.transactions {
		if t.UserID == userID {
			computed = computed.Add(t.Amount)
		}
	}
	return newReport(userID, s.wallets[userID].Balance, computed), nil
}
