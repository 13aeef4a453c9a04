package payout

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	payouts map[string]Payout
}

// NewMemoryRepository constructs an in-memory payout store.
func NewMemoryRepository() Repository {
	return &memoryRepository{payouts: make(map[string]Payout)}
}

func (r *memoryRepository) Create(_ context.Context, p Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payouts {
		if existing.UserID == p.UserID && existing.Status.IsActive() {
			return ErrActivePayout
		}
	}
	r.payouts[p.ID] = p
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payouts[id]
	if !ok {
		return Payout{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) GetByGatewayID(_ context.Context, gatewayPayoutID string) (Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payouts {
		if gatewayPayoutID != "" && p.GatewayPayoutID == gatewayPayoutID {
			return p, nil
		}
	}
	return Payout{}, ErrNotFound
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Payout, error) {
	return r.filter(func(p Payout) bool { return p.UserID == userID }), nil
}

func (r *memoryRepository) Active(_ context.Context, userID string) ([]Payout, error) {
	return r.filter(func(p Payout) bool { return p.UserID == userID && p.Status.IsActive() }), nil
}

func (r *memoryRepository) Update(_ context.Context, p Payout, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.payouts[p.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrStatusConflict
	}
	r.payouts[p.ID] = p
	return nil
}

func (r *memoryRepository) filter(keep func(Payout) bool) []Payout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Payout
	for _, p := range r.payouts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
