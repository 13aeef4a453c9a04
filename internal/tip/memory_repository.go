package tip

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu   sync.RWMutex
	tips map[string]Tip
}

// NewMemoryRepository constructs an in-memory tip store.
func NewMemoryRepository() Repository {
	return &memoryRepository{tips: make(map[string]Tip)}
}

func (r *memoryRepository) Create(_ context.Context, t Tip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tips[t.ID] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Tip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tips[id]
	if !ok {
		return Tip{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryRepository) GetByChargeID(_ context.Context, chargeID string) (Tip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tips {
		if chargeID != "" && t.GatewayChargeID == chargeID {
			return t, nil
		}
	}
	return Tip{}, ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, t Tip, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tips[t.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrStatusConflict
	}
	r.tips[t.ID] = t
	return nil
}
