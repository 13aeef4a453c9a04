package escrow

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu         sync.RWMutex
	escrows    map[string]Escrow
	byApp      map[string]string
	milestones map[string]Milestone
}

// NewMemoryRepository constructs an in-memory repository for dev mode and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		escrows:    make(map[string]Escrow),
		byApp:      make(map[string]string),
		milestones: make(map[string]Milestone),
	}
}

func (r *memoryRepository) Create(_ context.Context, e Escrow, milestones []Milestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byApp[e.ApplicationID]; exists {
		return ErrDuplicateApplication
	}
	r.escrows[e.ID] = e
	r.byApp[e.ApplicationID] = e.ID
	for _, m := range milestones {
		r.milestones[m.ID] = m
	}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.escrows[id]
	if !ok {
		return Escrow{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryRepository) GetByChargeID(_ context.Context, chargeID string) (Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.escrows {
		if chargeID != "" && e.GatewayChargeID == chargeID {
			return e, nil
		}
	}
	return Escrow{}, ErrNotFound
}

func (r *memoryRepository) Milestone(_ context.Context, id string) (Milestone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.milestones[id]
	if !ok {
		return Milestone{}, ErrNotFound
	}
	return m, nil
}

func (r *memoryRepository) Milestones(_ context.Context, applicationID string) ([]Milestone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Milestone
	for _, m := range r.milestones {
		if m.ApplicationID == applicationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, e Escrow, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.escrows[e.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrStatusConflict
	}
	r.escrows[e.ID] = e
	return nil
}

func (r *memoryRepository) UpdateMilestone(_ context.Context, m Milestone, from MilestoneStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.milestones[m.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrStatusConflict
	}
	r.milestones[m.ID] = m
	return nil
}
