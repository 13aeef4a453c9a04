package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory directory for dev mode and tests. The Add/Set
// methods seed the records that the platform would otherwise own.
type MemoryRepository struct {
	mu           sync.RWMutex
	users        map[string]User
	posts        map[string]Post
	accounts     map[string]PayeeAccount
	applications map[string]Application
}

// NewMemoryRepository builds an empty in-memory directory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[string]User),
		posts:        make(map[string]Post),
		accounts:     make(map[string]PayeeAccount),
		applications: make(map[string]Application),
	}
}

func (r *MemoryRepository) AddUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.ID] = u
}

func (r *MemoryRepository) AddPost(p Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[p.ID] = p
}

func (r *MemoryRepository) SetPayeeAccount(a PayeeAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.UpdatedAt = time.Now().UTC()
	r.accounts[a.UserID] = a
}

func (r *MemoryRepository) AddApplication(a Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == "" {
		a.Status = ApplicationAccepted
	}
	r.applications[a.ID] = a
}

// Application returns a seeded application.
func (r *MemoryRepository) Application(id string) (Application, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.applications[id]
	return a, ok
}

func (r *MemoryRepository) UserExists(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok, nil
}

func (r *MemoryRepository) PostAuthor(_ context.Context, postID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[postID]
	if !ok {
		return "", ErrNotFound
	}
	return p.AuthorID, nil
}

func (r *MemoryRepository) PayeeAccount(_ context.Context, userID string) (PayeeAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[userID]
	if !ok {
		return PayeeAccount{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) UpdatePayeeAccount(_ context.Context, accountID string, onboardingComplete, payoutsEnabled bool) (PayeeAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, a := range r.accounts {
		if a.AccountID != accountID {
			continue
		}
		a.OnboardingComplete = onboardingComplete
		a.PayoutsEnabled = payoutsEnabled
		a.UpdatedAt = time.Now().UTC()
		r.accounts[userID] = a
		return a, nil
	}
	return PayeeAccount{}, ErrNotFound
}

func (r *MemoryRepository) MarkApplicationInProgress(_ context.Context, applicationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.applications[applicationID]
	if !ok {
		return ErrNotFound
	}
	a.Status = ApplicationInProgress
	a.UpdatedAt = time.Now().UTC()
	r.applications[applicationID] = a
	return nil
}
