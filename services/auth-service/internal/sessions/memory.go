package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRefresh struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

func NewMemoryRefresh() *MemoryRefresh {
	return &MemoryRefresh{byHash: map[string]*RefreshToken{}}
}

func (r *MemoryRefresh) Create(_ context.Context, userID string, rawToken string, expiresAt time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &RefreshToken{ID: uuid.NewString(), UserID: userID, Hash: HashToken(rawToken), ExpiresAt: expiresAt}
	r.byHash[t.Hash] = t
	return t.ID, nil
}

func (r *MemoryRefresh) GetByHash(_ context.Context, hash string) (RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return *t, nil
}

func (r *MemoryRefresh) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byHash {
		if t.ID == id {
			if t.RevokedAt != nil {
				return false, nil
			}
			now := time.Now()
			t.RevokedAt = &now
			return true, nil
		}
	}
	return false, ErrNotFound
}

func (r *MemoryRefresh) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for _, t := range r.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}
