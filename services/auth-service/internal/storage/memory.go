package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/smiledesk/smiledesk/services/auth-service/internal/staff"
)

type MemoryUsers struct {
	mu    sync.Mutex
	byID  map[string]staff.Member
	email map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: map[string]staff.Member{}, email: map[string]string{}}
}

func (r *MemoryUsers) Create(_ context.Context, m staff.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.email[m.Email]; ok {
		return staff.ErrDuplicateEmail
	}
	r.byID[m.ID] = m
	r.email[m.Email] = m.ID
	return nil
}

func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (staff.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[r.email[email]]
	if !ok {
		return staff.Member{}, staff.ErrNotFound
	}
	return m, nil
}

func (r *MemoryUsers) GetByID(_ context.Context, id string) (staff.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return staff.Member{}, staff.ErrNotFound
	}
	return m, nil
}

func (r *MemoryUsers) List(context.Context) ([]staff.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]staff.Member, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Email < out[j].Email
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryUsers) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}
