package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process job store used by tests and REMINDER_STORE=memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[int64]*Job
	keys map[string]int64
	// closed maps appointment id to the time its closing event was applied.
	closed map[string]time.Time
	seq    int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   map[int64]*Job{},
		keys:   map[string]int64{},
		closed: map[string]time.Time{},
		now:    time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, job Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.closed[job.AppointmentID]; ok {
		return false, ErrAppointmentClosed
	}
	if _, ok := s.keys[job.Key]; ok {
		return false, nil
	}
	s.seq++
	now := s.now().UTC()
	job.ID = s.seq
	job.Status = StatusPending
	job.Attempts = 0
	job.NextRunAt = job.RemindAt
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = &job
	s.keys[job.Key] = job.ID
	return true, nil
}

func (s *MemoryStore) Claim(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for _, j := range s.jobs {
		if j.Status == StatusPending && !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].NextRunAt.Equal(due[k].NextRunAt) {
			return due[i].ID < due[k].ID
		}
		return due[i].NextRunAt.Before(due[k].NextRunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]Job, 0, len(due))
	for _, j := range due {
		j.Attempts++
		j.NextRunAt = now.Add(lease)
		j.UpdatedAt = s.now().UTC()
		out = append(out, *j)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, id int64, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status == StatusPending {
		j.Status = StatusSent
		j.ProviderID = providerID
		j.LastError = ""
		j.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusPending {
		return nil
	}
	if attempts >= maxAttempts {
		j.Status = StatusFailed
	}
	j.NextRunAt = nextRunAt
	j.LastError = lastError
	j.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) CancelForAppointment(_ context.Context, appointmentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.closed[appointmentID]; !ok {
		s.closed[appointmentID] = s.now().UTC()
	}
	var n int64
	for _, j := range s.jobs {
		if j.AppointmentID == appointmentID && j.Status == StatusPending {
			j.Status = StatusCancelled
			j.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListForAppointment(_ context.Context, appointmentID string) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.AppointmentID == appointmentID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].RemindAt.Equal(out[k].RemindAt) {
			return out[i].Channel < out[k].Channel
		}
		return out[i].RemindAt.Before(out[k].RemindAt)
	})
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if j.Status != StatusPending && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.keys, j.Key)
			n++
		}
	}
	for id, at := range s.closed {
		if at.Before(cutoff) {
			delete(s.closed, id)
		}
	}
	return n, nil
}
