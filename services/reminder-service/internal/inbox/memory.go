package inbox

import (
	"context"
	"sync"
	"time"
)

type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{seen: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Record(_ context.Context, eventID string, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = m.now()
	return true, nil
}

func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

func (m *Memory) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, id)
			n++
		}
	}
	return n, nil
}
