package dedup

import (
	"context"
	"sync"
)

// DefaultCapacity bounds the number of keys a Memory guard records.
const DefaultCapacity = 1_000_000

// Memory is an in-process Guard with an explicit capacity. Once full, new
// keys are dropped and reported as unseen; the message store's unique key
// still prevents a second message for them.
type Memory struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	capacity int
	dropped  int
}

// NewMemory returns a Memory guard. capacity <= 0 selects DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		seen:     make(map[string]struct{}),
		capacity: capacity,
	}
}

func (m *Memory) Seen(_ context.Context, campaignID, subscriberID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[Key(campaignID, subscriberID)]
	return ok, nil
}

func (m *Memory) MarkSeen(_ context.Context, campaignID, subscriberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(campaignID, subscriberID)
	if _, ok := m.seen[key]; ok {
		return nil
	}
	if len(m.seen) >= m.capacity {
		m.dropped++
		return nil
	}
	m.seen[key] = struct{}{}
	return nil
}

// Len returns the number of recorded keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Dropped returns how many keys were not recorded because the guard was full.
func (m *Memory) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
