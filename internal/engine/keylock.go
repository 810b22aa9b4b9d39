// internal/engine/keylock.go
package engine

import "sync"

// keyLock serializes work per topic id. Operations on different topics run
// fully in parallel; locks are created on first use and never reclaimed,
// which is fine for the record counts this service sees.
type keyLock struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyLock) lock(topicID int64) func() {
	k.mu.Lock()
	m, ok := k.locks[topicID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[topicID] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
