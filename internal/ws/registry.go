package ws

import (
	"sync"

	"collab-service/internal/session"
)

// ManagerRegistry hands out one session.Manager per authenticated user, so
// all of a user's connections share subscriptions. The manager is torn down
// when the user's last connection releases it.
type ManagerRegistry struct {
	factory func(viewerID string) *session.Manager

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	manager *session.Manager
	refs    int
}

// NewManagerRegistry builds a registry around a manager factory.
func NewManagerRegistry(factory func(viewerID string) *session.Manager) *ManagerRegistry {
	return &ManagerRegistry{factory: factory, entries: make(map[string]*registryEntry)}
}

// Acquire returns the user's manager, creating it on first use. The returned
// release function is idempotent.
func (r *ManagerRegistry) Acquire(userID string) (*session.Manager, func()) {
	r.mu.Lock()
	entry, ok := r.entries[userID]
	if !ok {
		entry = &registryEntry{manager: r.factory(userID)}
		r.entries[userID] = entry
	}
	entry.refs++
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			entry.refs--
			last := entry.refs == 0
			if last && r.entries[userID] == entry {
				delete(r.entries, userID)
			}
			r.mu.Unlock()

			if last {
				entry.manager.Close()
			}
		})
	}
	return entry.manager, release
}
