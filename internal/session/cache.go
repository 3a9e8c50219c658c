package session

import (
	"sync"
	"time"

	"collab-service/internal/models"
	"collab-service/internal/observability"
)

// DefaultCacheTTL is how long a cached conversation snapshot stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Snapshot is the last-known state of one conversation.
type Snapshot struct {
	Group     *models.Group
	Messages  []models.MessageWithSender
	Members   []models.MemberWithProfile
	FetchedAt time.Time
}

// SnapshotUpdate carries partial snapshot fields for a merge. Nil fields keep
// whatever the cache already holds, so a single new message never forces a
// group metadata refetch.
type SnapshotUpdate struct {
	Group    *models.Group
	Messages []models.MessageWithSender
	Members  []models.MemberWithProfile
}

// Cache holds per-conversation snapshots with a fixed TTL. It is in-memory
// and best-effort; it owns its clock so expiry is testable.
type Cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	snapshots map[string]Snapshot
}

// NewCache builds a Cache. Zero ttl falls back to DefaultCacheTTL; a nil
// clock defaults to time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, snapshots: make(map[string]Snapshot)}
}

// Get returns the snapshot for a conversation. A snapshot at or past the TTL
// is a miss and must be refreshed from the source of truth.
func (c *Cache) Get(groupID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.snapshots[groupID]
	if !ok || c.now().Sub(snap.FetchedAt) >= c.ttl {
		observability.IncCacheMiss()
		return Snapshot{}, false
	}
	observability.IncCacheHit()
	return snap, true
}

// Put merges partial fields into the conversation's snapshot, stamping the
// current time. Merging is last-write-wins per field, safe to call
// repeatedly and out of order.
func (c *Cache) Put(groupID string, update SnapshotUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snapshots[groupID]
	if update.Group != nil {
		snap.Group = update.Group
	}
	if update.Messages != nil {
		snap.Messages = update.Messages
	}
	if update.Members != nil {
		snap.Members = update.Members
	}
	snap.FetchedAt = c.now()
	c.snapshots[groupID] = snap
}

// Drop removes a conversation's snapshot.
func (c *Cache) Drop(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, groupID)
}
