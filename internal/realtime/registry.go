package realtime

import (
	"sync"
	"time"
)

// PresenceRegistry maps a user id to its currently reachable connection.
//
// The registry holds a single handle per user: a second connection from the
// same user displaces the first for push purposes, and the displaced
// connection stays open but unreachable until it closes itself. Removal is
// conditional on the handle still being current, so a disconnect racing a
// reconnect never evicts the newer entry.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
	clock   func() time.Time
}

type presenceEntry struct {
	client      *Client
	connectedAt time.Time
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]presenceEntry),
		clock:   time.Now,
	}
}

// Register records the client as the user's reachable connection and returns
// the displaced prior client, if any.
func (r *PresenceRegistry) Register(userID string, client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.entries[userID].client
	r.entries[userID] = presenceEntry{client: client, connectedAt: r.clock().UTC()}
	if previous == client {
		return nil
	}
	return previous
}

// Remove drops the user's entry only if it still points at the given client.
// It reports whether the entry was removed.
func (r *PresenceRegistry) Remove(userID string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.client != client {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the user's reachable connection, if one exists.
func (r *PresenceRegistry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	return entry.client, ok
}

// ConnectedAt returns when the user's current connection registered.
func (r *PresenceRegistry) ConnectedAt(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	return entry.connectedAt, ok
}

// OnlineCount returns the number of users with a reachable connection.
func (r *PresenceRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
