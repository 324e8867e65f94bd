package service

import (
	"sort"
	"sync"
	"time"

	"team_server/server/realtime/domain"
)

// PresenceRegistry is the in-memory directory of connected users. One
// entry per user; a reconnect replaces the previous entry. All methods
// are safe for concurrent use.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]domain.PresenceEntry
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: map[string]domain.PresenceEntry{}}
}

func (r *PresenceRegistry) Register(userID, username, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = domain.PresenceEntry{
		UserID:         userID,
		Username:       username,
		ConnectionID:   connectionID,
		LastActivityAt: time.Now().UTC(),
	}
}

// Touch refreshes LastActivityAt; no-op for unknown users.
func (r *PresenceRegistry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userID]
	if !ok {
		return
	}
	entry.LastActivityAt = time.Now().UTC()
	r.entries[userID] = entry
}

func (r *PresenceRegistry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// UnregisterConnection removes the entry only if it still belongs to the
// given connection, so a stale disconnect cannot evict a fresh session.
func (r *PresenceRegistry) UnregisterConnection(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[userID]; ok && entry.ConnectionID == connectionID {
		delete(r.entries, userID)
	}
}

func (r *PresenceRegistry) LookupConnection(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok {
		return "", false
	}
	return entry.ConnectionID, true
}

func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

func (r *PresenceRegistry) ListOnline() []domain.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]domain.OnlineUser, 0, len(r.entries))
	for _, entry := range r.entries {
		users = append(users, domain.OnlineUser{UserID: entry.UserID, Username: entry.Username})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}
