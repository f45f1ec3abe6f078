/*
Package relay contains the connection relay: the registry of authenticated connections, the
authenticate / sendMessage / disconnect protocol, and the WebSocket sessions that carry it.

This file defines the Registry, which maps user identifiers to their live connection and keeps
a reverse index from connection to user so lookups by connection are O(1).
*/
package relay

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatrelay/internal/pkg/logx"
)

// Entry is the registry record of one authenticated user.
type Entry struct {
	UserID   string
	Username string

	// Token is the bearer token the user authenticated with.
	Token string

	// Conn is the user's live connection handle.
	Conn Conn

	AuthenticatedAt time.Time
}

// Registry maps user identifiers to authenticated connections.
// At most one entry exists per user and per connection. It is safe for concurrent use.
type Registry struct {
	// users stores entries keyed by user identifier.
	users map[string]Entry

	// conns maps a connection ID to the user identifier registered on it.
	conns map[string]string

	// mu protects users and conns.
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]Entry),
		conns:  make(map[string]string),
		logger: logx.Component("Registry"),
	}
}

// Set stores e under e.UserID, overwriting any entry for that user.
// If another connection held the user, that entry is returned with replaced set; the old
// connection is no longer associated with any user. If e.Conn was registered as a different
// user, that user's entry is dropped.
func (r *Registry) Set(e Entry) (displaced Entry, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := e.Conn.ID()

	if prevUser, ok := r.conns[connID]; ok && prevUser != e.UserID {
		delete(r.users, prevUser)
		r.logger.Info().
			Str("conn_id", connID).
			Str("previous_user_id", prevUser).
			Str("user_id", e.UserID).
			Msg("Connection re-authenticated as another user.")
	}

	if old, ok := r.users[e.UserID]; ok && old.Conn.ID() != connID {
		delete(r.conns, old.Conn.ID())
		displaced, replaced = old, true
	}

	r.users[e.UserID] = e
	r.conns[connID] = e.UserID

	return displaced, replaced
}

// Get returns the entry for userID.
func (r *Registry) Get(userID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[userID]
	return e, ok
}

// Remove deletes the entry for userID and returns it.
func (r *Registry) Remove(userID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		return Entry{}, false
	}

	delete(r.users, userID)
	delete(r.conns, e.Conn.ID())
	return e, true
}

// LookupByConn returns the entry registered on the connection connID.
func (r *Registry) LookupByConn(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.conns[connID]
	if !ok {
		return Entry{}, false
	}

	e, ok := r.users[userID]
	return e, ok
}

// RemoveByConn deletes the entry registered on the connection connID, leaving every other
// entry untouched. It is a no-op for connections that never authenticated or were displaced.
func (r *Registry) RemoveByConn(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.conns[connID]
	if !ok {
		return Entry{}, false
	}
	delete(r.conns, connID)

	e, ok := r.users[userID]
	if !ok || e.Conn.ID() != connID {
		return Entry{}, false
	}

	delete(r.users, userID)
	return e, true
}

// Len returns the number of authenticated users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// UserIDs returns the registered user identifiers in sorted order.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.users)
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Entries returns a snapshot of every entry, ordered by user identifier.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := lo.Values(r.users)
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	return entries
}
