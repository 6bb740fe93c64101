// Package chat holds the coordinator's state: who is online, the public log,
// private threads, reactions and typing indicators.
//
// None of the stores lock internally. They are owned by a single goroutine
// (the server hub) which applies one event at a time; the only cross-goroutine
// read is Registry.Snapshot, which is published atomically.
package chat

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// User is a display identity bound to one live connection.
type User struct {
	ConnectionID string
	DisplayName  string
	JoinedAt     time.Time
}

type registryEntry struct {
	user User
	seq  uint64
}

// Registry maps live connections to display names.
type Registry struct {
	byConn   map[string]*registryEntry
	order    []string
	seq      uint64
	snapshot atomic.Pointer[[]User]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{byConn: make(map[string]*registryEntry)}
	r.publish()
	return r
}

// Register binds connectionID to displayName. A second call for the same
// connection replaces the entry in place; names are not deduplicated across
// connections.
func (r *Registry) Register(connectionID, displayName string, at time.Time) User {
	r.seq++
	user := User{ConnectionID: connectionID, DisplayName: displayName, JoinedAt: at}

	if entry, ok := r.byConn[connectionID]; ok {
		entry.user = user
		entry.seq = r.seq
	} else {
		r.byConn[connectionID] = &registryEntry{user: user, seq: r.seq}
		r.order = append(r.order, connectionID)
	}

	r.publish()
	return user
}

// Unregister removes the connection. Unknown connections are a no-op.
func (r *Registry) Unregister(connectionID string) (User, bool) {
	entry, ok := r.byConn[connectionID]
	if !ok {
		return User{}, false
	}

	delete(r.byConn, connectionID)
	r.order = lo.Without(r.order, connectionID)
	r.publish()
	return entry.user, true
}

// Get returns the user registered on connectionID.
func (r *Registry) Get(connectionID string) (User, bool) {
	entry, ok := r.byConn[connectionID]
	if !ok {
		return User{}, false
	}
	return entry.user, true
}

// LookupByName resolves a display name to a connection. When several
// connections share the name, the one registered most recently wins.
func (r *Registry) LookupByName(displayName string) (string, bool) {
	var best *registryEntry
	for _, entry := range r.byConn {
		if entry.user.DisplayName != displayName {
			continue
		}
		if best == nil || entry.seq > best.seq {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.user.ConnectionID, true
}

// ListOnline returns the online users in registration order.
func (r *Registry) ListOnline() []User {
	return slices.Clone(r.Snapshot())
}

// Snapshot returns the last published online list. The slice is shared and
// must not be modified; it is safe to call from any goroutine.
func (r *Registry) Snapshot() []User {
	return *r.snapshot.Load()
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.byConn)
}

func (r *Registry) publish() {
	users := lo.Map(r.order, func(id string, _ int) User {
		return r.byConn[id].user
	})
	r.snapshot.Store(&users)
}
