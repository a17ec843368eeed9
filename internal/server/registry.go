// Package server implements the relay: session registry, private message
// delivery tracking, typing relay, and file chunk forwarding.
package server

import (
	"errors"
	"strings"
	"sync"

	"github.com/dothash/huddle/internal/protocol"
)

var (
	// ErrInvalidUsername means the proposed name is empty after
	// trimming.
	ErrInvalidUsername = errors.New("server: a valid username is required")

	// ErrUsernameTaken means a live session already holds the name.
	ErrUsernameTaken = errors.New("server: username is already taken")

	// ErrAlreadyRegistered means the connection already holds a name. A
	// second registration would leave a dangling mapping, so it is
	// rejected.
	ErrAlreadyRegistered = errors.New("server: connection is already registered")
)

// Registry owns the session bindings and the bounded public history. The
// forward map (handle to username) and the reverse index are kept in step
// under one mutex so a username is never claimed by zero or two
// connections.
type Registry struct {
	mu sync.Mutex

	byHandle map[string]string
	byName   map[string]string

	history    []protocol.Message
	historyCap int
}

// NewRegistry creates a registry with the given history capacity.
func NewRegistry(historyCap int) *Registry {
	return &Registry{
		byHandle:   make(map[string]string),
		byName:     make(map[string]string),
		historyCap: historyCap,
	}
}

// Register binds proposed (trimmed) to handle and returns the updated
// username snapshot. Exactly one of several concurrent registrations for
// the same name can succeed.
func (r *Registry) Register(handle, proposed string) ([]string, error) {
	name := strings.TrimSpace(proposed)
	if name == "" {
		return nil, ErrInvalidUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHandle[handle]; ok {
		return nil, ErrAlreadyRegistered
	}
	if _, ok := r.byName[name]; ok {
		return nil, ErrUsernameTaken
	}

	r.byHandle[handle] = name
	r.byName[name] = handle
	return r.snapshotLocked(), nil
}

// Unregister removes the binding for handle, if any, and returns the
// released username and the remaining snapshot.
func (r *Registry) Unregister(handle string) (string, []string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byHandle[handle]
	if !ok {
		return "", nil, false
	}
	delete(r.byHandle, handle)
	delete(r.byName, name)
	return name, r.snapshotLocked(), true
}

// Lookup resolves a username to its live connection handle.
func (r *Registry) Lookup(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.byName[username]
	return handle, ok
}

// Username resolves a connection handle to its registered name.
func (r *Registry) Username(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byHandle[handle]
	return name, ok
}

// Snapshot returns a consistent point-in-time copy of the registered
// usernames. Order is not specified; uniqueness is.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []string {
	users := make([]string, 0, len(r.byName))
	for name := range r.byName {
		users = append(users, name)
	}
	return users
}

// AppendHistory appends one public message, evicting the oldest entry
// once the ring is full.
func (r *Registry) AppendHistory(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, msg)
	if len(r.history) > r.historyCap {
		r.history = r.history[1:]
	}
}

// History returns a copy of the public history, oldest first.
func (r *Registry) History() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Message, len(r.history))
	copy(out, r.history)
	return out
}
