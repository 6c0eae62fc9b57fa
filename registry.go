package revolt

import (
	"sort"
	"sync"
)

// Registry is the client-owned store of live entities, keyed by id.
// Reads are exported; writes happen only on the fetch and delete paths.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	messages map[string]*Message
	users    map[string]*User

	metrics *cacheMetrics
}

func newRegistry(metrics *cacheMetrics) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		messages: make(map[string]*Message),
		users:    make(map[string]*User),
		metrics:  metrics,
	}
}

// ── Channels ─────────────────────────────────────────────

// Channel returns the live channel with the given id.
func (r *Registry) Channel(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Channels returns a snapshot of every live channel ordered by id.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) registerChannel(ch Channel) {
	r.mu.Lock()
	r.channels[ch.ID()] = ch
	n := len(r.channels)
	r.mu.Unlock()
	r.metrics.setEntities(entityChannel, n)
}

func (r *Registry) unregisterChannel(id string) {
	r.mu.Lock()
	delete(r.channels, id)
	n := len(r.channels)
	r.mu.Unlock()
	r.metrics.setEntities(entityChannel, n)
}

// ── Messages ─────────────────────────────────────────────

// Message returns the live message with the given id.
func (r *Registry) Message(id string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	return m, ok
}

// MessageCount returns the number of messages indexed globally.
func (r *Registry) MessageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

func (r *Registry) registerMessage(m *Message) {
	r.mu.Lock()
	r.messages[m.ID] = m
	n := len(r.messages)
	r.mu.Unlock()
	r.metrics.setEntities(entityMessage, n)
}

func (r *Registry) unregisterMessages(ids []string) {
	r.mu.Lock()
	for _, id := range ids {
		delete(r.messages, id)
	}
	n := len(r.messages)
	r.mu.Unlock()
	r.metrics.setEntities(entityMessage, n)
}

// ── Users ────────────────────────────────────────────────

// User returns the live user with the given id.
func (r *Registry) User(id string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *Registry) registerUser(u *User) {
	r.mu.Lock()
	r.users[u.ID] = u
	n := len(r.users)
	r.mu.Unlock()
	r.metrics.setEntities(entityUser, n)
}
