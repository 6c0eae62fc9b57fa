package revolt

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Message is a live message instance, owned by its channel and indexed
// globally by the registry.
type Message struct {
	ID        string
	ChannelID string

	client *Client
	mu     sync.RWMutex
	raw    APIMessage
	author *User
}

func newMessage(c *Client, channelID string, data APIMessage) *Message {
	data.Channel = channelID
	return &Message{
		ID:        data.ID,
		ChannelID: channelID,
		client:    c,
		raw:       data,
	}
}

func (m *Message) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw.Content
}

func (m *Message) Nonce() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw.Nonce
}

func (m *Message) AuthorID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw.Author
}

// Author returns the resolved author, or nil before the first sync.
func (m *Message) Author() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.author
}

// Raw returns a copy of the last-known remote representation.
func (m *Message) Raw() APIMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw
}

func (m *Message) patch(data APIMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data.Content != "" {
		m.raw.Content = data.Content
	}
	if data.Author != "" {
		m.raw.Author = data.Author
	}
	if data.Nonce != "" {
		m.raw.Nonce = data.Nonce
	}
}

// sync resolves the author. It is a no-op when the author is already
// resolved.
func (m *Message) sync(ctx context.Context) error {
	m.mu.RLock()
	authorID := m.raw.Author
	resolved := m.author != nil && m.author.ID == authorID
	m.mu.RUnlock()
	if authorID == "" || resolved {
		return nil
	}

	u, err := m.client.FetchUser(ctx, authorID)
	if err != nil {
		return &ResolutionError{Entity: entityUser, ID: authorID, Err: err}
	}
	m.mu.Lock()
	m.author = u
	m.mu.Unlock()
	return nil
}

// newNonce returns a time-ordered idempotency key for outgoing messages.
func newNonce() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
