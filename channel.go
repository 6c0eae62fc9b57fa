package revolt

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Channel is a live channel instance. The concrete type is one of
// *SavedMessagesChannel, *DirectMessageChannel or *GroupChannel, chosen from
// the channel_type of the payload it was built from.
type Channel interface {
	ID() string
	Type() ChannelType
	// Raw returns a copy of the last-known remote representation.
	Raw() APIChannel

	Message(id string) (*Message, bool)
	Messages() []*Message

	// Patch applies a partial update. Only group channels diff the update
	// and, when emit is set and a field changed, emit ChannelMutated.
	Patch(p ChannelPatch, emit bool)
	// Sync resolves every referenced user id. It is idempotent.
	Sync(ctx context.Context) error

	FetchMessage(ctx context.Context, id string) (*Message, error)
	UpsertMessage(ctx context.Context, raw APIMessage) (*Message, error)
	// SendMessage posts content and routes the created message into the
	// cache. An empty nonce is replaced with a generated one.
	SendMessage(ctx context.Context, content, nonce string) (*Message, error)
	// Delete removes the channel remotely unless skipRemote is set, then
	// drops it and all of its messages from the registry. When the remote
	// call fails nothing is removed.
	Delete(ctx context.Context, skipRemote bool) error

	base() *baseChannel
}

// ============================================================================
// Fetch
// ============================================================================

// FetchChannel returns the live channel with the given id, fetching and
// hydrating it when it is not cached yet.
func (c *Client) FetchChannel(ctx context.Context, id string) (Channel, error) {
	return c.fetchChannel(ctx, id, nil)
}

// UpsertChannel reconciles a full channel payload received from the server.
// A cached channel is patched and re-synced in place; an unknown one is
// constructed from raw without a remote call.
func (c *Client) UpsertChannel(ctx context.Context, raw APIChannel) (Channel, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("upsert channel: %w", ErrInvalidPayload)
	}
	return c.fetchChannel(ctx, raw.ID, &raw)
}

func (c *Client) fetchChannel(ctx context.Context, id string, raw *APIChannel) (Channel, error) {
	if existing, ok := c.registry.Channel(id); ok {
		c.metrics.hit(entityChannel)
		if raw != nil {
			existing.Patch(raw.Patch(), true)
			if err := existing.Sync(ctx); err != nil {
				return nil, fmt.Errorf("sync channel %s: %w", id, err)
			}
		}
		return existing, nil
	}
	c.metrics.miss(entityChannel)

	v, err := c.coalesced("channel:"+id, func() (interface{}, error) {
		if c.coalesce {
			if existing, ok := c.registry.Channel(id); ok {
				return existing, nil
			}
		}
		return c.createChannel(ctx, id, raw)
	})
	if err != nil {
		return nil, err
	}
	return v.(Channel), nil
}

// createChannel builds, hydrates and registers a channel. Nothing is
// registered or emitted unless every step succeeds.
func (c *Client) createChannel(ctx context.Context, id string, raw *APIChannel) (Channel, error) {
	var data APIChannel
	if raw != nil {
		data = raw.clone()
	} else {
		fetched, err := c.transport.GetChannel(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch channel %s: %w", id, err)
		}
		data = fetched
	}
	if data.ID == "" {
		if id == "" {
			return nil, fmt.Errorf("fetch channel: %w", ErrInvalidPayload)
		}
		data.ID = id
	}

	ch, err := newChannel(c, data)
	if err != nil {
		return nil, fmt.Errorf("construct channel %s: %w", data.ID, err)
	}
	if err := ch.Sync(ctx); err != nil {
		return nil, fmt.Errorf("sync channel %s: %w", data.ID, err)
	}

	c.registry.registerChannel(ch)
	c.log.Debug().Str("channel", ch.ID()).Str("type", string(ch.Type())).Msg("channel registered")
	c.events.emit(ChannelCreated{Channel: ch})
	return ch, nil
}

func newChannel(c *Client, data APIChannel) (Channel, error) {
	switch data.ChannelType {
	case ChannelTypeSavedMessages:
		ch := &SavedMessagesChannel{}
		ch.setup(c, data)
		ch.Patch(data.Patch(), false)
		return ch, nil
	case ChannelTypeDirectMessage:
		ch := &DirectMessageChannel{}
		ch.setup(c, data)
		ch.Patch(data.Patch(), false)
		return ch, nil
	case ChannelTypeGroup:
		ch := &GroupChannel{}
		ch.setup(c, data)
		ch.Patch(data.Patch(), false)
		return ch, nil
	default:
		return nil, &UnknownEntityTypeError{Entity: entityChannel, Type: string(data.ChannelType)}
	}
}

// ============================================================================
// Shared channel state
// ============================================================================

// baseChannel holds what every variant shares. mu guards raw and the
// variant's own fields; msgMu guards the message map.
type baseChannel struct {
	client *Client
	id     string
	typ    ChannelType

	mu  sync.RWMutex
	raw APIChannel

	msgMu    sync.RWMutex
	messages map[string]*Message
}

func (b *baseChannel) setup(c *Client, data APIChannel) {
	b.client = c
	b.id = data.ID
	b.typ = data.ChannelType
	b.raw = data.clone()
	b.messages = make(map[string]*Message)
}

func (b *baseChannel) base() *baseChannel { return b }

func (b *baseChannel) ID() string { return b.id }

func (b *baseChannel) Type() ChannelType { return b.typ }

func (b *baseChannel) Raw() APIChannel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.raw.clone()
}

func (b *baseChannel) Message(id string) (*Message, bool) {
	b.msgMu.RLock()
	defer b.msgMu.RUnlock()
	m, ok := b.messages[id]
	return m, ok
}

// Messages returns a snapshot of the channel's messages ordered by id.
func (b *baseChannel) Messages() []*Message {
	b.msgMu.RLock()
	out := make([]*Message, 0, len(b.messages))
	for _, m := range b.messages {
		out = append(out, m)
	}
	b.msgMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// Messages
// ============================================================================

func (b *baseChannel) FetchMessage(ctx context.Context, id string) (*Message, error) {
	return b.fetchMessage(ctx, id, nil)
}

func (b *baseChannel) UpsertMessage(ctx context.Context, raw APIMessage) (*Message, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("upsert message: %w", ErrInvalidPayload)
	}
	return b.fetchMessage(ctx, raw.ID, &raw)
}

func (b *baseChannel) fetchMessage(ctx context.Context, id string, raw *APIMessage) (*Message, error) {
	c := b.client
	if existing, ok := b.Message(id); ok {
		c.metrics.hit(entityMessage)
		if raw != nil {
			existing.patch(*raw)
			if err := existing.sync(ctx); err != nil {
				return nil, fmt.Errorf("sync message %s: %w", id, err)
			}
		}
		return existing, nil
	}
	c.metrics.miss(entityMessage)

	var data APIMessage
	if raw != nil {
		data = *raw
	} else {
		fetched, err := c.transport.GetMessage(ctx, b.id, id)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", id, err)
		}
		data = fetched
	}
	if data.ID == "" {
		if id == "" {
			return nil, fmt.Errorf("fetch message: %w", ErrInvalidPayload)
		}
		data.ID = id
	}

	msg := newMessage(c, b.id, data)
	if err := msg.sync(ctx); err != nil {
		return nil, fmt.Errorf("sync message %s: %w", msg.ID, err)
	}

	b.msgMu.Lock()
	b.messages[msg.ID] = msg
	b.msgMu.Unlock()
	c.registry.registerMessage(msg)
	c.events.emit(MessageCreated{Message: msg})
	return msg, nil
}

func (b *baseChannel) SendMessage(ctx context.Context, content, nonce string) (*Message, error) {
	if nonce == "" {
		nonce = newNonce()
	}
	data, err := b.client.transport.PostMessage(ctx, b.id, SendMessageRequest{Content: content, Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", b.id, err)
	}
	msg, err := b.fetchMessage(ctx, data.ID, &data)
	if err != nil {
		return nil, err
	}
	b.client.events.emit(MessageSent{Message: msg})
	return msg, nil
}

// ============================================================================
// Deletion
// ============================================================================

func (b *baseChannel) Delete(ctx context.Context, skipRemote bool) error {
	c := b.client
	if !skipRemote {
		if err := c.transport.DeleteChannel(ctx, b.id); err != nil {
			return fmt.Errorf("delete channel %s: %w", b.id, err)
		}
	}

	b.msgMu.Lock()
	ids := make([]string, 0, len(b.messages))
	for id := range b.messages {
		ids = append(ids, id)
	}
	b.messages = make(map[string]*Message)
	b.msgMu.Unlock()

	c.registry.unregisterMessages(ids)
	c.registry.unregisterChannel(b.id)
	c.log.Debug().Str("channel", b.id).Int("messages", len(ids)).Msg("channel deleted")
	c.events.emit(ChannelDeleted{ID: b.id})
	return nil
}
