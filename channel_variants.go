package revolt

import (
	"context"
	"slices"
)

// ============================================================================
// Saved Messages
// ============================================================================

// SavedMessagesChannel is a user's personal notes channel.
type SavedMessagesChannel struct {
	baseChannel
	userID string
}

// UserID returns the id of the owning user.
func (c *SavedMessagesChannel) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Patch replaces the fields present in p. It never emits.
func (c *SavedMessagesChannel) Patch(p ChannelPatch, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.User != nil {
		c.userID = *p.User
		c.raw.User = *p.User
	}
}

// Sync has nothing to resolve.
func (c *SavedMessagesChannel) Sync(context.Context) error {
	return nil
}

// ============================================================================
// Direct Message
// ============================================================================

// DirectMessageChannel is a conversation between two users.
type DirectMessageChannel struct {
	baseChannel
	recipientIDs []string
	recipients   map[string]*User
}

func (c *DirectMessageChannel) RecipientIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recipientIDs)
}

// Recipients returns the resolved recipients in id order of RecipientIDs.
// Ids not resolved yet are skipped.
func (c *DirectMessageChannel) Recipients() []*User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return orderedUsers(c.recipientIDs, c.recipients)
}

// Patch replaces the fields present in p. It never emits.
func (c *DirectMessageChannel) Patch(p ChannelPatch, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Recipients != nil {
		c.recipientIDs = slices.Clone(p.Recipients)
		c.raw.Recipients = slices.Clone(p.Recipients)
	}
}

func (c *DirectMessageChannel) Sync(ctx context.Context) error {
	c.mu.RLock()
	ids := slices.Clone(c.recipientIDs)
	c.mu.RUnlock()

	resolved, err := c.client.resolveUsers(ctx, ids)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.recipients = resolved
	c.mu.Unlock()
	return nil
}

// ============================================================================
// Group
// ============================================================================

// GroupChannel is a named multi-user channel with an owner.
type GroupChannel struct {
	baseChannel
	name         string
	description  string
	ownerID      string
	owner        *User
	recipientIDs []string
	recipients   map[string]*User
}

func (c *GroupChannel) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *GroupChannel) Description() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.description
}

func (c *GroupChannel) OwnerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownerID
}

// Owner returns the resolved owner, or nil before the first sync.
func (c *GroupChannel) Owner() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *GroupChannel) RecipientIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recipientIDs)
}

// Recipients returns the resolved recipients in id order of RecipientIDs.
func (c *GroupChannel) Recipients() []*User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return orderedUsers(c.recipientIDs, c.recipients)
}

// Patch diffs p against the stored representation, applies every field
// present in p and emits ChannelMutated when emit is set and at least one
// field changed.
func (c *GroupChannel) Patch(p ChannelPatch, emit bool) {
	c.mu.Lock()
	changed := c.changedFields(p)
	if p.Name != nil {
		c.name = *p.Name
		c.raw.Name = *p.Name
	}
	if p.Description != nil {
		c.description = *p.Description
		c.raw.Description = String(*p.Description)
	}
	if p.Owner != nil {
		c.ownerID = *p.Owner
		c.raw.Owner = *p.Owner
	}
	if p.Recipients != nil {
		c.recipientIDs = slices.Clone(p.Recipients)
		c.raw.Recipients = slices.Clone(p.Recipients)
	}
	c.mu.Unlock()

	if emit && len(changed) > 0 {
		c.client.log.Debug().Str("channel", c.id).Strs("fields", changed).Msg("channel mutated")
		c.client.events.emit(ChannelMutated{Channel: c, Patch: p})
	}
}

// changedFields must be called with mu held.
func (c *GroupChannel) changedFields(p ChannelPatch) []string {
	var changed []string
	if p.Name != nil && *p.Name != c.raw.Name {
		changed = append(changed, "name")
	}
	if p.Description != nil && (c.raw.Description == nil || *p.Description != *c.raw.Description) {
		changed = append(changed, "description")
	}
	if p.Owner != nil && *p.Owner != c.raw.Owner {
		changed = append(changed, "owner")
	}
	if p.Recipients != nil && !slices.Equal(p.Recipients, c.raw.Recipients) {
		changed = append(changed, "recipients")
	}
	return changed
}

// Sync resolves the owner, then each recipient in order. On failure the
// previously resolved fields are kept.
func (c *GroupChannel) Sync(ctx context.Context) error {
	c.mu.RLock()
	ownerID := c.ownerID
	ids := slices.Clone(c.recipientIDs)
	c.mu.RUnlock()

	var owner *User
	if ownerID != "" {
		u, err := c.client.FetchUser(ctx, ownerID)
		if err != nil {
			return &ResolutionError{Entity: entityUser, ID: ownerID, Err: err}
		}
		owner = u
	}
	resolved, err := c.client.resolveUsers(ctx, ids)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.owner = owner
	c.recipients = resolved
	c.mu.Unlock()
	return nil
}

func orderedUsers(ids []string, resolved map[string]*User) []*User {
	out := make([]*User, 0, len(ids))
	for _, id := range ids {
		if u, ok := resolved[id]; ok {
			out = append(out, u)
		}
	}
	return out
}
