package revolt

import "slices"

// ChannelType is the variant discriminator carried by raw channel payloads.
type ChannelType string

const (
	ChannelTypeSavedMessages ChannelType = "SavedMessages"
	ChannelTypeDirectMessage ChannelType = "DirectMessage"
	ChannelTypeGroup         ChannelType = "Group"
)

// ============================================================================
// Channels
// ============================================================================

// APIChannel is the full remote representation of a channel.
type APIChannel struct {
	ID          string      `json:"_id"`
	ChannelType ChannelType `json:"channel_type"`
	User        string      `json:"user,omitempty"`
	Recipients  []string    `json:"recipients,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Owner       string      `json:"owner,omitempty"`
}

func (c APIChannel) clone() APIChannel {
	out := c
	out.Recipients = slices.Clone(c.Recipients)
	if c.Description != nil {
		d := *c.Description
		out.Description = &d
	}
	return out
}

// Patch converts a full payload into a patch that sets every field the
// payload carries.
func (c APIChannel) Patch() ChannelPatch {
	var p ChannelPatch
	if c.User != "" {
		p.User = String(c.User)
	}
	if c.Recipients != nil {
		p.Recipients = slices.Clone(c.Recipients)
	}
	if c.Name != "" {
		p.Name = String(c.Name)
	}
	if c.Description != nil {
		p.Description = String(*c.Description)
	}
	if c.Owner != "" {
		p.Owner = String(c.Owner)
	}
	return p
}

// ChannelPatch is a partial channel update. Nil fields are absent and leave
// the stored value untouched; a non-nil empty Recipients clears the list.
type ChannelPatch struct {
	User        *string  `json:"user,omitempty"`
	Recipients  []string `json:"recipients,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Owner       *string  `json:"owner,omitempty"`
}

// IsEmpty reports whether the patch sets no field at all.
func (p ChannelPatch) IsEmpty() bool {
	return p.User == nil && p.Recipients == nil && p.Name == nil &&
		p.Description == nil && p.Owner == nil
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}

// ============================================================================
// Messages
// ============================================================================

// APIMessage is the remote representation of a message.
type APIMessage struct {
	ID      string `json:"_id"`
	Nonce   string `json:"nonce,omitempty"`
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Content string `json:"content,omitempty"`
}

// SendMessageRequest is the body of POST /channels/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
	Nonce   string `json:"nonce,omitempty"`
}

// ============================================================================
// Users
// ============================================================================

// APIUser is the remote representation of a user.
type APIUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Online   bool   `json:"online,omitempty"`
}

// apiErrorBody is the error envelope returned by the REST API.
type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
