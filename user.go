package revolt

import (
	"context"
	"fmt"
	"sync"
)

// User is a live user instance. Channels reference users by id and resolve
// them through Client.FetchUser.
type User struct {
	ID string

	mu  sync.RWMutex
	raw APIUser
}

func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.raw.Username
}

func (u *User) Online() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.raw.Online
}

// Raw returns a copy of the last-known remote representation.
func (u *User) Raw() APIUser {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.raw
}

func (u *User) patch(data APIUser) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if data.Username != "" {
		u.raw.Username = data.Username
	}
	u.raw.Online = data.Online
}

// FetchUser returns the live user with the given id, fetching it when it is
// not cached yet.
func (c *Client) FetchUser(ctx context.Context, id string) (*User, error) {
	return c.fetchUser(ctx, id, nil)
}

// UpsertUser reconciles a user payload received from the server.
func (c *Client) UpsertUser(ctx context.Context, raw APIUser) (*User, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("upsert user: %w", ErrInvalidPayload)
	}
	return c.fetchUser(ctx, raw.ID, &raw)
}

func (c *Client) fetchUser(ctx context.Context, id string, raw *APIUser) (*User, error) {
	if existing, ok := c.registry.User(id); ok {
		c.metrics.hit(entityUser)
		if raw != nil {
			existing.patch(*raw)
		}
		return existing, nil
	}
	c.metrics.miss(entityUser)

	v, err := c.coalesced("user:"+id, func() (interface{}, error) {
		if c.coalesce {
			if existing, ok := c.registry.User(id); ok {
				return existing, nil
			}
		}
		var data APIUser
		if raw != nil {
			data = *raw
		} else {
			fetched, err := c.transport.GetUser(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("fetch user %s: %w", id, err)
			}
			data = fetched
		}
		if data.ID == "" {
			data.ID = id
		}
		u := &User{ID: data.ID, raw: data}
		c.registry.registerUser(u)
		c.log.Debug().Str("user", u.ID).Msg("user registered")
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*User), nil
}

// resolveUsers fetches ids one at a time in list order. Duplicate ids are
// fetched once.
func (c *Client) resolveUsers(ctx context.Context, ids []string) (map[string]*User, error) {
	out := make(map[string]*User, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		u, err := c.FetchUser(ctx, id)
		if err != nil {
			return nil, &ResolutionError{Entity: entityUser, ID: id, Err: err}
		}
		out[id] = u
	}
	return out, nil
}
