package revolt

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeTransport is an in-memory Transport that records every call.
type fakeTransport struct {
	mu       sync.Mutex
	channels map[string]APIChannel
	messages map[string]APIMessage
	users    map[string]APIUser

	channelErrs map[string]error
	userErrs    map[string]error
	deleteErr   error

	// onGetChannel runs before GetChannel returns, outside the lock.
	onGetChannel func(id string)

	calls     []string
	userOrder []string
	posted    []SendMessageRequest
	deleted   []string
	nextMsg   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		channels:    make(map[string]APIChannel),
		messages:    make(map[string]APIMessage),
		users:       make(map[string]APIUser),
		channelErrs: make(map[string]error),
		userErrs:    make(map[string]error),
	}
}

func (f *fakeTransport) addUsers(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.users[id] = APIUser{ID: id, Username: "user-" + id}
	}
}

func (f *fakeTransport) addChannel(ch APIChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
}

func (f *fakeTransport) countCalls(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeTransport) GetChannel(_ context.Context, id string) (APIChannel, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "GetChannel:"+id)
	hook := f.onGetChannel
	err := f.channelErrs[id]
	ch, ok := f.channels[id]
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return APIChannel{}, err
	}
	if !ok {
		return APIChannel{}, &HTTPError{StatusCode: 404, Type: "NotFound"}
	}
	return ch.clone(), nil
}

func (f *fakeTransport) GetMessage(_ context.Context, channelID, messageID string) (APIMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "GetMessage:"+messageID)
	m, ok := f.messages[channelID+"/"+messageID]
	if !ok {
		return APIMessage{}, &HTTPError{StatusCode: 404, Type: "NotFound"}
	}
	return m, nil
}

func (f *fakeTransport) PostMessage(_ context.Context, channelID string, req SendMessageRequest) (APIMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "PostMessage:"+channelID)
	f.posted = append(f.posted, req)
	f.nextMsg++
	return APIMessage{
		ID:      fmt.Sprintf("sent-%d", f.nextMsg),
		Nonce:   req.Nonce,
		Channel: channelID,
		Author:  "me",
		Content: req.Content,
	}, nil
}

func (f *fakeTransport) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "DeleteChannel:"+channelID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakeTransport) GetUser(_ context.Context, id string) (APIUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "GetUser:"+id)
	f.userOrder = append(f.userOrder, id)
	if err := f.userErrs[id]; err != nil {
		return APIUser{}, err
	}
	u, ok := f.users[id]
	if !ok {
		return APIUser{}, &HTTPError{StatusCode: 404, Type: "NotFound"}
	}
	return u, nil
}

// eventRecorder collects every emitted event.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func (r *eventRecorder) ofKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func newTestClient(t *testing.T, ft *fakeTransport, opts ...ClientOption) (*Client, *eventRecorder) {
	t.Helper()
	opts = append([]ClientOption{
		WithTransport(ft),
		WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
	}, opts...)
	c := NewClient("test-token", opts...)
	rec := &eventRecorder{}
	c.OnAny(rec.handle)
	return c, rec
}

func groupPayload(id, owner string, recipients ...string) APIChannel {
	return APIChannel{
		ID:          id,
		ChannelType: ChannelTypeGroup,
		Name:        "group " + id,
		Description: String("about " + id),
		Owner:       owner,
		Recipients:  recipients,
	}
}
