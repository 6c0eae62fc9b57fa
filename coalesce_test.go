package revolt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Without coalescing, two fetches that both miss the registry each build an
// instance and the later registration wins.
func TestFetchChannelOverlappingMisses(t *testing.T) {
	ft := newFakeTransport()
	ft.addUsers("owner", "a")
	ft.addChannel(groupPayload("g1", "owner", "a"))

	var arrived sync.WaitGroup
	arrived.Add(2)
	ft.onGetChannel = func(string) {
		arrived.Done()
		arrived.Wait()
	}
	c, rec := newTestClient(t, ft)

	results := make([]Channel, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := c.FetchChannel(context.Background(), "g1")
			assert.NoError(t, err)
			results[i] = ch
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotSame(t, results[0], results[1])
	assert.Equal(t, 2, ft.countCalls("GetChannel:g1"))
	assert.Len(t, rec.ofKind(EventChannelCreate), 2)

	cached, ok := c.Registry().Channel("g1")
	require.True(t, ok)
	assert.True(t, cached == results[0] || cached == results[1])
}

func TestFetchChannelCoalescing(t *testing.T) {
	ft := newFakeTransport()
	ft.addUsers("owner", "a")
	ft.addChannel(groupPayload("g1", "owner", "a"))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ft.onGetChannel = func(string) {
		once.Do(func() { close(entered) })
		<-release
	}
	c, rec := newTestClient(t, ft, WithFetchCoalescing())

	results := make([]Channel, 2)
	var wg sync.WaitGroup
	fetch := func(i int) {
		defer wg.Done()
		ch, err := c.FetchChannel(context.Background(), "g1")
		assert.NoError(t, err)
		results[i] = ch
	}

	wg.Add(1)
	go fetch(0)
	<-entered
	wg.Add(1)
	go fetch(1)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
	assert.Equal(t, 1, ft.countCalls("GetChannel:g1"))
	assert.Len(t, rec.ofKind(EventChannelCreate), 1)
}

func TestFetchUserCoalescing(t *testing.T) {
	ft := newFakeTransport()
	ft.addUsers("a")
	c, _ := newTestClient(t, ft, WithFetchCoalescing())

	var wg sync.WaitGroup
	users := make([]*User, 8)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := c.FetchUser(context.Background(), "a")
			assert.NoError(t, err)
			users[i] = u
		}(i)
	}
	wg.Wait()

	for _, u := range users[1:] {
		assert.Same(t, users[0], u)
	}
}
