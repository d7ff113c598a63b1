package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFirstAndLastTransitions(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Register("u1", "c1"))
	assert.False(t, r.Register("u1", "c2"))
	assert.True(t, r.IsOnline("u1"))
	assert.Equal(t, []string{"c1", "c2"}, r.ChannelsFor("u1"))

	userID, last := r.Unregister("c1")
	assert.Equal(t, "u1", userID)
	assert.False(t, last)
	assert.True(t, r.IsOnline("u1"))

	userID, last = r.Unregister("c2")
	assert.Equal(t, "u1", userID)
	assert.True(t, last)
	assert.False(t, r.IsOnline("u1"))
	assert.Empty(t, r.ChannelsFor("u1"))
}

func TestRegistryIgnoresEmptyAndDuplicateIDs(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Register("", "c1"))
	assert.False(t, r.Register("u1", ""))
	assert.Equal(t, 0, r.OnlineCount())

	require.True(t, r.Register("u1", "c1"))
	assert.False(t, r.Register("u1", "c1"))
	assert.False(t, r.Register("u2", "c1"), "channel stays with its first owner")

	owner, ok := r.UserFor("c1")
	assert.True(t, ok)
	assert.Equal(t, "u1", owner)
	assert.False(t, r.IsOnline("u2"))

	userID, last := r.Unregister("missing")
	assert.Empty(t, userID)
	assert.False(t, last)
}

func TestRegistryOnlineAmongKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("b", "c1")
	r.Register("d", "c2")

	assert.Equal(t, []string{"d", "b"}, r.OnlineAmong([]string{"a", "d", "c", "b"}))
	assert.Equal(t, 2, r.OnlineCount())
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ChannelIDs())
}

func TestRegistryConcurrentChurnReportsOneFirstAndOneLast(t *testing.T) {
	r := NewRegistry()
	const n = 50

	var mu sync.Mutex
	firsts, lasts := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Register("u1", channelName(i)) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, firsts)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, last := r.Unregister(channelName(i)); last {
				mu.Lock()
				lasts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, lasts)
	assert.False(t, r.IsOnline("u1"))
}

func channelName(i int) string {
	return "c" + string(rune('A'+i%26)) + string(rune('a'+i/26))
}
