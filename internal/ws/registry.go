package ws

import (
	"sort"
	"sync"
)

// Registry maps users to their live channels and back. A user may hold many
// channels (devices, tabs); a channel always belongs to exactly one user.
// Every mutation is a single locked map operation.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{}
	owners   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]struct{}),
		owners:   make(map[string]string),
	}
}

// Register binds channelID to userID. It reports first=true only when this
// call took the user from zero to one channel. Repeated calls are no-ops and
// a channel already owned by another user is left untouched.
func (r *Registry) Register(userID, channelID string) bool {
	if userID == "" || channelID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.owners[channelID]; taken {
		return false
	}
	set, ok := r.channels[userID]
	if !ok {
		set = make(map[string]struct{})
		r.channels[userID] = set
	}
	set[channelID] = struct{}{}
	r.owners[channelID] = userID
	return len(set) == 1
}

// Unregister removes one channel. last=true means the owner has no channel
// left and should now be treated as offline.
func (r *Registry) Unregister(channelID string) (userID string, last bool) {
	if channelID == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[channelID]
	if !ok {
		return "", false
	}
	delete(r.owners, channelID)
	set := r.channels[userID]
	delete(set, channelID)
	if len(set) == 0 {
		delete(r.channels, userID)
		return userID, true
	}
	return userID, false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[userID]) > 0
}

// ChannelsFor returns a sorted copy of the user's channels.
func (r *Registry) ChannelsFor(userID string) []string {
	r.mu.RLock()
	set := r.channels[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) UserFor(channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[channelID]
	return userID, ok
}

// OnlineAmong filters userIDs down to those currently online, keeping order.
func (r *Registry) OnlineAmong(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if len(r.channels[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) ChannelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.owners))
	for id := range r.owners {
		out = append(out, id)
	}
	return out
}

// OnlineCount is the number of users with at least one channel.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
