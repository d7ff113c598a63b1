package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// PresenceBroadcaster emits presence snapshots to connecting channels and
// status transitions to co-members of a user's chats.
type PresenceBroadcaster struct {
	registry *ws.Registry
	hub      *ws.Hub
	chats    repositories.ChatRepository
	trail    repositories.PresenceRepository
	backoff  []time.Duration
	tasks    *tasks
	now      func() time.Time

	mu       sync.RWMutex
	statuses map[string]models.PresenceStatus
}

func newPresenceBroadcaster(registry *ws.Registry, hub *ws.Hub, chats repositories.ChatRepository, trail repositories.PresenceRepository, backoff []time.Duration, t *tasks) *PresenceBroadcaster {
	return &PresenceBroadcaster{
		registry: registry,
		hub:      hub,
		chats:    chats,
		trail:    trail,
		backoff:  append([]time.Duration(nil), backoff...),
		tasks:    t,
		now:      time.Now,
		statuses: make(map[string]models.PresenceStatus),
	}
}

// OnConnect registers the channel, sends the snapshot to the connecting channel and then, for a user's first channel,
// announces the online transition in the background. It reports whether
// this was the user's first channel.
func (p *PresenceBroadcaster) OnConnect(ctx context.Context, s ws.Session) bool {
	first := p.registry.Register(s.UserID, s.ChannelID)

	coMembers, lookupErr := p.coMembers(ctx, s.UserID)
	if lookupErr != nil {
		log.Printf("presence co-member lookup failed user_id=%s: %v", s.UserID, lookupErr)
	}
	// The snapshot is sent before any transition is scheduled.
	online := p.registry.OnlineAmong(coMembers)
	if err := p.hub.EmitToChannel(s.ChannelID, events.PresenceSnapshot(online)); err != nil {
		log.Printf("presence snapshot failed channel_id=%s: %v", s.ChannelID, err)
	}

	p.recordSession(ctx, s, first)
	if first && lookupErr == nil {
		p.broadcast(ctx, s.UserID, models.PresenceOnline, coMembers)
	}
	return first
}

// OnDisconnect unregisters the channel. Only the user's last channel
// produces an offline transition.
func (p *PresenceBroadcaster) OnDisconnect(ctx context.Context, channelID string) (string, bool) {
	p.hub.Detach(channelID)
	userID, last := p.registry.Unregister(channelID)
	if userID == "" {
		return "", false
	}
	p.forgetSession(ctx, channelID)
	if !last {
		return userID, false
	}

	p.mu.Lock()
	delete(p.statuses, userID)
	p.mu.Unlock()
	p.recordStatus(ctx, userID, models.PresenceOffline)

	bg := context.WithoutCancel(ctx)
	p.tasks.Go(func() {
		coMembers, err := p.coMembers(bg, userID)
		if err != nil {
			log.Printf("presence co-member lookup failed user_id=%s: %v", userID, err)
			return
		}
		p.broadcast(bg, userID, models.PresenceOffline, coMembers)
	})
	return userID, true
}

// SetStatus changes a connected user's advertised status.
func (p *PresenceBroadcaster) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	if !status.Valid() || status == models.PresenceOffline {
		return validationError("unsupported status %q", status)
	}
	if !p.registry.IsOnline(userID) {
		return validationError("user %s has no live channel", userID)
	}

	p.mu.Lock()
	if status == models.PresenceOnline {
		delete(p.statuses, userID)
	} else {
		p.statuses[userID] = status
	}
	p.mu.Unlock()
	p.recordStatus(ctx, userID, status)

	coMembers, err := p.coMembers(ctx, userID)
	if err != nil {
		return err
	}
	p.hub.EmitToUser(userID, events.PresenceUpdate(userID, status))
	p.broadcast(ctx, userID, status, coMembers)
	return nil
}

// Status is the live status of userID.
func (p *PresenceBroadcaster) Status(userID string) models.PresenceStatus {
	if !p.registry.IsOnline(userID) {
		return models.PresenceOffline
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if status, ok := p.statuses[userID]; ok {
		return status
	}
	return models.PresenceOnline
}

// broadcast schedules one independent probe-and-emit per target.
func (p *PresenceBroadcaster) broadcast(ctx context.Context, userID string, status models.PresenceStatus, targets []string) {
	bg := context.WithoutCancel(ctx)
	for _, target := range targets {
		p.tasks.Go(func() { p.notify(bg, target, userID, status) })
	}
}

// notify waits for target's personal group to have a subscriber, retrying on
// the backoff schedule, and drops the transition once it is no longer true.
func (p *PresenceBroadcaster) notify(ctx context.Context, target, userID string, status models.PresenceStatus) {
	for attempt := 0; ; attempt++ {
		if p.Status(userID) != status {
			observability.IncPresenceProbe("stale")
			return
		}
		if p.hub.HasPersonalSubscribers(target) {
			if p.hub.EmitToUser(target, events.PresenceUpdate(userID, status)) > 0 {
				observability.IncPresenceProbe("delivered")
				return
			}
		}
		if attempt >= len(p.backoff) {
			observability.IncPresenceProbe("gave_up")
			return
		}
		timer := time.NewTimer(p.backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// coMembers returns the distinct members of every chat userID belongs to,
// excluding userID itself.
func (p *PresenceBroadcaster) coMembers(ctx context.Context, userID string) ([]string, error) {
	memberships, err := p.chats.ListMemberships(ctx, userID)
	if err != nil {
		return nil, storageError("list memberships", err)
	}
	seen := map[string]struct{}{userID: {}}
	out := make([]string, 0)
	for _, m := range memberships {
		for _, member := range m.Members {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			out = append(out, member)
		}
	}
	return out, nil
}

func (p *PresenceBroadcaster) recordSession(ctx context.Context, s ws.Session, first bool) {
	if p.trail == nil {
		return
	}
	now := p.now().UTC()
	if first {
		p.recordStatus(ctx, s.UserID, models.PresenceOnline)
	}
	err := p.trail.AddSession(ctx, models.PresenceSession{
		ChannelID:  s.ChannelID,
		UserID:     s.UserID,
		DeviceInfo: s.DeviceInfo,
		LastActive: now,
	})
	if err != nil {
		log.Printf("presence trail add session failed channel_id=%s: %v", s.ChannelID, err)
	}
}

func (p *PresenceBroadcaster) forgetSession(ctx context.Context, channelID string) {
	if p.trail == nil {
		return
	}
	if err := p.trail.RemoveSession(ctx, channelID); err != nil {
		log.Printf("presence trail remove session failed channel_id=%s: %v", channelID, err)
	}
}

func (p *PresenceBroadcaster) recordStatus(ctx context.Context, userID string, status models.PresenceStatus) {
	if p.trail == nil {
		return
	}
	if err := p.trail.UpsertStatus(ctx, userID, status, p.now().UTC()); err != nil {
		log.Printf("presence trail upsert failed user_id=%s status=%s: %v", userID, status, err)
	}
}
