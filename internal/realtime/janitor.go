package realtime

import (
	"context"
	"log"
	"time"

	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// Janitor runs periodic cleanup alongside live traffic.
type Janitor struct {
	offline   *OfflineQueue
	trail     repositories.PresenceRepository
	registry  *ws.Registry
	typing    *TypingTracker
	interval  time.Duration
	idle      time.Duration
	typingTTL time.Duration
	now       func() time.Time
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass. Each step fails independently.
func (j *Janitor) Sweep(ctx context.Context) {
	if n, err := j.offline.Expire(ctx); err != nil {
		log.Printf("janitor offline expiry failed: %v", err)
	} else if n > 0 {
		log.Printf("janitor expired offline envelopes count=%d", n)
	}

	if j.trail != nil {
		now := j.now().UTC()
		if live := j.registry.ChannelIDs(); len(live) > 0 {
			if err := j.trail.TouchSessions(ctx, live, now); err != nil {
				log.Printf("janitor session touch failed: %v", err)
			}
		}
		if n, err := j.trail.PruneSessions(ctx, now.Add(-j.idle)); err != nil {
			log.Printf("janitor session prune failed: %v", err)
		} else if n > 0 {
			log.Printf("janitor pruned idle sessions count=%d", n)
		}
	}

	j.typing.PruneStale(j.typingTTL)
	observability.SetOnlineUsers(j.registry.OnlineCount())
}
