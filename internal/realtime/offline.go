package realtime

import (
	"context"
	"log"
	"time"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/repositories"
	"marketplace-realtime/internal/ws"
)

// OfflineQueue stores events for users with no live channel and replays them
// when the user reconnects. Delivery is at-least-once.
type OfflineQueue struct {
	store repositories.OfflineRepository
	hub   *ws.Hub
	ttl   time.Duration
	now   func() time.Time
}

func newOfflineQueue(store repositories.OfflineRepository, hub *ws.Hub, ttl time.Duration) *OfflineQueue {
	if ttl <= 0 {
		ttl = models.DefaultOfflineTTL
	}
	return &OfflineQueue{store: store, hub: hub, ttl: ttl, now: time.Now}
}

// Enqueue stores ev for recipientID.
func (q *OfflineQueue) Enqueue(ctx context.Context, recipientID string, kind models.EnvelopeKind, ev events.Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return validationError("encode %s: %v", ev.Name(), err)
	}
	return q.enqueueFrame(ctx, recipientID, kind, ev.Kind().String(), frame)
}

func (q *OfflineQueue) enqueueFrame(ctx context.Context, recipientID string, kind models.EnvelopeKind, name string, frame []byte) error {
	if recipientID == "" {
		return validationError("recipient id is required")
	}
	if !kind.Valid() {
		return validationError("unknown envelope kind %q", kind)
	}
	now := q.now().UTC()
	_, err := q.store.CreateEnvelope(ctx, models.OfflineEnvelope{
		RecipientID: recipientID,
		Kind:        kind,
		Event:       name,
		Content:     frame,
		CreatedAt:   now,
		ExpiresAt:   now.Add(q.ttl),
	})
	if err != nil {
		return storageError("create envelope", err)
	}
	observability.IncOfflineEnvelope("enqueued")
	return nil
}

// Deliver emits ev to userID's personal group and falls back to the queue
// when no channel accepted it. It reports whether delivery was live.
func (q *OfflineQueue) Deliver(ctx context.Context, userID string, kind models.EnvelopeKind, ev events.Event) (bool, error) {
	frame, err := ev.Encode()
	if err != nil {
		return false, validationError("encode %s: %v", ev.Name(), err)
	}
	name := ev.Kind().String()
	if q.hub.EmitFrameToUser(userID, name, frame) > 0 {
		return true, nil
	}
	return false, q.enqueueFrame(ctx, userID, kind, name, frame)
}

// DrainOnConnect replays userID's undelivered envelopes oldest first and
// marks each delivered. One failing envelope does not stop the rest.
func (q *OfflineQueue) DrainOnConnect(ctx context.Context, userID string) (int, error) {
	envelopes, err := q.store.ListUndelivered(ctx, userID, q.now().UTC())
	if err != nil {
		return 0, storageError("list undelivered", err)
	}
	delivered := 0
	for _, env := range envelopes {
		if q.hub.EmitFrameToUser(userID, env.Event, env.Content) == 0 {
			log.Printf("offline replay failed envelope_id=%s user_id=%s", env.ID.Hex(), userID)
			observability.IncOfflineEnvelope("replay_failed")
			continue
		}
		if err := q.store.MarkDelivered(ctx, env.ID.Hex(), q.now().UTC()); err != nil {
			log.Printf("offline mark delivered failed envelope_id=%s: %v", env.ID.Hex(), err)
			observability.IncOfflineEnvelope("mark_failed")
			continue
		}
		observability.IncOfflineEnvelope("delivered")
		delivered++
	}
	return delivered, nil
}

// Expire removes envelopes past their expiry, delivered or not.
func (q *OfflineQueue) Expire(ctx context.Context) (int64, error) {
	n, err := q.store.DeleteExpired(ctx, q.now().UTC())
	if err != nil {
		return 0, storageError("delete expired envelopes", err)
	}
	observability.AddOfflineEnvelopes("expired", n)
	return n, nil
}
