package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientMessageTTL is how long a client message id stays claimed.
const ClientMessageTTL = 24 * time.Hour

// IdempotencyGuard claims client-generated message ids so retried sends are
// stored once.
type IdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = ClientMessageTTL
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// Claim returns true the first time a (chat, sender, client id) triple is seen.
func (g *IdempotencyGuard) Claim(ctx context.Context, chatID, senderID, clientMessageID string) (bool, error) {
	return g.client.SetNX(ctx, ClientMessageKey(chatID, senderID, clientMessageID), "1", g.ttl).Result()
}

// Release drops a claim so a failed send can be retried with the same id.
func (g *IdempotencyGuard) Release(ctx context.Context, chatID, senderID, clientMessageID string) error {
	return g.client.Del(ctx, ClientMessageKey(chatID, senderID, clientMessageID)).Err()
}

func ClientMessageKey(chatID, senderID, clientMessageID string) string {
	return fmt.Sprintf("realtime:message:idempotency:%s:%s:%s", chatID, senderID, clientMessageID)
}
