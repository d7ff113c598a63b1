package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/observability"
	"marketplace-realtime/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "marketplace.events")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Close())
}

func TestNoopPublisherAcceptsEveryEnvelope(t *testing.T) {
	p := noopPublisher{reason: "test"}
	ctx := context.Background()
	headers := map[string]string{"x-request-id": "r1"}

	assert.NoError(t, p.Publish(ctx, "audit.realtime", telemetry.AuditEnvelope{RequestID: "r1"}, headers))
	assert.NoError(t, p.Publish(ctx, "ws.events", observability.EventEnvelope{EventName: "ws_connect"}, headers))
	assert.NoError(t, p.Publish(ctx, "other", map[string]string{"k": "v"}, nil))
}

func TestClosedPublisherRefusesChannel(t *testing.T) {
	p := &amqpPublisher{exchange: "marketplace.events"}
	require.NoError(t, p.Close())

	_, err := p.channelLocked()
	assert.ErrorIs(t, err, errPublisherClosed)
	assert.Equal(t, "amqp", PublisherMode(p))
	assert.Empty(t, PublisherNoopReason(p))
}
