package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.realtime", "marketplace-realtime", "test")

	pub.On("Publish", mock.Anything, "audit.realtime", mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string{"x-request-id": "r1"}).
		Return(nil).Once()

	emitter.Emit(context.Background(), AuditRecord{Action: "message.sent", Resource: "chat:c1", Text: "sent", RequestID: "r1", UserID: "u1"})

	pub.AssertExpectations(t)
	env, ok := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, LevelInfo, env.Payload.Level)
	assert.Equal(t, "message.sent", env.Payload.Action)
	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, "marketplace-realtime", env.Service)
}

func TestEmitNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Action: "noop"})
	})
}
