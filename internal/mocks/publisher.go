package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketplace-realtime/internal/telemetry"
)

// PublisherMock stands in for the AMQP publisher behind audit and ws events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// AuditActions lists the actions of every audit envelope published so far.
func (m *PublisherMock) AuditActions() []string {
	var actions []string
	for _, call := range m.Calls {
		if call.Method != "Publish" || len(call.Arguments) < 3 {
			continue
		}
		if env, ok := call.Arguments.Get(2).(telemetry.AuditEnvelope); ok {
			actions = append(actions, env.Payload.Action)
		}
	}
	return actions
}
