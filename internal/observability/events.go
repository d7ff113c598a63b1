package observability

import (
	"context"
	"time"
)

// EventPublisher is the transport used for lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// WSEvent describes one websocket lifecycle event.
type WSEvent struct {
	Name      string
	ChannelID string
	UserID    string
	DeviceID  string
	IP        string
	RequestID string
	TraceID   string
	Connected time.Time
	Reason    string
}

const WSRoutingKey = "ws_events.realtime"

var defaultPublisher EventPublisher

func SetPublisher(publisher EventPublisher) {
	defaultPublisher = publisher
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}
	if envelope.OccurredAt == "" {
		envelope.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	err := defaultPublisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublishWSEvent counts the event and ships it to the event exchange.
func PublishWSEvent(ctx context.Context, ev WSEvent) {
	IncWSEvent(ev.Name)

	durationMS := int64(0)
	if !ev.Connected.IsZero() {
		durationMS = time.Since(ev.Connected).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       ev.Name,
			"channel_id":  ev.ChannelID,
			"duration_ms": durationMS,
			"reason":      ev.Reason,
		},
		"identity": map[string]interface{}{
			"user_id":   ev.UserID,
			"device_id": ev.DeviceID,
			"ip":        ev.IP,
		},
	}
	_ = PublishEvent(ctx, WSRoutingKey, EventEnvelope{
		EventType: "ws_events",
		EventName: ev.Name,
		Payload:   payload,
	}, BuildHeaders(ev.RequestID, ev.TraceID))
}
