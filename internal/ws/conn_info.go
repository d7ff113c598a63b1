package ws

import (
	"time"

	"marketplace-realtime/internal/observability"
)

// ConnInfo describes who is behind a channel, for lifecycle events.
type ConnInfo struct {
	ChannelID   string
	UserID      string
	DeviceID    string
	DeviceInfo  string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) wsEvent(name, reason string) observability.WSEvent {
	return observability.WSEvent{
		Name:      name,
		ChannelID: i.ChannelID,
		UserID:    i.UserID,
		DeviceID:  i.DeviceID,
		IP:        i.IP,
		RequestID: i.RequestID,
		TraceID:   i.TraceID,
		Connected: i.ConnectedAt,
		Reason:    reason,
	}
}
