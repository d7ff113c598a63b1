package models

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceOffline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// PresenceSession is one live channel as recorded in the presence trail.
type PresenceSession struct {
	ChannelID  string    `db:"channel_id" json:"channelId"`
	UserID     string    `db:"user_id" json:"-"`
	DeviceInfo string    `db:"device_info" json:"deviceInfo"`
	LastActive time.Time `db:"last_active" json:"lastActive"`
}

// PresenceRecord is the durable, eventually consistent view of a user's
// presence. The connection registry stays authoritative for live status.
type PresenceRecord struct {
	UserID   string            `db:"user_id" json:"userId"`
	Status   PresenceStatus    `db:"status" json:"status"`
	LastSeen time.Time         `db:"last_seen" json:"lastSeen"`
	Sessions []PresenceSession `db:"-" json:"sessions"`
}
