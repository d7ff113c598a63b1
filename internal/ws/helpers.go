package ws

import "github.com/google/uuid"

func newChannelID() string {
	return uuid.NewString()
}
