package domain

import (
	"github.com/google/uuid"
)

// UserID is the stable identity a user registers under (an email address in
// practice). It outlives any single websocket connection.
type UserID string

// RoomID identifies a DM room; it doubles as the call session key.
type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}

func (id UserID) String() string {
	return string(id)
}

func (id RoomID) String() string {
	return string(id)
}
