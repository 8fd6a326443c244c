package http

import (
	"encoding/json"

	"github.com/ohsori/sori/internal/core/domain"
)

// Every websocket frame is an envelope: {"event": "...", "data": {...}}.

type wireIn struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireOut struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type registerDTO struct {
	Email domain.UserID `json:"email"`
}

type statusDTO struct {
	Status domain.Status `json:"status"`
}

type roomDTO struct {
	RoomID domain.RoomID `json:"roomId"`
}

type callRequestDTO struct {
	To     domain.UserID `json:"to"`
	RoomID domain.RoomID `json:"roomId"`
	From   domain.UserID `json:"from"`
	domain.DisplayInfo
}

type callAcceptDTO struct {
	To     domain.UserID `json:"to"`
	RoomID domain.RoomID `json:"roomId"`
}

type callEndDTO struct {
	RoomID domain.RoomID `json:"roomId"`
	To     domain.UserID `json:"to"`
}

type callReconnDTO struct {
	RoomID domain.RoomID `json:"roomId"`
	From   domain.UserID `json:"from"`
}

type voiceActivityDTO struct {
	RoomID domain.RoomID `json:"roomId"`
	Email  domain.UserID `json:"email"`
}

type peerSignalDTO struct {
	RoomID domain.RoomID `json:"roomId"`
	To     domain.UserID `json:"to"`
}
