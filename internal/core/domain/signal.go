package domain

import (
	"encoding/json"
)

// Wire event names. These are the contract with the browser client and must
// not be renamed.
const (
	EventRegister     = "register"
	EventRegistered   = "registered"
	EventStatusUpdate = "status-update"
	EventSetStatus    = "status-set"
	EventLogout       = "logout"
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"

	EventCallRequest       = "call:request"
	EventCallIncoming      = "call:incoming"
	EventCallBusy          = "call:busy"
	EventCallAccept        = "call:accept"
	EventCallPeerConnected = "call:peer-connected"
	EventCallEnd           = "call:end"
	EventCallResume        = "call:resume"
	EventCallResumeSuccess = "call:resume-success"
	EventCallReconn        = "call:reconn"
	EventCallReconnSuccess = "call:reconn-success"
	EventCallClear         = "call:clear"
	EventCallReClear       = "call:re-clear"
	EventCallReCall        = "call:re-call"

	EventOffer             = "webrtc:offer"
	EventAnswer            = "webrtc:answer"
	EventIceCandidate      = "webrtc:ice-candidate"
	EventRenegotiateOffer  = "webrtc:renegotiate-offer"
	EventRenegotiateAnswer = "webrtc:renegotiate-answer"

	EventVoiceActive   = "voice:active"
	EventVoiceInactive = "voice:inactive"
	EventVoiceSync     = "voice:sync"
	EventScreenStopped = "screen:stopped"
)

// DisplayInfo rides along with a call request so the callee can render the
// incoming-call toast without a profile lookup.
type DisplayInfo struct {
	Nickname     string `json:"nickname"`
	Tag          string `json:"tag"`
	ProfileImage string `json:"profileImage,omitempty"`
	Color        string `json:"color,omitempty"`
}

// The relay never inspects session descriptions or candidates; they stay raw.

type OfferEnvelope struct {
	From  UserID          `json:"from"`
	To    UserID          `json:"to,omitempty"`
	Offer json.RawMessage `json:"offer"`
	// Candidates gathered before the offer was sent, bundled so the answering
	// side does not depend on trickle timing.
	Candidates []json.RawMessage `json:"candidates,omitempty"`
}

type AnswerEnvelope struct {
	From   UserID          `json:"from"`
	To     UserID          `json:"to,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

type IceCandidateEnvelope struct {
	From      UserID          `json:"from"`
	To        UserID          `json:"to,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// IncomingCall notifies the callee of a ringing request.
type IncomingCall struct {
	From   UserID `json:"from"`
	RoomID RoomID `json:"roomId"`
	DisplayInfo
}

// ResumePayload is sent for both resume-success and reconn-success. IsCaller
// is relative to the recipient for reconn, and to the resuming user for
// register-triggered resume (both sides get the same payload there).
type ResumePayload struct {
	RoomID      RoomID `json:"roomId"`
	IsCaller    bool   `json:"isCaller"`
	Target      UserID `json:"target,omitempty"`
	ResumedBy   UserID `json:"resumedBy,omitempty"`
	Rejoiner    UserID `json:"rejoiner,omitempty"`
	StartedAt   int64  `json:"startedAt"`
	CallerEnded bool   `json:"callerEnded"`
	CalleeEnded bool   `json:"calleeEnded"`
}

// StatusUpdate is broadcast to every connection when a user's presence
// changes.
type StatusUpdate struct {
	User   UserID `json:"email"`
	Status Status `json:"status"`
}

// VoiceActivity marks a participant's mic as active or inactive; relayed to
// the room, never stored.
type VoiceActivity struct {
	RoomID RoomID `json:"roomId,omitempty"`
	User   UserID `json:"email"`
}
