package domain

import (
	"time"
)

// CallStage is derived from the two per-side ended flags. The flags, not the
// stage, are what the store persists: each side may leave and rejoin
// independently (tab reload) without the other side losing its place.
type CallStage int

const (
	// StageRequested: caller is waiting, callee has not joined yet.
	StageRequested CallStage = iota
	// StageActive: both sides present.
	StageActive
	// StageHalfEnded: the caller left an accepted call; the grace timer
	// decides whether the room survives.
	StageHalfEnded
	// StageClosed: both sides ended. A session in this stage must not exist
	// in the store.
	StageClosed
)

// CallSession is the authoritative record of one two-party call, keyed by
// RoomID in the session store.
type CallSession struct {
	RoomID    RoomID
	Caller    UserID
	Callee    UserID
	StartedAt time.Time

	CallerEnded bool
	// CalleeEnded starts out true: the callee has not joined yet. It only
	// means "has left" once the call has been accepted.
	CalleeEnded bool
}

// NewCallSession returns a freshly requested session: the caller is present,
// the callee has not joined.
func NewCallSession(roomID RoomID, caller, callee UserID, now time.Time) CallSession {
	return CallSession{
		RoomID:      roomID,
		Caller:      caller,
		Callee:      callee,
		StartedAt:   now,
		CallerEnded: false,
		CalleeEnded: true,
	}
}

func (s CallSession) Stage() CallStage {
	switch {
	case !s.CallerEnded && !s.CalleeEnded:
		return StageActive
	case s.CallerEnded && s.CalleeEnded:
		return StageClosed
	case s.CalleeEnded:
		return StageRequested
	default:
		return StageHalfEnded
	}
}

func (s CallSession) BothEnded() bool {
	return s.CallerEnded && s.CalleeEnded
}

// Unresolved reports whether at least one side is still present. A user with
// an unresolved session counts as busy.
func (s CallSession) Unresolved() bool {
	return !s.CallerEnded || !s.CalleeEnded
}

func (s CallSession) Involves(u UserID) bool {
	return s.Caller == u || s.Callee == u
}

func (s CallSession) IsCaller(u UserID) bool {
	return s.Caller == u
}

// PeerOf returns the other participant, or "" if u is not a participant.
func (s CallSession) PeerOf(u UserID) UserID {
	switch u {
	case s.Caller:
		return s.Callee
	case s.Callee:
		return s.Caller
	default:
		return ""
	}
}

// SetEnded flips u's ended flag and reports whether u is a participant.
func (s *CallSession) SetEnded(u UserID, ended bool) bool {
	switch u {
	case s.Caller:
		s.CallerEnded = ended
	case s.Callee:
		s.CalleeEnded = ended
	default:
		return false
	}
	return true
}
