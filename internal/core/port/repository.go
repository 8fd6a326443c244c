package port

import (
	"context"

	"github.com/ohsori/sori/internal/core/domain"
)

// CallSessionRepository is the durable session store. It must survive
// process-local state loss; everything else about the backing store is an
// implementation detail.
type CallSessionRepository interface {
	// Get returns domain.ErrSessionNotFound for an unknown room.
	Get(ctx context.Context, roomID domain.RoomID) (domain.CallSession, error)
	// Put writes the whole record, overwriting any previous one.
	Put(ctx context.Context, sess domain.CallSession) error
	// Delete is a no-op for an unknown room.
	Delete(ctx context.Context, roomID domain.RoomID) error
	// ScanByParticipant returns every session naming the user, in no
	// particular order.
	ScanByParticipant(ctx context.Context, user domain.UserID) ([]domain.CallSession, error)
}

// PresenceRepository stores user reachability status.
type PresenceRepository interface {
	Set(ctx context.Context, user domain.UserID, status domain.Status) error
	// Get returns domain.StatusOffline for an unknown user.
	Get(ctx context.Context, user domain.UserID) (domain.Status, error)
}
