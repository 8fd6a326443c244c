package port

import (
	"context"

	"github.com/ohsori/sori/internal/core/domain"
)

// RealTimeGateway pushes events to live connections. Delivery is
// fire-and-forget: an unreachable target yields domain.ErrPeerUnreachable,
// which callers are free to ignore.
type RealTimeGateway interface {
	SendToUser(ctx context.Context, user domain.UserID, event string, payload any) error
	// SendToRoom delivers to every connection joined to the room except the
	// sender's.
	SendToRoom(ctx context.Context, roomID domain.RoomID, exclude domain.UserID, event string, payload any) error
	Broadcast(ctx context.Context, event string, payload any) error
}
