package port

import (
	"github.com/ohsori/sori/internal/core/domain"
)

// ConnectionRegistry maps a user identity to its live connection id, 1:1 at
// any instant. It holds no durable state; it is rebuilt on every reconnect.
type ConnectionRegistry interface {
	// Bind overwrites both directions and evicts any stale reverse mapping a
	// previous connection of the same user left behind.
	Bind(user domain.UserID, connID string)
	// Unbind removes the mapping only if the user is still bound to connID,
	// and reports whether it did.
	Unbind(user domain.UserID, connID string) bool
	Lookup(user domain.UserID) (connID string, ok bool)
	Resolve(connID string) (domain.UserID, bool)
}
