package domain

import (
	"errors"
)

var (
	// ErrBusy: the callee already has an unresolved session.
	ErrBusy = errors.New("callee is busy")

	// ErrSessionNotFound: no store record for the room. Most handlers treat
	// this as "already closed" and no-op.
	ErrSessionNotFound = errors.New("call session not found")

	// ErrPeerUnreachable: the target user has no live connection.
	ErrPeerUnreachable = errors.New("peer has no live connection")

	// ErrOfferTimeout: no buffered offer arrived within the wait window.
	ErrOfferTimeout = errors.New("timed out waiting for offer")

	// ErrStaleConnection: the registry maps the acting user to a different
	// connection than the one the action arrived on.
	ErrStaleConnection = errors.New("stale connection for user")
)
