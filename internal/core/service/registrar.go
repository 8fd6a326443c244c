package service

import (
	"context"
	"sync"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/ohsori/sori/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Registrar ties a user identity to its live connection and keeps presence in
// step. Disconnects are confirmed through a debounce window so a page reload
// (close followed by an immediate reconnect) never tears down a live call.
type Registrar struct {
	registry port.ConnectionRegistry
	presence port.PresenceRepository
	gateway  port.RealTimeGateway
	calls    *CallService

	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer // connID -> confirm timer
}

func NewRegistrar(registry port.ConnectionRegistry, presence port.PresenceRepository, gateway port.RealTimeGateway, calls *CallService, debounce time.Duration) *Registrar {
	return &Registrar{
		registry: registry,
		presence: presence,
		gateway:  gateway,
		calls:    calls,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Register binds the user to the connection, marks them online and pushes a
// resume notification for any call they are still part of.
func (r *Registrar) Register(ctx context.Context, user domain.UserID, connID string) error {
	// A reconnect supersedes any disconnect still waiting for confirmation.
	if old, ok := r.registry.Lookup(user); ok {
		r.cancelPending(old)
	}
	r.registry.Bind(user, connID)

	if err := r.presence.Set(ctx, user, domain.StatusOnline); err != nil {
		return err
	}
	r.broadcastStatus(ctx, user)

	if err := r.calls.ResumeScan(ctx, user); err != nil {
		log.Error().Err(err).Str("user", user.String()).Msg("Resume scan failed")
	}

	r.gateway.SendToUser(ctx, user, domain.EventRegistered, nil)
	log.Info().Str("user", user.String()).Str("conn_id", connID).Msg("User registered")
	return nil
}

// SetStatus updates a user's own presence (away/dnd/online). Actions from a
// connection the registry no longer maps to the user are ignored.
func (r *Registrar) SetStatus(ctx context.Context, user domain.UserID, connID string, status domain.Status) error {
	if !status.Valid() {
		return nil
	}
	if current, ok := r.registry.Lookup(user); !ok || current != connID {
		return domain.ErrStaleConnection
	}
	if err := r.presence.Set(ctx, user, status); err != nil {
		return err
	}
	r.broadcastStatus(ctx, user)
	return nil
}

// Logout is the immediate, unconditional form of disconnect cleanup: it is an
// explicit user action, so there is nothing to debounce.
func (r *Registrar) Logout(ctx context.Context, user domain.UserID, connID string) error {
	if current, ok := r.registry.Lookup(user); !ok || current != connID {
		return domain.ErrStaleConnection
	}

	r.cancelPending(connID)
	r.teardown(ctx, user, connID)
	log.Info().Str("user", user.String()).Msg("User logged out")
	return nil
}

// Disconnect schedules a confirm-after-debounce cleanup for a dropped
// connection. If the user re-registers before the deadline (a reload), the
// registry no longer maps them to this connection and the timer does nothing.
func (r *Registrar) Disconnect(connID string) {
	user, ok := r.registry.Resolve(connID)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[connID]; ok {
		return
	}

	r.pending[connID] = time.AfterFunc(r.debounce, func() {
		r.confirmDisconnect(user, connID)
	})
	log.Debug().Str("user", user.String()).Str("conn_id", connID).Dur("debounce", r.debounce).Msg("Disconnect pending confirmation")
}

// Stop cancels all pending disconnect confirmations.
func (r *Registrar) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID, t := range r.pending {
		t.Stop()
		delete(r.pending, connID)
	}
}

func (r *Registrar) confirmDisconnect(user domain.UserID, connID string) {
	r.mu.Lock()
	delete(r.pending, connID)
	r.mu.Unlock()

	if current, ok := r.registry.Lookup(user); !ok || current != connID {
		log.Debug().Str("user", user.String()).Msg("Reconnect detected, disconnect dropped")
		return
	}

	ctx := context.Background()
	r.teardown(ctx, user, connID)
	log.Info().Str("user", user.String()).Msg("Disconnect confirmed, user offline")
}

func (r *Registrar) teardown(ctx context.Context, user domain.UserID, connID string) {
	if err := r.calls.CleanupFor(ctx, user); err != nil {
		log.Error().Err(err).Str("user", user.String()).Msg("Call cleanup failed")
	}

	r.registry.Unbind(user, connID)

	if err := r.presence.Set(ctx, user, domain.StatusOffline); err != nil {
		log.Error().Err(err).Str("user", user.String()).Msg("Failed to set offline status")
	}
	r.broadcastStatus(ctx, user)
}

func (r *Registrar) cancelPending(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.pending[connID]; ok {
		t.Stop()
		delete(r.pending, connID)
	}
}

func (r *Registrar) broadcastStatus(ctx context.Context, user domain.UserID) {
	status, err := r.presence.Get(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("user", user.String()).Msg("Failed to read status")
		return
	}
	r.gateway.Broadcast(ctx, domain.EventStatusUpdate, domain.StatusUpdate{User: user, Status: status})
}
