package ws

import (
	"context"
	"sync"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub tracks live connections, the user <-> connection mapping and room
// membership. Implements port.ConnectionRegistry and port.RealTimeGateway.
//
// Binding a user is separate from attaching a connection: a connection exists
// as soon as the websocket is up, but only maps to a user once a register
// event arrives.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]Client // connID -> client
	userConn map[domain.UserID]string
	connUser map[string]domain.UserID
	rooms    map[domain.RoomID]map[string]struct{} // roomID -> connIDs
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]Client),
		userConn: make(map[domain.UserID]string),
		connUser: make(map[string]domain.UserID),
		rooms:    make(map[domain.RoomID]map[string]struct{}),
	}
}

// Attach makes a connection addressable before any user is bound to it.
func (h *Hub) Attach(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID()] = c
	log.Info().Str("conn_id", c.ID()).Msg("Connection attached")
}

// Detach drops the connection and its room memberships. The user binding is
// left in place: the registrar's debounce decides whether the user is really
// gone.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, connID)
	for roomID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	log.Info().Str("conn_id", connID).Msg("Connection detached")
}

func (h *Hub) Bind(user domain.UserID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A previous connection of the same user leaves a stale reverse mapping
	// behind; evict it so Resolve never reports the wrong user.
	if old, ok := h.userConn[user]; ok && old != connID {
		delete(h.connUser, old)
	}
	h.userConn[user] = connID
	h.connUser[connID] = user
}

func (h *Hub) Unbind(user domain.UserID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConn[user] != connID {
		return false
	}
	delete(h.userConn, user)
	delete(h.connUser, connID)
	return true
}

func (h *Hub) Lookup(user domain.UserID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connID, ok := h.userConn[user]
	return connID, ok
}

func (h *Hub) Resolve(connID string) (domain.UserID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	user, ok := h.connUser[connID]
	return user, ok
}

func (h *Hub) JoinRoom(connID string, roomID domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveRoom(connID string, roomID domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) SendToUser(ctx context.Context, user domain.UserID, event string, payload any) error {
	h.mu.RLock()
	connID, ok := h.userConn[user]
	var client Client
	if ok {
		client = h.clients[connID]
	}
	h.mu.RUnlock()

	if client == nil {
		return domain.ErrPeerUnreachable
	}
	if err := client.SendEvent(event, payload); err != nil {
		log.Error().Err(err).Str("user", user.String()).Str("event", event).Msg("Send failed")
		return err
	}
	return nil
}

func (h *Hub) SendToRoom(ctx context.Context, roomID domain.RoomID, exclude domain.UserID, event string, payload any) error {
	h.mu.RLock()
	var targets []Client
	excludeConn := h.userConn[exclude]
	for connID := range h.rooms[roomID] {
		if connID == excludeConn {
			continue
		}
		if client, ok := h.clients[connID]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.SendEvent(event, payload); err != nil {
			log.Error().Err(err).Str("conn_id", client.ID()).Str("event", event).Msg("Room send failed")
		}
	}
	return nil
}

func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.SendEvent(event, payload); err != nil {
			log.Error().Err(err).Str("conn_id", client.ID()).Str("event", event).Msg("Broadcast send failed")
		}
	}
	return nil
}

// Stop closes every connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, client := range h.clients {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Str("conn_id", connID).Msg("Error closing client connection")
		}
		delete(h.clients, connID)
	}
	h.userConn = make(map[domain.UserID]string)
	h.connUser = make(map[string]domain.UserID)
	h.rooms = make(map[domain.RoomID]map[string]struct{})
}
