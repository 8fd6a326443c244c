package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohsori/sori/internal/core/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the client origin is configurable
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) SendEvent(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(wireOut{Event: event, Data: payload})
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeWS upgrades the connection and runs its read loop. Each connection is
// handled independently; nothing in here blocks another connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		conn: conn,
	}

	l := log.With().Str("conn_id", client.id).Logger()
	l.Info().Msg("New connection")

	h.Hub.Attach(client)

	defer func() {
		l.Info().Msg("Connection closed")
		h.Hub.Detach(client.id)
		h.Registrar.Disconnect(client.id)
		conn.Close()
	}()

	for {
		var req wireIn
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		h.dispatch(r.Context(), client, req, l)
	}
}

// dispatch routes one frame. A malformed or unexpected message is logged and
// dropped; nothing a client sends can take the connection loop down.
func (h *Handler) dispatch(ctx context.Context, client *WSClient, req wireIn, l zerolog.Logger) {
	decode := func(v any) bool {
		if err := json.Unmarshal(req.Data, v); err != nil {
			l.Warn().Err(err).Str("event", req.Event).Msg("Malformed payload dropped")
			return false
		}
		return true
	}

	// The acting user is whoever the registry maps this connection to, never
	// a field in the payload.
	actor, registered := h.Hub.Resolve(client.id)

	if req.Event != domain.EventRegister && !registered {
		l.Warn().Str("event", req.Event).Msg("Event before register dropped")
		return
	}

	switch req.Event {
	case domain.EventRegister:
		var dto registerDTO
		if !decode(&dto) || dto.Email == "" {
			return
		}
		if err := h.Registrar.Register(ctx, dto.Email, client.id); err != nil {
			l.Error().Err(err).Msg("Register failed")
		}

	case domain.EventSetStatus:
		var dto statusDTO
		if !decode(&dto) {
			return
		}
		if err := h.Registrar.SetStatus(ctx, actor, client.id, dto.Status); err != nil {
			l.Warn().Err(err).Msg("Status update ignored")
		}

	case domain.EventLogout:
		if err := h.Registrar.Logout(ctx, actor, client.id); err != nil {
			l.Warn().Err(err).Msg("Logout ignored")
		}

	case domain.EventJoinRoom:
		var dto roomDTO
		if !decode(&dto) {
			return
		}
		h.Hub.JoinRoom(client.id, dto.RoomID)

	case domain.EventLeaveRoom:
		var dto roomDTO
		if !decode(&dto) {
			return
		}
		h.Hub.LeaveRoom(client.id, dto.RoomID)

	case domain.EventCallRequest:
		var dto callRequestDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.Request(ctx, actor, dto.To, dto.RoomID, dto.DisplayInfo); err != nil {
			l.Info().Err(err).Str("room_id", dto.RoomID.String()).Msg("Call request rejected")
		}

	case domain.EventCallAccept:
		var dto callAcceptDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.Accept(ctx, actor, dto.RoomID); err != nil {
			l.Error().Err(err).Msg("Accept failed")
		}

	case domain.EventCallEnd:
		var dto callEndDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.End(ctx, actor, dto.RoomID); err != nil {
			l.Error().Err(err).Msg("End failed")
		}

	case domain.EventCallResume:
		var dto roomDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.Resume(ctx, dto.RoomID, actor); err != nil {
			l.Error().Err(err).Msg("Resume failed")
		}

	case domain.EventCallReconn:
		var dto callReconnDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.Reconn(ctx, dto.RoomID, actor); err != nil {
			l.Error().Err(err).Msg("Reconn failed")
		}

	case domain.EventCallClear:
		var dto callEndDTO
		if !decode(&dto) {
			return
		}
		if err := h.Calls.Clear(ctx, dto.RoomID, actor, dto.To); err != nil {
			l.Error().Err(err).Msg("Clear failed")
		}

	case domain.EventOffer:
		var env domain.OfferEnvelope
		if !decode(&env) {
			return
		}
		h.Relay.ForwardOffer(ctx, actor, env)

	case domain.EventAnswer:
		var env domain.AnswerEnvelope
		if !decode(&env) {
			return
		}
		h.Relay.ForwardAnswer(ctx, actor, env)

	case domain.EventIceCandidate:
		var env domain.IceCandidateEnvelope
		if !decode(&env) {
			return
		}
		h.Relay.ForwardCandidate(ctx, actor, env)

	case domain.EventRenegotiateOffer:
		var env domain.OfferEnvelope
		if !decode(&env) {
			return
		}
		h.Relay.ForwardRenegotiateOffer(ctx, actor, env)

	case domain.EventRenegotiateAnswer:
		var env domain.AnswerEnvelope
		if !decode(&env) {
			return
		}
		h.Relay.ForwardRenegotiateAnswer(ctx, actor, env)

	case domain.EventVoiceActive, domain.EventVoiceInactive:
		var dto voiceActivityDTO
		if !decode(&dto) {
			return
		}
		h.Relay.VoiceActivity(ctx, req.Event, actor, domain.VoiceActivity{RoomID: dto.RoomID, User: dto.Email})

	case domain.EventVoiceSync:
		var dto peerSignalDTO
		if !decode(&dto) {
			return
		}
		h.Relay.VoiceSync(ctx, actor, dto.RoomID, dto.To)

	case domain.EventScreenStopped:
		var dto peerSignalDTO
		if !decode(&dto) {
			return
		}
		h.Relay.ScreenStopped(ctx, actor, dto.RoomID, dto.To)

	default:
		l.Warn().Str("event", req.Event).Msg("Unknown event dropped")
	}
}
