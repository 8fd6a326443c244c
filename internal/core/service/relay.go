package service

import (
	"context"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/ohsori/sori/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Relay forwards signaling envelopes between two specific peers. It injects
// the sender identity and otherwise never looks inside the payload.
type Relay struct {
	gateway port.RealTimeGateway
}

func NewRelay(gateway port.RealTimeGateway) *Relay {
	return &Relay{gateway: gateway}
}

func (r *Relay) ForwardOffer(ctx context.Context, from domain.UserID, env domain.OfferEnvelope) {
	to := env.To
	env.From = from
	env.To = ""
	r.deliver(ctx, to, domain.EventOffer, env)
}

func (r *Relay) ForwardAnswer(ctx context.Context, from domain.UserID, env domain.AnswerEnvelope) {
	to := env.To
	env.From = from
	env.To = ""
	r.deliver(ctx, to, domain.EventAnswer, env)
}

func (r *Relay) ForwardCandidate(ctx context.Context, from domain.UserID, env domain.IceCandidateEnvelope) {
	to := env.To
	env.From = from
	env.To = ""
	r.deliver(ctx, to, domain.EventIceCandidate, env)
}

// Renegotiation reuses the offer/answer shapes under their own event names so
// an established call can add a media kind (screen share) without restarting
// the whole handshake.

func (r *Relay) ForwardRenegotiateOffer(ctx context.Context, from domain.UserID, env domain.OfferEnvelope) {
	to := env.To
	env.From = from
	env.To = ""
	r.deliver(ctx, to, domain.EventRenegotiateOffer, env)
}

func (r *Relay) ForwardRenegotiateAnswer(ctx context.Context, from domain.UserID, env domain.AnswerEnvelope) {
	to := env.To
	env.From = from
	env.To = ""
	r.deliver(ctx, to, domain.EventRenegotiateAnswer, env)
}

// VoiceActivity relays a mic active/inactive marker to everyone else in the
// room. Nothing is stored.
func (r *Relay) VoiceActivity(ctx context.Context, event string, from domain.UserID, act domain.VoiceActivity) {
	if event != domain.EventVoiceActive && event != domain.EventVoiceInactive {
		return
	}
	roomID := act.RoomID
	act.RoomID = ""
	if err := r.gateway.SendToRoom(ctx, roomID, from, event, act); err != nil {
		log.Debug().Err(err).Str("room_id", roomID.String()).Msg("Voice activity not relayed")
	}
}

// VoiceSync asks the peer to re-announce its mic state, e.g. after a reload.
func (r *Relay) VoiceSync(ctx context.Context, from domain.UserID, roomID domain.RoomID, to domain.UserID) {
	payload := map[string]any{"roomId": roomID, "to": from}
	r.deliver(ctx, to, domain.EventVoiceSync, payload)
}

// ScreenStopped tells the peer the sender tore down its screen-share track.
func (r *Relay) ScreenStopped(ctx context.Context, from domain.UserID, roomID domain.RoomID, to domain.UserID) {
	payload := map[string]any{"roomId": roomID, "from": from}
	r.deliver(ctx, to, domain.EventScreenStopped, payload)
}

func (r *Relay) deliver(ctx context.Context, to domain.UserID, event string, payload any) {
	if to == "" {
		return
	}
	if err := r.gateway.SendToUser(ctx, to, event, payload); err != nil {
		// Fire-and-forget: the sender relies on its own timeouts.
		log.Debug().Err(err).Str("to", to.String()).Str("event", event).Msg("Signal not delivered")
	}
}
