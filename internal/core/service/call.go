package service

import (
	"context"
	"errors"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/ohsori/sori/internal/core/port"
	"github.com/rs/zerolog/log"
)

// CallService is the authoritative call state machine. It never trusts
// message order: every handler re-reads the session store and tolerates
// being invoked twice or against an already-closed room.
type CallService struct {
	sessions   port.CallSessionRepository
	gateway    port.RealTimeGateway
	supervisor *TimeoutSupervisor
	now        func() time.Time
}

func NewCallService(sessions port.CallSessionRepository, gateway port.RealTimeGateway, supervisor *TimeoutSupervisor) *CallService {
	s := &CallService{
		sessions:   sessions,
		gateway:    gateway,
		supervisor: supervisor,
		now:        time.Now,
	}
	supervisor.SetExpiryFunc(s.expire)
	return s
}

// Request starts a new call. The caller's previous rooms (if any) are force
// closed first, then the callee's availability is checked; only then is the
// Requested session written and the callee rung.
func (s *CallService) Request(ctx context.Context, from, to domain.UserID, roomID domain.RoomID, info domain.DisplayInfo) error {
	if err := s.closePreviousRooms(ctx, from); err != nil {
		log.Error().Err(err).Str("user", from.String()).Msg("Failed to close previous rooms")
	}

	busy, err := s.isBusy(ctx, to)
	if err != nil {
		return err
	}
	if busy {
		s.send(ctx, from, domain.EventCallBusy, nil)
		log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Call blocked, callee busy")
		return domain.ErrBusy
	}

	sess := domain.NewCallSession(roomID, from, to, s.now())
	if err := s.sessions.Put(ctx, sess); err != nil {
		return err
	}
	s.supervisor.Arm(roomID)

	incoming := domain.IncomingCall{From: from, RoomID: roomID, DisplayInfo: info}
	if err := s.send(ctx, to, domain.EventCallIncoming, incoming); err != nil {
		// Not fatal: the session stays Requested and the grace timer reclaims
		// it if the callee never shows up.
		log.Info().Str("to", to.String()).Str("room_id", roomID.String()).Msg("Callee has no live connection")
	} else {
		log.Info().Str("from", from.String()).Str("to", to.String()).Str("room_id", roomID.String()).Msg("Call requested")
	}
	return nil
}

// Accept moves a Requested session to Active and connects both sides.
func (s *CallService) Accept(ctx context.Context, actor domain.UserID, roomID domain.RoomID) error {
	s.supervisor.Cancel(roomID)

	sess, err := s.sessions.Get(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sess.SetEnded(sess.Callee, false)
	if err := s.sessions.Put(ctx, sess); err != nil {
		return err
	}

	s.send(ctx, sess.Caller, domain.EventCallPeerConnected, nil)
	s.send(ctx, sess.Callee, domain.EventCallPeerConnected, nil)
	log.Info().Str("room_id", roomID.String()).Str("callee", actor.String()).Msg("Call accepted")
	return nil
}

// End marks the actor's side as ended. When the other side already ended the
// record is deleted; otherwise the session goes half-ended and the grace
// timer is armed. Ending an unknown room is a no-op.
func (s *CallService) End(ctx context.Context, actor domain.UserID, roomID domain.RoomID) error {
	sess, err := s.sessions.Get(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !sess.SetEnded(actor, true) {
		log.Warn().Str("room_id", roomID.String()).Str("user", actor.String()).Msg("End from non-participant dropped")
		return nil
	}

	if sess.BothEnded() {
		if err := s.sessions.Delete(ctx, roomID); err != nil {
			return err
		}
		s.supervisor.Cancel(roomID)
		log.Info().Str("room_id", roomID.String()).Msg("Call fully closed")
	} else {
		if err := s.sessions.Put(ctx, sess); err != nil {
			return err
		}
		s.supervisor.Arm(roomID)
		log.Info().Str("room_id", roomID.String()).Str("user", actor.String()).Msg("Call half ended, grace timer armed")
	}

	s.send(ctx, sess.PeerOf(actor), domain.EventCallEnd, nil)
	return nil
}

// Reconn clears the rejoining side's ended flag and hands the up-to-date
// record to both participants. The rejoiner re-originates signaling; the
// peer learns to wait for a fresh offer.
func (s *CallService) Reconn(ctx context.Context, roomID domain.RoomID, from domain.UserID) error {
	sess, err := s.sessions.Get(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !sess.SetEnded(from, false) {
		return nil
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return err
	}
	s.supervisor.Cancel(roomID)

	peer := sess.PeerOf(from)
	s.send(ctx, from, domain.EventCallReconnSuccess, s.resumePayload(sess, sess.IsCaller(from), from))
	s.send(ctx, peer, domain.EventCallReconnSuccess, s.resumePayload(sess, sess.IsCaller(peer), from))
	log.Info().Str("room_id", roomID.String()).Str("rejoiner", from.String()).Msg("Call reconnected")
	return nil
}

// Resume answers an explicit pull for the caller's own session state.
func (s *CallService) Resume(ctx context.Context, roomID domain.RoomID, user domain.UserID) error {
	sess, err := s.sessions.Get(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	payload := s.resumePayload(sess, sess.IsCaller(user), "")
	return s.send(ctx, user, domain.EventCallResumeSuccess, payload)
}

// Clear unconditionally deletes the session (decline / hard hang-up) and
// notifies the other side.
func (s *CallService) Clear(ctx context.Context, roomID domain.RoomID, from, to domain.UserID) error {
	if err := s.sessions.Delete(ctx, roomID); err != nil {
		return err
	}
	s.supervisor.Cancel(roomID)
	s.send(ctx, to, domain.EventCallClear, nil)
	log.Info().Str("room_id", roomID.String()).Str("by", from.String()).Msg("Call cleared")
	return nil
}

// ResumeScan pushes a resume notification for every live session naming the
// user, to both participants. Called right after a (re)register so a
// reloaded tab reattaches to its call automatically.
func (s *CallService) ResumeScan(ctx context.Context, user domain.UserID) error {
	found, err := s.sessions.ScanByParticipant(ctx, user)
	if err != nil {
		return err
	}

	for _, sess := range found {
		peer := sess.PeerOf(user)
		payload := s.resumePayload(sess, sess.IsCaller(user), "")
		payload.Target = peer
		payload.ResumedBy = user

		s.send(ctx, user, domain.EventCallResumeSuccess, payload)
		s.send(ctx, peer, domain.EventCallResumeSuccess, payload)
		log.Info().Str("room_id", sess.RoomID.String()).Str("user", user.String()).Msg("Resume pushed to both sides")
	}
	return nil
}

// CleanupFor runs a unilateral end against every session the user
// participates in. Used by logout and by a confirmed disconnect.
func (s *CallService) CleanupFor(ctx context.Context, user domain.UserID) error {
	found, err := s.sessions.ScanByParticipant(ctx, user)
	if err != nil {
		return err
	}

	for _, sess := range found {
		if err := s.End(ctx, user, sess.RoomID); err != nil {
			log.Error().Err(err).Str("room_id", sess.RoomID.String()).Msg("Cleanup end failed")
		}
	}
	return nil
}

// InCall reports whether the user has any unresolved session.
func (s *CallService) InCall(ctx context.Context, user domain.UserID) (bool, error) {
	return s.isBusy(ctx, user)
}

func (s *CallService) isBusy(ctx context.Context, user domain.UserID) (bool, error) {
	found, err := s.sessions.ScanByParticipant(ctx, user)
	if err != nil {
		return false, err
	}
	for _, sess := range found {
		if sess.Unresolved() {
			return true, nil
		}
	}
	return false, nil
}

// closePreviousRooms force-closes every room the caller is still part of
// before a new request, so a user can never hold two sessions.
func (s *CallService) closePreviousRooms(ctx context.Context, user domain.UserID) error {
	found, err := s.sessions.ScanByParticipant(ctx, user)
	if err != nil {
		return err
	}

	for _, sess := range found {
		s.supervisor.Cancel(sess.RoomID)
		if err := s.sessions.Delete(ctx, sess.RoomID); err != nil {
			return err
		}

		s.send(ctx, sess.PeerOf(user), domain.EventCallReClear, nil)
		s.send(ctx, user, domain.EventCallReCall, nil)
		log.Info().Str("room_id", sess.RoomID.String()).Str("user", user.String()).Msg("Previous room force closed")
	}
	return nil
}

// expire runs when a room's grace timer fires. The record is re-read first:
// a session that went back to Active in the meantime is left alone, and a
// record that is already gone makes this a no-op.
func (s *CallService) expire(roomID domain.RoomID) {
	ctx := context.Background()

	sess, err := s.sessions.Get(ctx, roomID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("Expiry re-read failed")
		return
	}
	if sess.Stage() == domain.StageActive {
		return
	}

	if err := s.sessions.Delete(ctx, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("Expiry delete failed")
		return
	}

	s.send(ctx, sess.Caller, domain.EventCallClear, nil)
	s.send(ctx, sess.Callee, domain.EventCallClear, nil)
	log.Info().Str("room_id", roomID.String()).Msg("Grace period over, room reclaimed")
}

func (s *CallService) resumePayload(sess domain.CallSession, isCaller bool, rejoiner domain.UserID) domain.ResumePayload {
	return domain.ResumePayload{
		RoomID:      sess.RoomID,
		IsCaller:    isCaller,
		Rejoiner:    rejoiner,
		StartedAt:   sess.StartedAt.UnixMilli(),
		CallerEnded: sess.CallerEnded,
		CalleeEnded: sess.CalleeEnded,
	}
}

// send is fire-and-forget toward a single user; unreachable peers are the
// caller's problem only when they care.
func (s *CallService) send(ctx context.Context, user domain.UserID, event string, payload any) error {
	if user == "" {
		return domain.ErrPeerUnreachable
	}
	return s.gateway.SendToUser(ctx, user, event, payload)
}
