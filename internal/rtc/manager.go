package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoActiveCall = errors.New("no active peer connection")

const (
	defaultGatherWait = 2 * time.Second
	defaultOfferWait  = 3 * time.Second
)

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Manager owns the client's single active peer connection and local audio
// track. Starting any new call, outgoing or incoming, tears down the
// previous instance first; a stale handle can never leak into a new call.
type Manager struct {
	signaler Signaler
	cfg      webrtc.Configuration
	audio    webrtc.TrackLocal

	gatherWait time.Duration
	offerWait  time.Duration
	onTrack    func(*webrtc.TrackRemote, *webrtc.RTPReceiver)

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	peer         domain.UserID
	screenSender *webrtc.RTPSender
	remoteSet    bool
	bundling     bool
	bundled      []webrtc.ICECandidateInit

	offers *OfferStore
	queue  *CandidateQueue
	subs   []Subscription
}

type Option func(*Manager)

func WithICEServers(servers []webrtc.ICEServer) Option {
	return func(m *Manager) { m.cfg.ICEServers = servers }
}

// WithOnTrack sets the handler for remote media arriving on the connection.
func WithOnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) Option {
	return func(m *Manager) { m.onTrack = fn }
}

func WithGatherWait(d time.Duration) Option {
	return func(m *Manager) { m.gatherWait = d }
}

func WithOfferWait(d time.Duration) Option {
	return func(m *Manager) { m.offerWait = d }
}

// NewManager wires the manager to the signaling channel. audio is the local
// capture track added to every call.
func NewManager(signaler Signaler, audio webrtc.TrackLocal, opts ...Option) *Manager {
	m := &Manager{
		signaler:   signaler,
		audio:      audio,
		cfg:        webrtc.Configuration{ICEServers: defaultICEServers},
		gatherWait: defaultGatherWait,
		offerWait:  defaultOfferWait,
		offers:     NewOfferStore(),
		queue:      NewCandidateQueue(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.subs = []Subscription{
		signaler.Subscribe(domain.EventOffer, m.onOffer),
		signaler.Subscribe(domain.EventAnswer, m.onAnswer),
		signaler.Subscribe(domain.EventIceCandidate, m.onRemoteCandidate),
		signaler.Subscribe(domain.EventRenegotiateOffer, m.onRenegotiateOffer),
		signaler.Subscribe(domain.EventRenegotiateAnswer, m.onRenegotiateAnswer),
	}
	return m
}

// StartCall originates a call toward target: new peer connection, local
// audio added, offer sent with the candidates gathered so far bundled in.
// Candidates that surface later trickle individually.
func (m *Manager) StartCall(ctx context.Context, target domain.UserID) error {
	m.mu.Lock()
	m.teardownLocked()

	pc, err := m.newPeerConnectionLocked(target)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.bundling = true

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	// Bundle whatever ICE gathering produced within the bound; don't hang on
	// a slow interface, the rest trickles.
	select {
	case <-gathered:
	case <-time.After(m.gatherWait):
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	if m.pc != pc {
		// Torn down while gathering.
		m.mu.Unlock()
		return errNoActiveCall
	}
	m.bundling = false
	bundled := m.bundled
	m.bundled = nil
	local := pc.LocalDescription()
	m.mu.Unlock()

	env := domain.OfferEnvelope{To: target}
	if env.Offer, err = json.Marshal(local); err != nil {
		return err
	}
	for _, c := range bundled {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		env.Candidates = append(env.Candidates, raw)
	}

	log.Info().Str("target", target.String()).Int("bundled", len(bundled)).Msg("Sending offer")
	return m.signaler.Send(domain.EventOffer, env)
}

// Accept answers an incoming call. It waits up to the offer bound for the
// relayed offer to land in the store, then builds the answering connection.
func (m *Manager) Accept(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, m.offerWait)
	defer cancel()

	env, err := m.offers.Wait(wctx)
	if err != nil {
		return err
	}

	var remote webrtc.SessionDescription
	if err := json.Unmarshal(env.Offer, &remote); err != nil {
		return err
	}

	m.mu.Lock()
	m.teardownLocked()

	pc, err := m.newPeerConnectionLocked(env.From)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := pc.SetRemoteDescription(remote); err != nil {
		return err
	}
	m.mu.Lock()
	m.remoteSet = true
	m.mu.Unlock()

	// Candidates bundled with the offer go through the same queue as
	// trickled ones so ordering and dedup hold either way.
	for _, raw := range env.Candidates {
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &c); err != nil {
			log.Warn().Err(err).Msg("Bad bundled candidate dropped")
			continue
		}
		m.queue.Add(c)
	}
	if _, err := m.queue.Flush(pc.AddICECandidate); err != nil {
		log.Warn().Err(err).Msg("Candidate flush failed")
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}

	out := domain.AnswerEnvelope{To: env.From}
	if out.Answer, err = json.Marshal(pc.LocalDescription()); err != nil {
		return err
	}
	if err := m.signaler.Send(domain.EventAnswer, out); err != nil {
		return err
	}

	m.offers.Clear()
	log.Info().Str("from", env.From.String()).Msg("Call answered")
	return nil
}

// AddTrack adds a second media kind (screen share) to the live call and
// renegotiates directly with the peer. The call session record is untouched.
func (m *Manager) AddTrack(track webrtc.TrackLocal) error {
	m.mu.Lock()
	pc := m.pc
	peer := m.peer
	if pc == nil {
		m.mu.Unlock()
		return errNoActiveCall
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.screenSender = sender
	m.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}

	env := domain.OfferEnvelope{To: peer}
	if env.Offer, err = json.Marshal(pc.LocalDescription()); err != nil {
		return err
	}
	log.Info().Str("peer", peer.String()).Msg("Renegotiating with new track")
	return m.signaler.Send(domain.EventRenegotiateOffer, env)
}

// StopScreenShare empties the screen sender slot so the remote side sees the
// track end immediately, and tells the peer explicitly.
func (m *Manager) StopScreenShare(roomID domain.RoomID) error {
	m.mu.Lock()
	sender := m.screenSender
	m.screenSender = nil
	peer := m.peer
	m.mu.Unlock()

	if sender != nil {
		if err := sender.ReplaceTrack(nil); err != nil {
			log.Warn().Err(err).Msg("ReplaceTrack failed")
		}
	}
	if peer == "" {
		return nil
	}
	return m.signaler.Send(domain.EventScreenStopped, map[string]any{"roomId": roomID, "to": peer})
}

// Peer returns who the active connection talks to, if any.
func (m *Manager) Peer() (domain.UserID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer, m.pc != nil
}

// Teardown closes the active connection and clears all buffered state.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// Close tears down and detaches from the signaling channel.
func (m *Manager) Close() {
	m.Teardown()
	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.subs = nil
}

func (m *Manager) newPeerConnectionLocked(peer domain.UserID) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(m.cfg)
	if err != nil {
		return nil, err
	}

	if m.onTrack != nil {
		pc.OnTrack(m.onTrack)
	}
	pc.OnICECandidate(m.onLocalCandidate)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("peer", peer.String()).Str("state", state.String()).Msg("Peer connection state")
	})

	if m.audio != nil {
		if _, err := pc.AddTrack(m.audio); err != nil {
			pc.Close()
			return nil, err
		}
	}

	m.pc = pc
	m.peer = peer
	m.remoteSet = false
	m.bundling = false
	m.bundled = nil
	return pc, nil
}

func (m *Manager) teardownLocked() {
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing peer connection")
		}
		m.pc = nil
	}
	m.screenSender = nil
	m.peer = ""
	m.remoteSet = false
	m.bundling = false
	m.bundled = nil
	m.queue.Reset()
	m.offers.Clear()
}

func (m *Manager) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return // gathering finished
	}
	init := c.ToJSON()

	m.mu.Lock()
	if m.bundling {
		m.bundled = append(m.bundled, init)
		m.mu.Unlock()
		return
	}
	peer := m.peer
	m.mu.Unlock()

	if peer == "" {
		return
	}
	raw, err := json.Marshal(init)
	if err != nil {
		return
	}
	m.signaler.Send(domain.EventIceCandidate, domain.IceCandidateEnvelope{To: peer, Candidate: raw})
}

func (m *Manager) onOffer(data json.RawMessage) {
	var env domain.OfferEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("Malformed offer dropped")
		return
	}
	m.offers.Put(env)
}

func (m *Manager) onAnswer(data json.RawMessage) {
	var env domain.AnswerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("Malformed answer dropped")
		return
	}
	m.applyRemoteDescription(env.Answer)
}

// onRemoteCandidate applies a trickled candidate, or queues it when the
// remote description is not in place yet. Queued candidates flush in arrival
// order right after the description lands.
func (m *Manager) onRemoteCandidate(data json.RawMessage) {
	var env domain.IceCandidateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("Malformed candidate dropped")
		return
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(env.Candidate, &c); err != nil {
		log.Warn().Err(err).Msg("Malformed candidate dropped")
		return
	}

	m.queue.Add(c)

	m.mu.Lock()
	pc, ready := m.pc, m.remoteSet
	m.mu.Unlock()

	if pc != nil && ready {
		if _, err := m.queue.Flush(pc.AddICECandidate); err != nil {
			log.Warn().Err(err).Msg("Candidate apply failed")
		}
	}
}

func (m *Manager) onRenegotiateOffer(data json.RawMessage) {
	var env domain.OfferEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("Malformed renegotiate offer dropped")
		return
	}

	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()
	if pc == nil {
		return
	}

	var remote webrtc.SessionDescription
	if err := json.Unmarshal(env.Offer, &remote); err != nil {
		return
	}
	if err := pc.SetRemoteDescription(remote); err != nil {
		log.Warn().Err(err).Msg("Renegotiate offer rejected")
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return
	}

	out := domain.AnswerEnvelope{To: env.From}
	if out.Answer, err = json.Marshal(pc.LocalDescription()); err != nil {
		return
	}
	m.signaler.Send(domain.EventRenegotiateAnswer, out)
}

func (m *Manager) onRenegotiateAnswer(data json.RawMessage) {
	var env domain.AnswerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	m.applyRemoteDescription(env.Answer)
}

func (m *Manager) applyRemoteDescription(raw json.RawMessage) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		log.Warn().Err(err).Msg("Malformed description dropped")
		return
	}

	m.mu.Lock()
	pc := m.pc
	m.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		log.Warn().Err(err).Msg("SetRemoteDescription failed")
		return
	}

	m.mu.Lock()
	m.remoteSet = true
	m.mu.Unlock()

	if _, err := m.queue.Flush(pc.AddICECandidate); err != nil {
		log.Warn().Err(err).Msg("Candidate flush failed")
	}
}
