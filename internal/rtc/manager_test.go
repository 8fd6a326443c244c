package rtc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentFrame struct {
	event   string
	payload any
}

// fakeSignaler records outbound frames and lets tests inject inbound ones.
type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentFrame
	subs map[string][]func(json.RawMessage)
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{subs: make(map[string][]func(json.RawMessage))}
}

func (f *fakeSignaler) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{event: event, payload: payload})
	return nil
}

func (f *fakeSignaler) Subscribe(event string, fn func(json.RawMessage)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[event] = append(f.subs[event], fn)
	return fakeSubscription{}
}

func (f *fakeSignaler) Close() error { return nil }

// emit delivers an inbound event the way the read loop would.
func (f *fakeSignaler) emit(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	handlers := append([]func(json.RawMessage){}, f.subs[event]...)
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(raw)
	}
}

func (f *fakeSignaler) framesFor(event string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, fr := range f.sent {
		if fr.event == event {
			out = append(out, fr)
		}
	}
	return out
}

type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() {}

func audioTrack(t *testing.T) *webrtc.TrackLocalStaticSample {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	require.NoError(t, err)
	return track
}

// remoteOffer builds a real offer the way a calling peer would, so Accept has
// a valid description to answer.
func remoteOffer(t *testing.T, from domain.UserID) domain.OfferEnvelope {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))

	raw, err := json.Marshal(pc.LocalDescription())
	require.NoError(t, err)
	return domain.OfferEnvelope{From: from, Offer: raw}
}

func TestStartCallSendsOffer(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, audioTrack(t), WithGatherWait(200*time.Millisecond))
	defer m.Close()

	require.NoError(t, m.StartCall(context.Background(), "bob@ohsori.my"))

	offers := sig.framesFor(domain.EventOffer)
	require.Len(t, offers, 1)

	env, ok := offers[0].payload.(domain.OfferEnvelope)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("bob@ohsori.my"), env.To)

	var desc webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(env.Offer, &desc))
	assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)
	assert.NotEmpty(t, desc.SDP)

	peer, active := m.Peer()
	assert.True(t, active)
	assert.Equal(t, domain.UserID("bob@ohsori.my"), peer)
}

func TestStartCallReplacesPreviousConnection(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, audioTrack(t), WithGatherWait(200*time.Millisecond))
	defer m.Close()

	require.NoError(t, m.StartCall(context.Background(), "bob@ohsori.my"))
	require.NoError(t, m.StartCall(context.Background(), "carol@ohsori.my"))

	peer, active := m.Peer()
	assert.True(t, active)
	assert.Equal(t, domain.UserID("carol@ohsori.my"), peer)
	assert.Len(t, sig.framesFor(domain.EventOffer), 2)
}

func TestAcceptAnswersBufferedOffer(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, audioTrack(t), WithOfferWait(2*time.Second))
	defer m.Close()

	sig.emit(t, domain.EventOffer, remoteOffer(t, "alice@ohsori.my"))

	require.NoError(t, m.Accept(context.Background()))

	answers := sig.framesFor(domain.EventAnswer)
	require.Len(t, answers, 1)

	env, ok := answers[0].payload.(domain.AnswerEnvelope)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice@ohsori.my"), env.To)

	var desc webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(env.Answer, &desc))
	assert.Equal(t, webrtc.SDPTypeAnswer, desc.Type)

	peer, active := m.Peer()
	assert.True(t, active)
	assert.Equal(t, domain.UserID("alice@ohsori.my"), peer)
}

func TestAcceptTimesOutWithoutOffer(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, nil, WithOfferWait(50*time.Millisecond))
	defer m.Close()

	err := m.Accept(context.Background())
	require.ErrorIs(t, err, domain.ErrOfferTimeout)

	_, active := m.Peer()
	assert.False(t, active)
}

func TestAddTrackRequiresActiveCall(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, nil)
	defer m.Close()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "screen")
	require.NoError(t, err)

	assert.Error(t, m.AddTrack(track))
}

func TestTeardownClearsSession(t *testing.T) {
	sig := newFakeSignaler()
	m := NewManager(sig, audioTrack(t), WithGatherWait(200*time.Millisecond))
	defer m.Close()

	require.NoError(t, m.StartCall(context.Background(), "bob@ohsori.my"))
	m.Teardown()

	_, active := m.Peer()
	assert.False(t, active)
}
