package http

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ohsori/sori/internal/adapter/driven/gateway/ws"
	"github.com/ohsori/sori/internal/adapter/driven/persistence/memory"
	"github.com/ohsori/sori/internal/core/domain"
	"github.com/ohsori/sori/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := ws.NewHub()
	supervisor := service.NewTimeoutSupervisor(time.Minute)
	calls := service.NewCallService(memory.NewCallSessionRepository(), hub, supervisor)
	registrar := service.NewRegistrar(hub, memory.NewPresenceRepository(), hub, calls, 50*time.Millisecond)
	relay := service.NewRelay(hub)

	h := NewHandler(registrar, calls, relay, hub)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		srv.Close()
		registrar.Stop()
		supervisor.Stop()
		hub.Stop()
	})
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(wireOut{Event: event, Data: data}))
}

// readUntil reads frames off conn until one carries the wanted event, skipping
// interleaved broadcasts like status-update.
func readUntil(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame wireIn
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %q", event)
		if frame.Event == event {
			return frame.Data
		}
	}
}

func registerUser(t *testing.T, conn *websocket.Conn, user domain.UserID) {
	t.Helper()
	sendEvent(t, conn, domain.EventRegister, registerDTO{Email: user})
	readUntil(t, conn, domain.EventRegistered)
}

func TestCallFlowOverWebsocket(t *testing.T) {
	srv := newTestServer(t)

	alice := dialWS(t, srv)
	bob := dialWS(t, srv)
	registerUser(t, alice, "alice@ohsori.my")
	registerUser(t, bob, "bob@ohsori.my")

	roomID := domain.NewRoomID()

	sendEvent(t, alice, domain.EventCallRequest, callRequestDTO{
		To:     "bob@ohsori.my",
		RoomID: roomID,
		DisplayInfo: domain.DisplayInfo{
			Nickname: "Alice",
			Tag:      "#0001",
		},
	})

	var incoming domain.IncomingCall
	require.NoError(t, json.Unmarshal(readUntil(t, bob, domain.EventCallIncoming), &incoming))
	assert.Equal(t, domain.UserID("alice@ohsori.my"), incoming.From)
	assert.Equal(t, roomID, incoming.RoomID)
	assert.Equal(t, "Alice", incoming.Nickname)

	sendEvent(t, bob, domain.EventCallAccept, callAcceptDTO{To: "alice@ohsori.my", RoomID: roomID})
	readUntil(t, alice, domain.EventCallPeerConnected)
	readUntil(t, bob, domain.EventCallPeerConnected)

	// A third caller hits the busy callee.
	carol := dialWS(t, srv)
	registerUser(t, carol, "carol@ohsori.my")
	sendEvent(t, carol, domain.EventCallRequest, callRequestDTO{
		To:     "bob@ohsori.my",
		RoomID: domain.NewRoomID(),
	})
	readUntil(t, carol, domain.EventCallBusy)

	// Signaling relays with the sender stamped server-side.
	sendEvent(t, alice, domain.EventOffer, domain.OfferEnvelope{
		To:    "bob@ohsori.my",
		Offer: json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})
	var offer domain.OfferEnvelope
	require.NoError(t, json.Unmarshal(readUntil(t, bob, domain.EventOffer), &offer))
	assert.Equal(t, domain.UserID("alice@ohsori.my"), offer.From)

	sendEvent(t, alice, domain.EventCallEnd, callEndDTO{RoomID: roomID})
	readUntil(t, bob, domain.EventCallEnd)
}

func TestEventsBeforeRegisterAreDropped(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv)
	sendEvent(t, conn, domain.EventCallRequest, callRequestDTO{
		To:     "bob@ohsori.my",
		RoomID: domain.NewRoomID(),
	})

	// The frame is discarded, not answered.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var frame wireIn
	err := conn.ReadJSON(&frame)
	require.Error(t, err)
	assert.True(t, os.IsTimeout(err), "expected a read timeout, got %v", err)

	// The callee never heard about it either.
	bob := dialWS(t, srv)
	registerUser(t, bob, "bob@ohsori.my")
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray wireIn
	for {
		if err := bob.ReadJSON(&stray); err != nil {
			assert.True(t, os.IsTimeout(err))
			break
		}
		require.NotEqual(t, domain.EventCallIncoming, stray.Event)
	}
}

func TestMalformedPayloadKeepsConnectionAlive(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv)
	registerUser(t, conn, "alice@ohsori.my")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"call:request","data":"not-an-object"}`)))

	// Still able to talk afterwards.
	sendEvent(t, conn, domain.EventSetStatus, statusDTO{Status: domain.StatusAway})
	data := readUntil(t, conn, domain.EventStatusUpdate)

	var update domain.StatusUpdate
	require.NoError(t, json.Unmarshal(data, &update))
	assert.Equal(t, domain.StatusAway, update.Status)
}
