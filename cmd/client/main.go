package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/ohsori/sori/internal/rtc"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Reference voice client: registers, places or answers a call, and streams a
// silent opus track. Meant for exercising the server end to end without a
// browser.
func main() {
	server := flag.String("server", "ws://localhost:8080/ws", "signaling server url")
	user := flag.String("user", "", "identity to register as")
	callTo := flag.String("call", "", "user to call; answer mode when empty")
	flag.Parse()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger()
	zlog.Logger = l

	if *user == "" {
		l.Fatal().Msg("-user is required")
	}
	me := domain.UserID(*user)

	ctx := context.Background()
	signaler, err := rtc.Dial(ctx, *server, me)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to reach signaling server")
	}
	defer signaler.Close()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "sori-client")
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create audio track")
	}
	go streamSilence(audio)

	mgr := rtc.NewManager(signaler, audio,
		rtc.WithOnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			l.Info().Str("kind", track.Kind().String()).Msg("Remote track")
		}))
	defer mgr.Close()

	var (
		mu     sync.Mutex
		roomID domain.RoomID
		peer   domain.UserID
		caller bool
	)

	signaler.Subscribe(domain.EventCallIncoming, func(data json.RawMessage) {
		var in domain.IncomingCall
		if err := json.Unmarshal(data, &in); err != nil {
			return
		}
		mu.Lock()
		roomID, peer, caller = in.RoomID, in.From, false
		mu.Unlock()

		l.Info().Str("from", in.From.String()).Msg("Incoming call, accepting")
		signaler.Send(domain.EventCallAccept, map[string]any{"to": in.From, "roomId": in.RoomID})
		go func() {
			if err := mgr.Accept(ctx); err != nil {
				l.Error().Err(err).Msg("Accept failed")
			}
		}()
	})

	signaler.Subscribe(domain.EventCallPeerConnected, func(json.RawMessage) {
		mu.Lock()
		isCaller, target := caller, peer
		mu.Unlock()
		l.Info().Msg("Peer connected")
		if isCaller {
			go func() {
				if err := mgr.StartCall(ctx, target); err != nil {
					l.Error().Err(err).Msg("Offer failed")
				}
			}()
		}
	})

	signaler.Subscribe(domain.EventCallReconnSuccess, func(data json.RawMessage) {
		var p domain.ResumePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		// Only the rejoiner re-originates signaling; the other side waits
		// for the fresh offer.
		if p.Rejoiner != me {
			return
		}
		mu.Lock()
		target := peer
		mu.Unlock()
		go mgr.StartCall(ctx, target)
	})

	onClosed := func(json.RawMessage) {
		l.Info().Msg("Call over")
		mgr.Teardown()
	}
	signaler.Subscribe(domain.EventCallEnd, onClosed)
	signaler.Subscribe(domain.EventCallClear, onClosed)

	signaler.Subscribe(domain.EventCallBusy, func(json.RawMessage) {
		l.Warn().Msg("Peer is busy")
		mgr.Teardown()
	})

	if *callTo != "" {
		mu.Lock()
		roomID, peer, caller = domain.NewRoomID(), domain.UserID(*callTo), true
		mu.Unlock()

		l.Info().Str("to", *callTo).Msg("Calling")
		signaler.Send(domain.EventCallRequest, map[string]any{
			"to":       *callTo,
			"roomId":   roomID,
			"from":     me,
			"nickname": *user,
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	mu.Lock()
	room, target := roomID, peer
	mu.Unlock()
	if room != "" && target != "" {
		signaler.Send(domain.EventCallEnd, map[string]any{"roomId": room, "to": target})
	}
	signaler.Send(domain.EventLogout, map[string]any{"email": me})
	mgr.Teardown()
	l.Info().Msg("Bye")
}

// streamSilence keeps the audio sender alive with 20ms opus silence frames.
func streamSilence(track *webrtc.TrackLocalStaticSample) {
	const frame = 20 * time.Millisecond
	silence := []byte{0xf8, 0xff, 0xfe}

	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for range ticker.C {
		if err := track.WriteSample(media.Sample{Data: silence, Duration: frame}); err != nil {
			return
		}
	}
}
