package rtc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ohsori/sori/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Signaler is the client's view of the signaling channel.
type Signaler interface {
	Send(event string, payload any) error
	// Subscribe registers a handler for an event. The returned subscription
	// must be unsubscribed on session teardown; handlers are never removed
	// implicitly.
	Subscribe(event string, fn func(json.RawMessage)) Subscription
	Close() error
}

type Subscription interface {
	Unsubscribe()
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WSSignaler speaks the server's websocket envelope protocol.
type WSSignaler struct {
	conn *websocket.Conn
	wmu  sync.Mutex

	mu     sync.Mutex
	subs   map[string]map[int]func(json.RawMessage)
	nextID int

	closeOnce sync.Once
}

// Dial connects to the signaling server and registers the user.
func Dial(ctx context.Context, rawURL string, user domain.UserID) (*WSSignaler, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}

	s := &WSSignaler{
		conn: conn,
		subs: make(map[string]map[int]func(json.RawMessage)),
	}
	go s.readLoop()

	if err := s.Send(domain.EventRegister, map[string]any{"email": user}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *WSSignaler) Send(event string, payload any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(outboundFrame{Event: event, Data: payload})
}

func (s *WSSignaler) Subscribe(event string, fn func(json.RawMessage)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	handlers, ok := s.subs[event]
	if !ok {
		handlers = make(map[int]func(json.RawMessage))
		s.subs[event] = handlers
	}

	id := s.nextID
	s.nextID++
	handlers[id] = fn

	return &wsSubscription{signaler: s, event: event, id: id}
}

func (s *WSSignaler) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *WSSignaler) readLoop() {
	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Signaling connection lost")
			}
			return
		}

		s.mu.Lock()
		handlers := make([]func(json.RawMessage), 0, len(s.subs[frame.Event]))
		for _, fn := range s.subs[frame.Event] {
			handlers = append(handlers, fn)
		}
		s.mu.Unlock()

		for _, fn := range handlers {
			fn(frame.Data)
		}
	}
}

type wsSubscription struct {
	signaler *WSSignaler
	event    string
	id       int
	once     sync.Once
}

func (sub *wsSubscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.signaler.mu.Lock()
		defer sub.signaler.mu.Unlock()

		if handlers, ok := sub.signaler.subs[sub.event]; ok {
			delete(handlers, sub.id)
			if len(handlers) == 0 {
				delete(sub.signaler.subs, sub.event)
			}
		}
	})
}
