package rtc

import (
	"context"
	"sync"

	"github.com/ohsori/sori/internal/core/domain"
)

// OfferStore buffers the most recent relayed offer. An offer can arrive
// slightly after (or before) the incoming-call notification, so acceptance
// waits on the store instead of on message order.
type OfferStore struct {
	mu      sync.Mutex
	offer   *domain.OfferEnvelope
	waiters []chan domain.OfferEnvelope
}

func NewOfferStore() *OfferStore {
	return &OfferStore{}
}

// Put stores the offer and wakes every waiter.
func (s *OfferStore) Put(env domain.OfferEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offer = &env
	for _, ch := range s.waiters {
		ch <- env
	}
	s.waiters = nil
}

// Wait returns the buffered offer, blocking until one arrives or the context
// runs out. Expiry surfaces domain.ErrOfferTimeout: a recoverable failure,
// not a hang.
func (s *OfferStore) Wait(ctx context.Context) (domain.OfferEnvelope, error) {
	s.mu.Lock()
	if s.offer != nil {
		env := *s.offer
		s.mu.Unlock()
		return env, nil
	}

	ch := make(chan domain.OfferEnvelope, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		s.drop(ch)
		return domain.OfferEnvelope{}, domain.ErrOfferTimeout
	}
}

func (s *OfferStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offer = nil
}

func (s *OfferStore) drop(ch chan domain.OfferEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
