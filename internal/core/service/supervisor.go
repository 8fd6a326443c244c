package service

import (
	"sync"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// TimeoutSupervisor keeps one in-memory timer per room and force-closes
// half-abandoned sessions after a grace period. The expiry callback re-reads
// the store before acting, so a timer that fires after being logically
// canceled is harmless.
type TimeoutSupervisor struct {
	mu     sync.Mutex
	timers map[domain.RoomID]*time.Timer
	grace  time.Duration
	expire func(domain.RoomID)
}

func NewTimeoutSupervisor(grace time.Duration) *TimeoutSupervisor {
	return &TimeoutSupervisor{
		timers: make(map[domain.RoomID]*time.Timer),
		grace:  grace,
	}
}

// SetExpiryFunc wires the callback invoked when a room's grace period runs
// out. Must be called before the first Arm.
func (s *TimeoutSupervisor) SetExpiryFunc(fn func(domain.RoomID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire = fn
}

// Arm starts the grace timer for a room. A room that already has a pending
// timer keeps it; re-arming does not extend the deadline.
func (s *TimeoutSupervisor) Arm(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[roomID]; ok {
		return
	}

	s.timers[roomID] = time.AfterFunc(s.grace, func() {
		s.fire(roomID)
	})
	log.Debug().Str("room_id", roomID.String()).Dur("grace", s.grace).Msg("Grace timer armed")
}

// Cancel stops and forgets the room's timer, if any.
func (s *TimeoutSupervisor) Cancel(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
		log.Debug().Str("room_id", roomID.String()).Msg("Grace timer canceled")
	}
}

// Stop cancels every pending timer.
func (s *TimeoutSupervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, t := range s.timers {
		t.Stop()
		delete(s.timers, roomID)
	}
}

func (s *TimeoutSupervisor) fire(roomID domain.RoomID) {
	s.mu.Lock()
	delete(s.timers, roomID)
	fn := s.expire
	s.mu.Unlock()

	if fn != nil {
		fn(roomID)
	}
}
