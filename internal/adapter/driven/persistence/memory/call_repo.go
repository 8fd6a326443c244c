package memory

import (
	"context"
	"sync"

	"github.com/ohsori/sori/internal/core/domain"
)

// CallSessionRepository is a mutex-guarded in-memory implementation, used by
// tests and as a redis-less single-node dev mode. It does not survive a
// process restart.
type CallSessionRepository struct {
	mu       sync.RWMutex
	sessions map[domain.RoomID]domain.CallSession
}

func NewCallSessionRepository() *CallSessionRepository {
	return &CallSessionRepository{
		sessions: make(map[domain.RoomID]domain.CallSession),
	}
}

func (r *CallSessionRepository) Get(ctx context.Context, roomID domain.RoomID) (domain.CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[roomID]
	if !ok {
		return domain.CallSession{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (r *CallSessionRepository) Put(ctx context.Context, sess domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sess.RoomID] = sess
	return nil
}

func (r *CallSessionRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, roomID)
	return nil
}

func (r *CallSessionRepository) ScanByParticipant(ctx context.Context, user domain.UserID) ([]domain.CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.CallSession
	for _, sess := range r.sessions {
		if sess.Involves(user) {
			out = append(out, sess)
		}
	}
	return out, nil
}
