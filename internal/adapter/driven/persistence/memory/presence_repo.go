package memory

import (
	"context"
	"sync"

	"github.com/ohsori/sori/internal/core/domain"
)

// PresenceRepository keeps status in a map. Unknown users are offline.
type PresenceRepository struct {
	mu       sync.RWMutex
	statuses map[domain.UserID]domain.Status
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{
		statuses: make(map[domain.UserID]domain.Status),
	}
}

func (r *PresenceRepository) Set(ctx context.Context, user domain.UserID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses[user] = status
	return nil
}

func (r *PresenceRepository) Get(ctx context.Context, user domain.UserID) (domain.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[user]
	if !ok {
		return domain.StatusOffline, nil
	}
	return status, nil
}
