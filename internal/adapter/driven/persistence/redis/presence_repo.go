package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/ohsori/sori/internal/core/domain"
)

const userStatusPrefix = "user_status:"

func userStatusKey(user domain.UserID) string {
	return userStatusPrefix + user.String()
}

// PresenceRepository stores one status string per user.
type PresenceRepository struct {
	client *redis.Client
}

func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func (r *PresenceRepository) Set(ctx context.Context, user domain.UserID, status domain.Status) error {
	return r.client.Set(ctx, userStatusKey(user), string(status), 0).Err()
}

func (r *PresenceRepository) Get(ctx context.Context, user domain.UserID) (domain.Status, error) {
	val, err := r.client.Get(ctx, userStatusKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StatusOffline, nil
	}
	if err != nil {
		return domain.StatusOffline, err
	}

	status := domain.Status(val)
	if !status.Valid() {
		return domain.StatusOffline, nil
	}
	return status, nil
}
