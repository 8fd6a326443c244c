package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ohsori/sori/internal/core/domain"
)

const (
	callRoomPrefix = "call_room:"
	scanBatch      = 100

	// Sessions are deleted explicitly on closure; the TTL is a safety net
	// against rooms orphaned by an operator wiping server state.
	safetyTTL = 24 * time.Hour
)

func callRoomKey(roomID domain.RoomID) string {
	return callRoomPrefix + roomID.String()
}

// CallSessionRepository stores one hash per active room under
// call_room:<roomId>. It survives server restarts, which is what makes
// resume-after-reload work.
type CallSessionRepository struct {
	client *redis.Client
}

func NewCallSessionRepository(client *redis.Client) *CallSessionRepository {
	return &CallSessionRepository{client: client}
}

func (r *CallSessionRepository) Get(ctx context.Context, roomID domain.RoomID) (domain.CallSession, error) {
	fields, err := r.client.HGetAll(ctx, callRoomKey(roomID)).Result()
	if err != nil {
		return domain.CallSession{}, err
	}
	if len(fields) == 0 {
		return domain.CallSession{}, domain.ErrSessionNotFound
	}
	return sessionFromFields(roomID, fields), nil
}

func (r *CallSessionRepository) Put(ctx context.Context, sess domain.CallSession) error {
	key := callRoomKey(sess.RoomID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"caller":      sess.Caller.String(),
		"callee":      sess.Callee.String(),
		"startedAt":   strconv.FormatInt(sess.StartedAt.UnixMilli(), 10),
		"callerEnded": strconv.FormatBool(sess.CallerEnded),
		"calleeEnded": strconv.FormatBool(sess.CalleeEnded),
	})
	pipe.Expire(ctx, key, safetyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *CallSessionRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	return r.client.Del(ctx, callRoomKey(roomID)).Err()
}

func (r *CallSessionRepository) ScanByParticipant(ctx context.Context, user domain.UserID) ([]domain.CallSession, error) {
	var out []domain.CallSession

	iter := r.client.Scan(ctx, 0, callRoomPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Expired or deleted between scan and read.
			continue
		}

		sess := sessionFromFields(domain.RoomID(key[len(callRoomPrefix):]), fields)
		if sess.Involves(user) {
			out = append(out, sess)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sessionFromFields(roomID domain.RoomID, fields map[string]string) domain.CallSession {
	startedAt, _ := strconv.ParseInt(fields["startedAt"], 10, 64)
	return domain.CallSession{
		RoomID:      roomID,
		Caller:      domain.UserID(fields["caller"]),
		Callee:      domain.UserID(fields["callee"]),
		StartedAt:   time.UnixMilli(startedAt),
		CallerEnded: fields["callerEnded"] == "true",
		CalleeEnded: fields["calleeEnded"] == "true",
	}
}
