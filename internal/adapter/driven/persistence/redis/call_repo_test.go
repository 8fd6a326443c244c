package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/ohsori/sori/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCallRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCallSessionRepository(newTestClient(t))

	_, err := repo.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	started := time.Now().Truncate(time.Millisecond)
	sess := domain.NewCallSession("r1", "alice@x", "bob@x", started)
	require.NoError(t, repo.Put(ctx, sess))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice@x"), got.Caller)
	assert.Equal(t, domain.UserID("bob@x"), got.Callee)
	assert.False(t, got.CallerEnded)
	assert.True(t, got.CalleeEnded)
	assert.True(t, got.StartedAt.Equal(started), "startedAt preserved to the millisecond")
}

func TestCallRepoOverwritePreservesKey(t *testing.T) {
	ctx := context.Background()
	repo := NewCallSessionRepository(newTestClient(t))

	sess := domain.NewCallSession("r1", "alice@x", "bob@x", time.Now())
	require.NoError(t, repo.Put(ctx, sess))

	sess.CalleeEnded = false
	sess.CallerEnded = true
	require.NoError(t, repo.Put(ctx, sess))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageHalfEnded, got.Stage())
}

func TestCallRepoDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewCallSessionRepository(newTestClient(t))

	require.NoError(t, repo.Delete(ctx, "ghost"))

	require.NoError(t, repo.Put(ctx, domain.NewCallSession("r1", "a", "b", time.Now())))
	require.NoError(t, repo.Delete(ctx, "r1"))
	_, err := repo.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCallRepoScanByParticipant(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	repo := NewCallSessionRepository(client)

	require.NoError(t, repo.Put(ctx, domain.NewCallSession("r1", "alice@x", "bob@x", time.Now())))
	require.NoError(t, repo.Put(ctx, domain.NewCallSession("r2", "carol@x", "alice@x", time.Now())))
	require.NoError(t, repo.Put(ctx, domain.NewCallSession("r3", "carol@x", "dave@x", time.Now())))
	// Unrelated keys must not confuse the scan.
	require.NoError(t, client.Set(ctx, "user_status:alice@x", "online", 0).Err())

	found, err := repo.ScanByParticipant(ctx, "alice@x")
	require.NoError(t, err)
	require.Len(t, found, 2)

	rooms := map[domain.RoomID]bool{found[0].RoomID: true, found[1].RoomID: true}
	assert.True(t, rooms["r1"])
	assert.True(t, rooms["r2"])
}
