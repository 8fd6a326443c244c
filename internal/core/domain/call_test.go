package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallSessionIsRequested(t *testing.T) {
	now := time.Now()
	sess := NewCallSession("r1", "alice", "bob", now)

	assert.False(t, sess.CallerEnded)
	assert.True(t, sess.CalleeEnded, "callee has not joined yet")
	assert.Equal(t, StageRequested, sess.Stage())
	assert.True(t, sess.Unresolved())
	assert.Equal(t, now, sess.StartedAt)
}

func TestStageDerivation(t *testing.T) {
	cases := []struct {
		name        string
		callerEnded bool
		calleeEnded bool
		want        CallStage
	}{
		{"both present", false, false, StageActive},
		{"callee absent", false, true, StageRequested},
		{"caller left", true, false, StageHalfEnded},
		{"both gone", true, true, StageClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := CallSession{Caller: "a", Callee: "b", CallerEnded: tc.callerEnded, CalleeEnded: tc.calleeEnded}
			assert.Equal(t, tc.want, sess.Stage())
		})
	}
}

func TestSetEnded(t *testing.T) {
	sess := NewCallSession("r1", "alice", "bob", time.Now())

	require.True(t, sess.SetEnded("bob", false))
	assert.Equal(t, StageActive, sess.Stage())

	require.True(t, sess.SetEnded("alice", true))
	assert.Equal(t, StageHalfEnded, sess.Stage())
	assert.False(t, sess.CalleeEnded, "peer flag untouched")

	assert.False(t, sess.SetEnded("mallory", true), "non-participant rejected")
	assert.Equal(t, StageHalfEnded, sess.Stage())
}

func TestPeerOf(t *testing.T) {
	sess := NewCallSession("r1", "alice", "bob", time.Now())

	assert.Equal(t, UserID("bob"), sess.PeerOf("alice"))
	assert.Equal(t, UserID("alice"), sess.PeerOf("bob"))
	assert.Equal(t, UserID(""), sess.PeerOf("mallory"))
	assert.True(t, sess.IsCaller("alice"))
	assert.False(t, sess.IsCaller("bob"))
}
