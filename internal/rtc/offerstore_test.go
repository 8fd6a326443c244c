package rtc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ohsori/sori/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsBufferedOffer(t *testing.T) {
	store := NewOfferStore()
	store.Put(domain.OfferEnvelope{From: "alice", Offer: json.RawMessage(`{}`)})

	env, err := store.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), env.From)
}

func TestWaitBlocksUntilPut(t *testing.T) {
	store := NewOfferStore()

	done := make(chan domain.OfferEnvelope, 1)
	go func() {
		env, err := store.Wait(context.Background())
		if err == nil {
			done <- env
		}
	}()

	time.Sleep(20 * time.Millisecond)
	store.Put(domain.OfferEnvelope{From: "bob", Offer: json.RawMessage(`{}`)})

	select {
	case env := <-done:
		assert.Equal(t, domain.UserID("bob"), env.From)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestWaitTimesOut(t *testing.T) {
	store := NewOfferStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := store.Wait(ctx)
	assert.ErrorIs(t, err, domain.ErrOfferTimeout)
}

func TestClearForgetsOffer(t *testing.T) {
	store := NewOfferStore()
	store.Put(domain.OfferEnvelope{From: "alice", Offer: json.RawMessage(`{}`)})
	store.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := store.Wait(ctx)
	assert.ErrorIs(t, err, domain.ErrOfferTimeout)
}
