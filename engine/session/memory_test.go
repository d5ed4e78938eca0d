package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("Should round-trip a full session byte-equal", func(t *testing.T) {
		ctx := context.Background()
		store, err := session.NewMemoryStore(ctx, time.Hour)
		require.NoError(t, err)
		defer store.Close(ctx)

		s := fullSession(t)
		want, err := session.Encode(s)
		require.NoError(t, err)

		require.NoError(t, store.Put(ctx, s))
		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		gotDoc, err := session.Encode(got)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(gotDoc))
	})
	t.Run("Should return ErrNotFound for unknown ids", func(t *testing.T) {
		ctx := context.Background()
		store, err := session.NewMemoryStore(ctx, time.Hour)
		require.NoError(t, err)
		defer store.Close(ctx)

		_, err = store.Get(ctx, core.MustNewID())
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
	t.Run("Should evict sessions after the TTL", func(t *testing.T) {
		ctx := context.Background()
		store, err := session.NewMemoryStore(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		defer store.Close(ctx)

		s := session.New(core.MustNewID())
		require.NoError(t, store.Put(ctx, s))
		_, err = store.Get(ctx, s.ID)
		require.NoError(t, err)

		time.Sleep(80 * time.Millisecond)
		_, err = store.Get(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
	t.Run("Should keep sessions indefinitely without a TTL", func(t *testing.T) {
		ctx := context.Background()
		store, err := session.NewMemoryStore(ctx, 0)
		require.NoError(t, err)
		defer store.Close(ctx)

		s := session.New(core.MustNewID())
		require.NoError(t, store.Put(ctx, s))
		time.Sleep(30 * time.Millisecond)
		_, err = store.Get(ctx, s.ID)
		assert.NoError(t, err)
	})
	t.Run("Should pass its health check", func(t *testing.T) {
		ctx := context.Background()
		store, err := session.NewMemoryStore(ctx, time.Hour)
		require.NoError(t, err)
		defer store.Close(ctx)
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
