package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("Should default to the memory driver", func(t *testing.T) {
		cfg := config.Default()
		cfg.Session.Driver = ""
		cfg.Session.TTL = time.Hour
		store, err := session.NewStore(context.Background(), cfg)
		require.NoError(t, err)
		defer store.Close(context.Background())
		assert.IsType(t, &session.MemoryStore{}, store)
	})
	t.Run("Should build the memory driver explicitly", func(t *testing.T) {
		cfg := config.Default()
		cfg.Session.Driver = "memory"
		store, err := session.NewStore(context.Background(), cfg)
		require.NoError(t, err)
		defer store.Close(context.Background())
		assert.IsType(t, &session.MemoryStore{}, store)
	})
	t.Run("Should reject unknown drivers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Session.Driver = "etcd"
		_, err := session.NewStore(context.Background(), cfg)
		assert.ErrorContains(t, err, "unknown session store driver")
	})
}
