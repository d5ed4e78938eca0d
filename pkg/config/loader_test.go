package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load built-in defaults", func(t *testing.T) {
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:3030/api", cfg.UpGrade.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.UpGrade.Timeout)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, 0.7, cfg.Engine.ConfidenceThreshold)
		assert.Equal(t, 10, cfg.Engine.MaxTaskSteps)
		assert.Equal(t, "memory", cfg.Session.Driver)
		assert.Equal(t, 5001, cfg.Server.Port)
	})
	t.Run("Should override defaults from environment", func(t *testing.T) {
		t.Setenv("UPGRADE_API_URL", "https://upgrade.example.org/api")
		t.Setenv("ENGINE_MAX_TASK_STEPS", "5")
		t.Setenv("UPGRADE_API_TIMEOUT", "45s")
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://upgrade.example.org/api", cfg.UpGrade.BaseURL)
		assert.Equal(t, 5, cfg.Engine.MaxTaskSteps)
		assert.Equal(t, 45*time.Second, cfg.UpGrade.Timeout)
	})
	t.Run("Should keep secrets redacted when printed", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-secret")
		cfg, err := NewService().Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-secret", cfg.LLM.APIKey.Value())
		assert.Equal(t, "[REDACTED]", cfg.LLM.APIKey.String())
	})
	t.Run("Should reject invalid enum values", func(t *testing.T) {
		t.Setenv("SESSION_STORE_DRIVER", "etcd")
		_, err := NewService().Load(context.Background())
		assert.Error(t, err)
	})
	t.Run("Should require a DSN for the postgres driver", func(t *testing.T) {
		t.Setenv("SESSION_STORE_DRIVER", "postgres")
		_, err := NewService().Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conn_string")
	})
	t.Run("Should require an address for the redis driver", func(t *testing.T) {
		t.Setenv("SESSION_STORE_DRIVER", "redis")
		_, err := NewService().Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis")
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should map documented env vars to config paths", func(t *testing.T) {
		mappings := envMappings()
		assert.Equal(t, "upgrade.base_url", mappings["UPGRADE_API_URL"])
		assert.Equal(t, "llm.model", mappings["MODEL_NAME"])
		assert.Equal(t, "llm.api_key", mappings["ANTHROPIC_API_KEY"])
		assert.Equal(t, "session.driver", mappings["SESSION_STORE_DRIVER"])
		assert.Equal(t, "runtime.debug", mappings["DEBUG"])
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should round-trip config through context", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 9999
		ctx := ContextWithConfig(context.Background(), cfg)
		assert.Equal(t, 9999, FromContext(ctx).Server.Port)
	})
	t.Run("Should fall back to defaults", func(t *testing.T) {
		cfg := FromContext(context.Background())
		require.NotNil(t, cfg)
		assert.Equal(t, 5001, cfg.Server.Port)
	})
}
