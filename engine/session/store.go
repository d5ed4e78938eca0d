package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
)

// ErrNotFound is returned by Store.Get for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions by id. Implementations handle their own eviction;
// the engine never deletes a session.
type Store interface {
	// Get loads a session. Unknown and expired ids return ErrNotFound.
	Get(ctx context.Context, id core.ID) (*Session, error)
	// Put saves the full session document, refreshing its TTL where the
	// driver supports one.
	Put(ctx context.Context, s *Session) error
	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
	// Close releases driver resources.
	Close(ctx context.Context) error
}

// NewStore builds the configured store driver.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Session.Driver {
	case "", "memory":
		return NewMemoryStore(ctx, cfg.Session.TTL)
	case "redis":
		return NewRedisStore(ctx, &cfg.Session)
	case "postgres":
		return NewPostgresStore(ctx, &cfg.Session)
	default:
		return nil, fmt.Errorf("unknown session store driver: %q", cfg.Session.Driver)
	}
}
