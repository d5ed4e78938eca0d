package session

import (
	"context"
	"fmt"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	sdk "github.com/echovault/sugardb/sugardb"
)

const memoryKeyPrefix = "session:"

// MemoryStore keeps sessions in an embedded SugarDB instance. It is the
// default driver: no external service, TTL eviction handled by the engine
// process itself.
type MemoryStore struct {
	db  *sdk.SugarDB
	ttl time.Duration
}

// NewMemoryStore starts the embedded instance.
func NewMemoryStore(ctx context.Context, ttl time.Duration) (*MemoryStore, error) {
	db, err := sdk.NewSugarDB(sdk.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("init embedded session store: %w", err)
	}
	logger.FromContext(ctx).Debug("session store ready", "driver", "memory", "ttl", ttl)
	return &MemoryStore{db: db, ttl: ttl}, nil
}

func (m *MemoryStore) Get(_ context.Context, id core.ID) (*Session, error) {
	vals, err := m.db.MGet(memoryKeyPrefix + id.String())
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(vals) == 0 || isMissingValue(vals[0]) {
		return nil, ErrNotFound
	}
	return Decode([]byte(vals[0]))
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	doc, err := Encode(s)
	if err != nil {
		return err
	}
	opt := sdk.SETOptions{}
	if m.ttl > 0 {
		opt.ExpireOpt = sdk.SETPX
		opt.ExpireTime = int(m.ttl.Milliseconds())
	}
	if _, _, err := m.db.Set(memoryKeyPrefix+s.ID.String(), string(doc), opt); err != nil {
		return fmt.Errorf("put session %s: %w", s.ID, err)
	}
	return nil
}

// HealthCheck performs a minimal R/W/TTL cycle against the embedded instance.
func (m *MemoryStore) HealthCheck(_ context.Context) error {
	key := memoryKeyPrefix + "health"
	if _, _, err := m.db.Set(key, "ok", sdk.SETOptions{ExpireOpt: sdk.SETPX, ExpireTime: 500}); err != nil {
		return fmt.Errorf("session store health: %w", err)
	}
	val, err := m.db.Get(key)
	if err != nil {
		return fmt.Errorf("session store health: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("session store health: value mismatch %q", val)
	}
	if _, err := m.db.Del(key); err != nil {
		return fmt.Errorf("session store health: %w", err)
	}
	return nil
}

// Close is a no-op: the embedded instance lives and dies with the process.
func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}

// isMissingValue recognizes the sentinel strings SugarDB returns for keys
// that do not exist or have expired.
func isMissingValue(val string) bool {
	switch val {
	case "", "nil", "(nil)", "<nil>":
		return true
	default:
		return false
	}
}
