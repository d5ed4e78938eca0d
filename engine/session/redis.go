package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "upgrade-agent:session:"
	redisPingTimeout = 10 * time.Second
)

// RedisStore persists sessions in Redis with per-key TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects using either a full URL or host/port parts and
// verifies connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *config.SessionConfig) (*RedisStore, error) {
	client, err := buildRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping session redis: %w", err)
	}
	logger.FromContext(ctx).Debug("session store ready", "driver", "redis", "ttl", cfg.TTL)
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests with an
// embedded server.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func buildRedisClient(cfg *config.SessionConfig) (*redis.Client, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse session redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPass.Value(),
		DB:       cfg.RedisDB,
	}), nil
}

func (r *RedisStore) Get(ctx context.Context, id core.ID) (*Session, error) {
	doc, err := r.client.Get(ctx, redisKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return Decode(doc)
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	doc, err := Encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID.String(), doc, r.ttl).Err(); err != nil {
		return fmt.Errorf("put session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("session store health: %w", err)
	}
	return nil
}

func (r *RedisStore) Close(_ context.Context) error {
	return r.client.Close()
}
