package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgPingTimeout = 5 * time.Second

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSessionSQL = `
INSERT INTO sessions (session_id, state, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (session_id) DO UPDATE SET
    state = $2,
    expires_at = $3,
    updated_at = now()`

// DB is the minimal database interface PostgresStore depends on
// (pgxpool.Pool or pgxmock).
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sessions as one JSONB document per row. Expiry is
// lazy: reads filter on expires_at and stale rows are swept at startup.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPostgresStore connects a pgx pool, ensures the sessions table exists
// and sweeps rows that expired while the process was down.
func NewPostgresStore(ctx context.Context, cfg *config.SessionConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString.Value())
	if err != nil {
		return nil, fmt.Errorf("connect session postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping session postgres: %w", err)
	}
	store := &PostgresStore{db: pool, pool: pool, ttl: cfg.TTL}
	if err := store.prepareTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.FromContext(ctx).Debug("session store ready", "driver", "postgres", "ttl", cfg.TTL)
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing connection; used by tests with a
// mock pool. The caller owns the table schema.
func NewPostgresStoreWithDB(db DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

func (p *PostgresStore) prepareTable(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, sessionsSchema); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	if _, err := p.db.Exec(ctx, "DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= now()"); err != nil {
		return fmt.Errorf("sweep expired sessions: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id core.ID) (*Session, error) {
	query, args, err := squirrel.Select("state").
		From("sessions").
		Where(squirrel.Eq{"session_id": id.String()}).
		Where(squirrel.Or{
			squirrel.Eq{"expires_at": nil},
			squirrel.Expr("expires_at > now()"),
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session query: %w", err)
	}
	var doc []byte
	if err := pgxscan.Get(ctx, p.db, &doc, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return Decode(doc)
}

func (p *PostgresStore) Put(ctx context.Context, s *Session) error {
	doc, err := Encode(s)
	if err != nil {
		return err
	}
	var expiresAt *time.Time
	if p.ttl > 0 {
		t := time.Now().UTC().Add(p.ttl)
		expiresAt = &t
	}
	if _, err := p.db.Exec(ctx, upsertSessionSQL, s.ID.String(), doc, expiresAt); err != nil {
		return fmt.Errorf("put session %s: %w", s.ID, err)
	}
	return nil
}

func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("session store health: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close(_ context.Context) error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
