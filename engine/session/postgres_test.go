package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/core"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectSessionPattern = `SELECT state FROM sessions WHERE session_id = \$1 AND \(expires_at IS NULL OR expires_at > now\(\)\)`

func TestPostgresStoreGet(t *testing.T) {
	t.Run("Should load and decode the stored document", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, time.Hour)
		ctx := context.Background()

		s := fullSession(t)
		doc, err := session.Encode(s)
		require.NoError(t, err)
		rows := mockPool.NewRows([]string{"state"}).AddRow(doc)
		mockPool.ExpectQuery(selectSessionPattern).
			WithArgs(s.ID.String()).
			WillReturnRows(rows)

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		gotDoc, err := session.Encode(got)
		require.NoError(t, err)
		assert.Equal(t, string(doc), string(gotDoc))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should return ErrNotFound when no live row exists", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, time.Hour)
		id := core.MustNewID()

		mockPool.ExpectQuery(selectSessionPattern).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err = store.Get(context.Background(), id)
		assert.ErrorIs(t, err, session.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStorePut(t *testing.T) {
	t.Run("Should upsert the document with an expiry", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, time.Hour)

		s := fullSession(t)
		doc, err := session.Encode(s)
		require.NoError(t, err)
		mockPool.ExpectExec("INSERT INTO sessions").
			WithArgs(s.ID.String(), doc, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Put(context.Background(), s))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should store a nil expiry when no TTL is configured", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, 0)

		s := session.New(core.MustNewID())
		doc, err := session.Encode(s)
		require.NoError(t, err)
		mockPool.ExpectExec("INSERT INTO sessions").
			WithArgs(s.ID.String(), doc, (*time.Time)(nil)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Put(context.Background(), s))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStoreHealth(t *testing.T) {
	t.Run("Should pass when the database answers", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, time.Hour)

		rows := mockPool.NewRows([]string{"?column?"}).AddRow(1)
		mockPool.ExpectQuery("SELECT 1").WillReturnRows(rows)

		assert.NoError(t, store.HealthCheck(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("Should surface connection failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		store := session.NewPostgresStoreWithDB(mockPool, time.Hour)

		mockPool.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

		assert.Error(t, store.HealthCheck(context.Background()))
	})
}
