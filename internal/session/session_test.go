package session

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suratline/internal/db"
	"suratline/internal/migrate"
	"suratline/internal/repo"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Clear(ctx))
	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.Set(ctx, "tu1"))
	v, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tu1", v)

	require.NoError(t, s.Set(ctx, "coord1"))
	v, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "coord1", v)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSQLStore(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	exerciseStore(t, SQLStore{Repo: repo.Repo{DB: conn}})
}

// Needs a reachable Redis; set SURATLINE_TEST_REDIS=localhost:6379.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SURATLINE_TEST_REDIS")
	if addr == "" {
		t.Skip("SURATLINE_TEST_REDIS not set")
	}
	s := NewRedisStore(addr, "", 0)
	defer s.Close()
	s.Key = "suratline:test_session"
	pong, err := s.Ping()
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)
	exerciseStore(t, s)
}
