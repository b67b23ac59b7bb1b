package anchor

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to IRONCLAD_TEST_DATABASE_URL or skips the test
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("IRONCLAD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("IRONCLAD_TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())
	return db
}

func TestPostgresKV(t *testing.T) {
	ctx := context.Background()
	kv := NewPostgresKV(openTestDB(t))
	require.NoError(t, kv.EnsureSchema(ctx))

	key := "test/" + uuid.NewString()
	t.Cleanup(func() { _ = kv.Delete(ctx, key) })

	_, ok, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := kv.SetIfAbsent(ctx, key, "100")
	require.NoError(t, err)
	assert.Equal(t, "100", stored)

	stored, err = kv.SetIfAbsent(ctx, key, "200")
	require.NoError(t, err)
	assert.Equal(t, "100", stored)

	require.NoError(t, kv.Set(ctx, key, "300"))
	v, ok, err := kv.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "300", v)

	require.NoError(t, kv.Delete(ctx, key))
	_, ok, err = kv.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
