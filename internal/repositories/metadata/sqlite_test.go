package metadata_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mindjig/trace-core/internal/repositories/metadata"
	"github.com/mindjig/trace-core/internal/store"
)

func setupRepo(t *testing.T) *metadata.SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, store.RunMigrations(ctx, db))
	return metadata.NewSQLiteRepository(db)
}

func TestGet_MissingKeyReturnsNil(t *testing.T) {
	repo := setupRepo(t)

	v, err := repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSetGet_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "pull_cursor", []byte("c-42")))

	v, err := repo.Get(ctx, "pull_cursor")
	require.NoError(t, err)
	assert.Equal(t, []byte("c-42"), v)
}

func TestSet_OverwritesExisting(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "access_token", []byte("old")))
	require.NoError(t, repo.Set(ctx, "access_token", []byte("new")))

	v, err := repo.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "device_id", []byte("dev-a")))
	require.NoError(t, repo.Delete(ctx, "device_id"))

	v, err := repo.Get(ctx, "device_id")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestClear_RemovesEverything(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "a", []byte("1")))
	require.NoError(t, repo.Set(ctx, "b", []byte("2")))
	require.NoError(t, repo.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		v, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
}
