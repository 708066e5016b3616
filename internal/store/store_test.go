package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/store"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "trace.db")

	st, err := store.Open(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	err = st.Entries.Upsert(ctx, &models.Entry{
		Id:        "e-1",
		Body:      "first",
		Type:      models.EntryTypeNote,
		EntryDate: at,
		CreatedAt: at,
		UpdatedAt: at,
		Version:   1,
	})
	require.NoError(t, err)
}

func TestOpen_DataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "trace.db")

	st, err := store.Open(ctx, dsn)
	require.NoError(t, err)

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.Entries.Upsert(ctx, &models.Entry{
		Id:        "e-1",
		Body:      "persisted",
		Type:      models.EntryTypeNote,
		EntryDate: at,
		CreatedAt: at,
		UpdatedAt: at,
		Version:   1,
	}))
	require.NoError(t, st.Close())

	st, err = store.Open(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Entries.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Body)
}

func TestDeviceID_GeneratedOnceAndPersisted(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer st.Close()

	first, err := st.DeviceID(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := st.DeviceID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeviceID_OverrideWins(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer st.Close()

	id, err := st.DeviceID(ctx, "dev-override")
	require.NoError(t, err)
	assert.Equal(t, "dev-override", id)

	// The override is never persisted; removing it falls back to a
	// generated identity.
	generated, err := st.DeviceID(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, "dev-override", generated)
}
