// Package store assembles the local store adapter: an embedded SQLite
// database with goose-managed schema, the per-aggregate repositories, and a
// change notifier that lets editing sessions observe rows the background
// sync channel rewrites.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/repositories/attachments"
	"github.com/mindjig/trace-core/internal/repositories/entries"
	"github.com/mindjig/trace-core/internal/repositories/metadata"
	"github.com/mindjig/trace-core/internal/store/migrations"
)

// Store is the canonical on-device copy of every entry and attachment.
type Store struct {
	DB          *sql.DB
	Entries     entries.Repository
	Attachments attachments.Repository
	Metadata    metadata.Repository
	Changes     *Notifier
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if necessary) the local database at dsn, applies
// migrations and returns the assembled store. The caller must Close it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Cascade deletes from entries to attachments rely on foreign keys.
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		DB:          db,
		Entries:     entries.NewSQLiteRepository(db),
		Attachments: attachments.NewSQLiteRepository(db),
		Metadata:    metadata.NewSQLiteRepository(db),
		Changes:     NewNotifier(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// DeviceID returns this device's stable identity for conflict attribution.
// An override (from config, mainly for tests) wins; otherwise the persisted
// identity is returned, generated on first use.
func (s *Store) DeviceID(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	v, err := s.Metadata.Get(ctx, common.MetaDeviceID)
	if err != nil {
		return "", err
	}
	if len(v) > 0 {
		return string(v), nil
	}

	id := uuid.NewString()
	if err := s.Metadata.Set(ctx, common.MetaDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
