// Package syncer runs the background sync channel: it pushes locally dirty
// rows to the backend, uploads pending attachment bytes, and pulls remote
// changes into the local store under the version-increment discipline.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/dbx"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
	"github.com/mindjig/trace-core/internal/remote"
	"github.com/mindjig/trace-core/internal/repositories/attachments"
	"github.com/mindjig/trace-core/internal/repositories/entries"
	"github.com/mindjig/trace-core/internal/store"
)

// tokenHolder is implemented by clients whose token pair can rotate during a
// sync; the channel persists the latest pair after each cycle.
type tokenHolder interface {
	Tokens() (access, refresh string)
}

// Channel is the background sync loop. It communicates with editing sessions
// only through the store: rows it writes are announced via the store's change
// notifier.
type Channel struct {
	st       *store.Store
	client   remote.Client
	log      logging.Logger
	interval time.Duration

	online atomic.Bool
}

// New creates a sync channel. interval is the period between sync cycles.
func New(st *store.Store, client remote.Client, interval time.Duration, log logging.Logger) *Channel {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Channel{st: st, client: client, log: log, interval: interval}
}

// Online reports whether the last connectivity probe succeeded.
func (c *Channel) Online() bool {
	return c.online.Load()
}

// Run loops until ctx is cancelled, syncing once immediately and then every
// interval. Sync errors are logged and retried on the next tick, never fatal.
func (c *Channel) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.syncTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncTick(ctx)
		}
	}
}

func (c *Channel) syncTick(ctx context.Context) {
	if err := c.SyncOnce(ctx); err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			c.log.Debug(ctx, "server unreachable, will retry", "error", err)
			return
		}
		c.log.Error(ctx, "sync cycle failed", "error", err)
	}
}

// SyncOnce performs one full cycle: probe, push dirty rows, upload pending
// attachment bytes, pull remote changes.
func (c *Channel) SyncOnce(ctx context.Context) error {
	if err := c.client.Ping(ctx); err != nil {
		c.online.Store(false)
		return err
	}
	c.online.Store(true)

	if err := c.push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := c.uploadPending(ctx); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := c.pull(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	c.persistTokens(ctx)
	return nil
}

// push delivers every dirty row using its pending action. Creates and
// updates are confirmed with MarkSynced guarded by the pushed version, so an
// edit racing the push stays dirty; confirmed tombstones are removed
// physically.
func (c *Channel) push(ctx context.Context) error {
	dirty, err := c.st.Entries.ListDirty(ctx)
	if err != nil {
		return err
	}

	for _, e := range dirty {
		switch e.SyncAction {
		case models.SyncActionDelete:
			if err := c.client.PushDelete(ctx, e.Id, e.Version); err != nil {
				return err
			}
			if err := c.st.Entries.Delete(ctx, e.Id); err != nil {
				return err
			}
			c.log.Debug(ctx, "tombstone confirmed", "entry_id", e.Id)

		case models.SyncActionCreate, models.SyncActionUpdate:
			atts, err := c.st.Attachments.ListByEntry(ctx, e.Id)
			if err != nil {
				return err
			}
			if err := c.client.PushEntry(ctx, e, atts); err != nil {
				return err
			}
			if err := c.st.Entries.MarkSynced(ctx, e.Id, e.Version); err != nil {
				return err
			}
			c.log.Debug(ctx, "entry pushed",
				"entry_id", e.Id, "version", e.Version, "action", string(e.SyncAction))
		}
	}
	return nil
}

// uploadPending ships attachment bytes to presigned storage URLs, one file
// at a time, marking each completed so it is never re-sent.
func (c *Channel) uploadPending(ctx context.Context) error {
	pending, err := c.st.Attachments.ListPendingUpload(ctx)
	if err != nil {
		return err
	}

	for _, a := range pending {
		data, err := os.ReadFile(a.LocalPath)
		if err != nil {
			// cache eviction or a failed migration; nothing to send
			c.log.Warn(ctx, "pending attachment file unreadable",
				"attachment_id", a.Id, "path", a.LocalPath, "error", err)
			continue
		}

		url, err := c.client.GetUploadURL(ctx, a.FilePath)
		if err != nil {
			return err
		}
		if err := c.client.UploadAttachment(ctx, url, data); err != nil {
			return err
		}
		if err := c.st.Attachments.MarkUploaded(ctx, a.Id); err != nil {
			return err
		}
		c.log.Debug(ctx, "attachment uploaded", "attachment_id", a.Id, "bytes", len(data))
	}
	return nil
}

// pull fetches remote changes since the stored cursor and applies them.
func (c *Channel) pull(ctx context.Context) error {
	var cursor string
	if v, err := c.st.Metadata.Get(ctx, common.MetaPullCursor); err != nil {
		return err
	} else if v != nil {
		cursor = string(v)
	}

	res, err := c.client.PullSince(ctx, cursor)
	if err != nil {
		return err
	}

	for _, ch := range res.Changes {
		if err := c.applyChange(ctx, ch); err != nil {
			return err
		}
	}

	if res.Cursor != "" && res.Cursor != cursor {
		if err := c.st.Metadata.Set(ctx, common.MetaPullCursor, []byte(res.Cursor)); err != nil {
			return err
		}
	}
	return nil
}

// applyChange writes one remote change into the store. A remote version that
// does not exceed the local one carries no new information and is dropped; in
// particular a dirty local row is never clobbered by a stale pull.
func (c *Channel) applyChange(ctx context.Context, ch remote.Change) error {
	local, err := c.st.Entries.GetByID(ctx, ch.Entry.Id)
	exists := err == nil
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if exists && ch.Entry.Version <= local.Version {
		return nil
	}

	if ch.Deleted {
		if !exists {
			return nil
		}
		var removed []string
		err := dbx.WithTx(ctx, c.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
			paths, err := attachments.NewSQLiteRepository(tx).DeleteByEntry(ctx, ch.Entry.Id)
			if err != nil {
				return err
			}
			removed = paths
			return entries.NewSQLiteRepository(tx).Delete(ctx, ch.Entry.Id)
		})
		if err != nil {
			return err
		}
		for _, p := range removed {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				c.log.Warn(ctx, "failed to remove cached attachment", "path", p, "error", err)
			}
		}
		c.st.Changes.Publish(store.EntryChange{
			EntryID: ch.Entry.Id, Version: ch.Entry.Version,
			Device: ch.Entry.LastEditedDevice, Source: store.SourceRemote, Deleted: true,
		})
		return nil
	}

	e := ch.Entry
	e.Synced = true
	e.SyncAction = models.SyncActionNone
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.UpdatedAt
	}

	var current []*models.Attachment
	if exists {
		current, err = c.st.Attachments.ListByEntry(ctx, e.Id)
		if err != nil {
			return err
		}
	}
	added, removed := diffAttachments(current, ch.Attachments)

	var removedPaths []string
	err = dbx.WithTx(ctx, c.st.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entries.NewSQLiteRepository(tx).Upsert(ctx, e); err != nil {
			return err
		}
		ar := attachments.NewSQLiteRepository(tx)
		for _, a := range added {
			// remote bytes; the local cache is filled on demand
			a.UploadStatus = models.UploadStatusCompleted
			if a.CreatedAt.IsZero() {
				a.CreatedAt = e.UpdatedAt
			}
			if err := ar.Insert(ctx, a); err != nil {
				return err
			}
		}
		for _, a := range removed {
			if err := ar.Delete(ctx, a.Id); err != nil {
				return err
			}
			removedPaths = append(removedPaths, a.LocalPath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range removedPaths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.log.Warn(ctx, "failed to remove cached attachment", "path", p, "error", err)
		}
	}

	c.st.Changes.Publish(store.EntryChange{
		EntryID: e.Id, Version: e.Version,
		Device: e.LastEditedDevice, Source: store.SourceRemote,
	})
	c.log.Debug(ctx, "remote change applied", "entry_id", e.Id, "version", e.Version)
	return nil
}

// persistTokens stores the client's current token pair so a refreshed pair
// survives restarts.
func (c *Channel) persistTokens(ctx context.Context) {
	th, ok := c.client.(tokenHolder)
	if !ok {
		return
	}
	access, refresh := th.Tokens()
	if access == "" && refresh == "" {
		return
	}
	if err := c.st.Metadata.Set(ctx, common.MetaAccessToken, []byte(access)); err != nil {
		c.log.Warn(ctx, "failed to persist access token", "error", err)
		return
	}
	if err := c.st.Metadata.Set(ctx, common.MetaRefreshToken, []byte(refresh)); err != nil {
		c.log.Warn(ctx, "failed to persist refresh token", "error", err)
	}
}

// diffAttachments splits remote attachment records against local rows into
// records to insert and rows to delete.
func diffAttachments(current, want []*models.Attachment) (added, removed []*models.Attachment) {
	inWant := make(map[string]struct{}, len(want))
	for _, a := range want {
		inWant[a.Id] = struct{}{}
	}
	inCurrent := make(map[string]struct{}, len(current))
	for _, a := range current {
		inCurrent[a.Id] = struct{}{}
		if _, ok := inWant[a.Id]; !ok {
			removed = append(removed, a)
		}
	}
	for _, a := range want {
		if _, ok := inCurrent[a.Id]; !ok {
			added = append(added, a)
		}
	}
	return added, removed
}
