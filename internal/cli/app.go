// Package cli implements the interactive Trace client: a REPL over the local
// journal with a background sync channel and an online-status watcher.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/config"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/remote"
	"github.com/mindjig/trace-core/internal/services"
	"github.com/mindjig/trace-core/internal/session"
	"github.com/mindjig/trace-core/internal/store"
	"github.com/mindjig/trace-core/internal/syncer"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config   *config.Config
	st       *store.Store
	entries  services.EntryService
	sessions *session.Manager
	channel  *syncer.Channel
	log      logging.Logger
	reader   *bufio.Reader
	Mode     Mode
}

// NewApp wires the full client: local store, mutation services, session
// manager and the background sync channel.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}

	dsn := filepath.Join(cfg.DataDir, "trace.db")
	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	deviceID, err := st.DeviceID(ctx, cfg.DeviceID)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("resolve device identity: %w", err)
	}

	var access, refresh string
	if v, err := st.Metadata.Get(ctx, common.MetaAccessToken); err == nil && v != nil {
		access = string(v)
	}
	if v, err := st.Metadata.Get(ctx, common.MetaRefreshToken); err == nil && v != nil {
		refresh = string(v)
	}
	client := remote.NewHTTPClient(cfg.ServerEndpointAddr, access, refresh, log)

	cacheDir := filepath.Join(cfg.DataDir, "attachments")
	attachments := services.NewAttachmentService(cacheDir, cfg.AttachmentQuality, log)
	entries := services.NewEntryService(st, attachments,
		services.Identity{UserID: deviceID, DeviceID: deviceID}, log)

	notices := &printNotices{}
	sessions := session.NewManager(entries, attachments, st, deviceID, notices, log,
		session.Options{
			Debounce:    cfg.AutosaveDebounce,
			MaxWait:     cfg.AutosaveMaxWait,
			GraceWindow: cfg.ConflictGraceWindow,
		})

	channel := syncer.New(st, client, cfg.SyncInterval, log)

	return &App{
		config:   cfg,
		st:       st,
		entries:  entries,
		sessions: sessions,
		channel:  channel,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
		Mode:     ModeOffline,
	}, nil
}

// Run starts the background sync loop and the online watcher, then blocks in
// the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.st.Close()

	go a.channel.Run(ctx)
	go a.startOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	a.Root(ctx)
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		printlnFn(fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) startOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.channel.Online() {
				a.setMode(ModeOnline)
			} else {
				a.setMode(ModeOffline)
			}
		}
	}
}

// printNotices renders session notifications on the terminal.
type printNotices struct{}

func (printNotices) Info(msg string)  { printlnFn(msg) }
func (printNotices) Warn(msg string)  { printlnFn("! " + msg) }
func (printNotices) Alert(msg string) { printlnFn("!! " + msg) }
