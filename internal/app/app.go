// Package app wires the task sync core from a configuration.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pathwise/tasksync/comms"
	"github.com/pathwise/tasksync/config"
	"github.com/pathwise/tasksync/reconcile"
	"github.com/pathwise/tasksync/remote"
	"github.com/pathwise/tasksync/roadmap"
	"github.com/pathwise/tasksync/task"
)

// App holds the wired core. Syncer is nil when remote mirroring is off.
type App struct {
	Store      *task.Store
	Bus        *comms.Bus
	Importer   *roadmap.Importer
	Reconciler *reconcile.Reconciler
	Syncer     *remote.Syncer

	closeBackend func() error
}

// New opens the configured backend and builds the core on top of it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, closeBackend, err := task.OpenBackend(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Bus:          comms.NewBus(logger),
		closeBackend: closeBackend,
	}
	var mirror task.Mirror = task.NopMirror{}
	if cfg.Remote.BaseURL != "" {
		a.Syncer = remote.NewSyncer(
			remote.NewHTTPClient(cfg.Remote.BaseURL, tokenSource(cfg.Remote)),
			remote.WithTimeout(cfg.Remote.Timeout),
			remote.WithLogger(logger),
		)
		mirror = a.Syncer
	}

	a.Store = task.NewStore(backend,
		task.WithNotifier(a.Bus),
		task.WithMirror(mirror),
		task.WithLogger(logger),
	)
	a.Importer = roadmap.NewImporter(a.Store,
		roadmap.WithMirror(mirror),
		roadmap.WithBroadcaster(a.Bus),
		roadmap.WithLogger(logger),
	)
	a.Reconciler = reconcile.New(a.Store, reconcile.WithLogger(logger))
	return a, nil
}

func tokenSource(rc config.RemoteConfig) remote.TokenSource {
	if rc.JWTSecret != "" {
		return remote.JWTSigner{Secret: []byte(rc.JWTSecret), Issuer: "tasksync"}
	}
	if rc.Token != "" {
		return remote.StaticToken(rc.Token)
	}
	return nil
}

// Close waits for in-flight remote calls, then releases the backend.
func (a *App) Close() error {
	if a.Syncer != nil {
		a.Syncer.Wait()
	}
	return a.closeBackend()
}

// NewLogger returns a text logger at the named level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
