// Command tasksyncd serves the task sync core over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathwise/tasksync/config"
	"github.com/pathwise/tasksync/internal/app"
	"github.com/pathwise/tasksync/internal/version"
	"github.com/pathwise/tasksync/server"
)

var configPath = flag.String("config", "", "path to YAML config file (defaults apply when empty)")

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	logger.Info("starting tasksyncd",
		"version", version.Version,
		"commit", version.Commit,
	)

	core, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start core: %v", err)
	}

	srv := server.New(*cfg, version.Version, logger)
	srv.SetStore(core.Store)
	srv.SetBus(core.Bus)
	srv.SetImporter(core.Importer)
	srv.SetReconciler(core.Reconciler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", slog.Any("err", err))
		}
	}

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", slog.Any("err", err))
	}
	if err := core.Close(); err != nil {
		logger.Error("storage close error", slog.Any("err", err))
	}
	fmt.Println("Shutdown complete")
}
