package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/pathwise/tasksync/config"
	"github.com/pathwise/tasksync/remote"
	"github.com/pathwise/tasksync/task"
)

func TestNew_LocalOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "tasks.db")

	a, err := New(cfg, NewLogger(io.Discard, "info"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Syncer != nil {
		t.Error("Syncer built without a remote base URL")
	}

	if _, ok := a.Store.AddTask(context.Background(), "u1", task.Task{Title: "Network with alumni"}); !ok {
		t.Fatal("AddTask failed")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(cfg, NewLogger(io.Discard, "info"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close() //nolint:errcheck
	if n := len(reopened.Store.GetTasks("u1")); n != 1 {
		t.Errorf("tasks after reopen = %d, want 1", n)
	}
}

func TestNew_MirrorsToRemote(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = task.DriverMemory
	cfg.Remote.BaseURL = srv.URL
	cfg.Remote.Token = "tok"

	a, err := New(cfg, NewLogger(io.Discard, "info"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Syncer == nil {
		t.Fatal("Syncer not built for a remote base URL")
	}

	ctx := context.Background()
	created, ok := a.Store.AddTask(ctx, "u1", task.Task{Title: "Apply to 3 jobs"})
	if !ok {
		t.Fatal("AddTask failed")
	}
	a.Store.DeleteTask(ctx, "u1", created.ID)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(seen)
	want := []string{
		"DELETE /tasks/" + created.ID + " Bearer tok",
		"POST /tasks Bearer tok",
	}
	if strings.Join(seen, "\n") != strings.Join(want, "\n") {
		t.Errorf("remote saw %q, want %q", seen, want)
	}
}

func TestNew_BadDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "redis"
	if _, err := New(cfg, NewLogger(io.Discard, "info")); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestTokenSource(t *testing.T) {
	if ts := tokenSource(config.RemoteConfig{}); ts != nil {
		t.Errorf("no credentials: got %T, want nil", ts)
	}
	if ts := tokenSource(config.RemoteConfig{Token: "abc"}); ts != remote.StaticToken("abc") {
		t.Errorf("static token: got %#v", ts)
	}
	if _, ok := tokenSource(config.RemoteConfig{Token: "abc", JWTSecret: "k"}).(remote.JWTSigner); !ok {
		t.Error("jwt secret should win over a static token")
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("log = %q", out)
	}
}
