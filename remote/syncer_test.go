package remote

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pathwise/tasksync/task"
)

type call struct {
	op     string
	userID string
	id     string
}

type fakeClient struct {
	mu    sync.Mutex
	calls []call
	err   error
	gate  chan struct{}
	ctxs  []context.Context
}

func (f *fakeClient) record(ctx context.Context, op, userID, id string) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: op, userID: userID, id: id})
	f.ctxs = append(f.ctxs, ctx)
	return f.err
}

func (f *fakeClient) Create(ctx context.Context, userID string, t task.Task) error {
	return f.record(ctx, "create", userID, t.ID)
}

func (f *fakeClient) Update(ctx context.Context, userID, id string, _ task.Patch) error {
	return f.record(ctx, "update", userID, id)
}

func (f *fakeClient) Delete(ctx context.Context, userID, id string) error {
	return f.record(ctx, "delete", userID, id)
}

func (f *fakeClient) ClearAll(ctx context.Context, userID string) error {
	return f.record(ctx, "clear", userID, "")
}

func (f *fakeClient) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSyncer_ForwardsEveryMutation(t *testing.T) {
	client := &fakeClient{}
	s := NewSyncer(client)
	ctx := context.Background()

	s.TaskCreated(ctx, "u1", task.Task{ID: "a"})
	s.TaskUpdated(ctx, "u1", "a", task.Patch{})
	s.TaskDeleted(ctx, "u1", "a")
	s.TasksCleared(ctx, "u1")
	s.Wait()

	// Calls run concurrently, so compare in a fixed order.
	calls := client.all()
	sort.Slice(calls, func(i, j int) bool { return calls[i].op < calls[j].op })
	want := []call{
		{op: "clear", userID: "u1"},
		{op: "create", userID: "u1", id: "a"},
		{op: "delete", userID: "u1", id: "a"},
		{op: "update", userID: "u1", id: "a"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestSyncer_DoesNotBlockCaller(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	s := NewSyncer(client)

	done := make(chan struct{})
	go func() {
		s.TaskCreated(context.Background(), "u1", task.Task{ID: "slow"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TaskCreated blocked on the remote call")
	}

	if n := len(client.all()); n != 0 {
		t.Errorf("calls before release = %d, want 0", n)
	}
	close(client.gate)
	s.Wait()
	if n := len(client.all()); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestSyncer_DetachedFromCallerContext(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	s := NewSyncer(client)

	ctx, cancel := context.WithCancel(context.Background())
	s.TaskDeleted(ctx, "u1", "x")
	cancel()
	close(client.gate)
	s.Wait()

	calls := client.all()
	if len(calls) != 1 || calls[0].op != "delete" {
		t.Errorf("calls = %+v, want one delete", calls)
	}
}

func TestSyncer_FailureIsLogged(t *testing.T) {
	var logs syncBuffer
	client := &fakeClient{err: errors.New("remote down")}
	s := NewSyncer(client, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	s.TaskUpdated(context.Background(), "u1", "task-9", task.Patch{})
	s.Wait()

	out := logs.String()
	for _, want := range []string{"level=WARN", "remote sync failed", "op=update", "task=task-9", "remote down"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}

func TestSyncer_Timeout(t *testing.T) {
	var logs syncBuffer
	client := &fakeClient{gate: make(chan struct{})}
	defer close(client.gate)
	s := NewSyncer(client,
		WithTimeout(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	s.TasksCleared(context.Background(), "u1")
	s.Wait()

	if n := len(client.all()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
	if out := logs.String(); !strings.Contains(out, "deadline exceeded") {
		t.Errorf("log = %s, want deadline exceeded", out)
	}
}

func TestSyncer_AsStoreMirror(t *testing.T) {
	client := &fakeClient{}
	s := NewSyncer(client)
	store := task.NewStore(task.NewMemoryBackend(), task.WithMirror(s))
	ctx := context.Background()

	created, ok := store.AddTask(ctx, "u1", task.Task{Title: "Mock interview"})
	if !ok {
		t.Fatal("AddTask failed")
	}
	done := task.StatusCompleted
	if _, ok := store.UpdateTask(ctx, "u1", created.ID, task.Patch{Status: &done}); !ok {
		t.Fatal("UpdateTask failed")
	}
	if !store.DeleteTask(ctx, "u1", created.ID) {
		t.Fatal("DeleteTask failed")
	}
	if store.DeleteTask(ctx, "u1", created.ID) {
		t.Error("second DeleteTask reported success")
	}
	s.Wait()

	ops := map[string]int{}
	for _, c := range client.all() {
		ops[c.op]++
		if c.id != created.ID {
			t.Errorf("%s forwarded id %q, want %q", c.op, c.id, created.ID)
		}
	}
	if ops["create"] != 1 || ops["update"] != 1 || ops["delete"] != 1 || len(ops) != 3 {
		t.Errorf("ops = %v, want one each of create, update, delete", ops)
	}
}
