package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pathwise/tasksync/task"
)

// Syncer forwards committed mutations to a Client without ever blocking the
// caller. Each call runs in its own goroutine on a context detached from the
// caller's; failures are logged at warn and dropped. There is no retry and no
// local rollback. Syncer implements task.Mirror.
type Syncer struct {
	client  Client
	logger  *slog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithTimeout bounds each remote call. Zero means no bound.
func WithTimeout(d time.Duration) SyncerOption { return func(s *Syncer) { s.timeout = d } }

// WithLogger sets the logger used for sync failures.
func WithLogger(l *slog.Logger) SyncerOption { return func(s *Syncer) { s.logger = l } }

// NewSyncer creates a Syncer over client.
func NewSyncer(client Client, opts ...SyncerOption) *Syncer {
	s := &Syncer{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TaskCreated forwards a new task.
func (s *Syncer) TaskCreated(ctx context.Context, userID string, t task.Task) {
	s.dispatch(ctx, "create", userID, t.ID, func(ctx context.Context) error {
		return s.client.Create(ctx, userID, t)
	})
}

// TaskUpdated forwards a partial update.
func (s *Syncer) TaskUpdated(ctx context.Context, userID, id string, p task.Patch) {
	s.dispatch(ctx, "update", userID, id, func(ctx context.Context) error {
		return s.client.Update(ctx, userID, id, p)
	})
}

// TaskDeleted forwards a deletion.
func (s *Syncer) TaskDeleted(ctx context.Context, userID, id string) {
	s.dispatch(ctx, "delete", userID, id, func(ctx context.Context) error {
		return s.client.Delete(ctx, userID, id)
	})
}

// TasksCleared forwards a clear-all.
func (s *Syncer) TasksCleared(ctx context.Context, userID string) {
	s.dispatch(ctx, "clear", userID, "", func(ctx context.Context) error {
		return s.client.ClearAll(ctx, userID)
	})
}

// Wait blocks until every dispatched call has finished.
func (s *Syncer) Wait() { s.wg.Wait() }

func (s *Syncer) dispatch(ctx context.Context, op, userID, taskID string, call func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		if err := call(ctx); err != nil {
			s.logger.Warn("remote sync failed",
				slog.String("op", op),
				slog.String("user", userID),
				slog.String("task", taskID),
				slog.Any("err", err),
			)
		}
	}()
}
