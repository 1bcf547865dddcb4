package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key returns the backend key holding userID's task set.
func Key(userID string) string { return "todo_tasks_" + userID }

// Store is the authoritative local copy of each user's task list. Every
// mutation is a read-modify-write of the user's whole set followed by a single
// backend write. Persistence failures are logged and turn the mutation into a
// no-op; they are never returned to the caller.
type Store struct {
	backend  Backend
	notifier Notifier
	mirror   Mirror
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the change notifier fired after each committed write.
func WithNotifier(n Notifier) Option { return func(s *Store) { s.notifier = n } }

// WithMirror sets the remote mirror that receives committed mutations.
func WithMirror(m Mirror) Option { return func(s *Store) { s.mirror = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		notifier: nopNotifier{},
		mirror:   NopMirror{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock truncated to the millisecond precision of
// persisted timestamps.
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// GetTasks returns userID's tasks. Missing or corrupt data reads as empty.
func (s *Store) GetTasks(userID string) []Task {
	tasks, err := s.load(userID)
	if err != nil {
		s.logger.Error("load tasks", slog.String("user", userID), slog.Any("err", err))
		return []Task{}
	}
	return tasks
}

// SaveTasks replaces userID's task set in one write and notifies subscribers.
// change is the optional fine-grained delta. It reports whether the write
// happened.
func (s *Store) SaveTasks(userID string, tasks []Task, change *Change) bool {
	s.mu.Lock()
	err := s.write(userID, tasks)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("save tasks", slog.String("user", userID), slog.Any("err", err))
		return false
	}
	s.notifier.Publish(userID, change)
	return true
}

// AddTask assigns an id and timestamps to t, appends it to userID's set and
// hands it to the mirror. ok is false when the write failed; the returned
// task is then not stored.
func (s *Store) AddTask(ctx context.Context, userID string, t Task) (Task, bool) {
	now := s.Now()
	t = t.clone()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.applyDefaults(&t)

	s.mu.Lock()
	tasks, err := s.load(userID)
	if err == nil {
		err = s.write(userID, append(tasks, t))
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("add task", slog.String("user", userID), slog.Any("err", err))
		return t, false
	}

	s.notifier.Publish(userID, nil)
	s.mirror.TaskCreated(ctx, userID, t.clone())
	return t, true
}

// UpdateTask merges p into the task with exactly this id. It returns false
// when no such task exists, the patch carries an invalid enum value, or the
// write failed.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, p Patch) (Task, bool) {
	return s.UpdateMatching(ctx, userID, func(tasks []Task) int { return indexOf(tasks, id) }, p)
}

// UpdateMatching merges p into the task chosen by match. match sees userID's
// current set under the store lock and returns an index, or -1 for none, so
// the choice and the write cannot be split by a concurrent mutation. match
// must not call back into the Store.
func (s *Store) UpdateMatching(ctx context.Context, userID string, match func([]Task) int, p Patch) (Task, bool) {
	if err := p.Validate(); err != nil {
		s.logger.Warn("rejecting task update", slog.String("user", userID), slog.Any("err", err))
		return Task{}, false
	}

	s.mu.Lock()
	tasks, err := s.load(userID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("update task", slog.String("user", userID), slog.Any("err", err))
		return Task{}, false
	}
	i := match(tasks)
	if i < 0 || i >= len(tasks) {
		s.mu.Unlock()
		return Task{}, false
	}
	prev := tasks[i]
	updated := p.apply(prev)
	updated.UpdatedAt = s.advance(prev.UpdatedAt)
	tasks[i] = updated
	err = s.write(userID, tasks)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("update task", slog.String("user", userID), slog.Any("err", err))
		return Task{}, false
	}

	s.notifier.Publish(userID, statusChange(userID, prev, updated))
	s.mirror.TaskUpdated(ctx, userID, updated.ID, p)
	return updated.clone(), true
}

// statusChange builds the roadmap-facing delta for a status edit of a
// roadmap-linked task, or nil when there is nothing roadmap views care about.
func statusChange(userID string, prev, updated Task) *Change {
	if prev.Status == updated.Status {
		return nil
	}
	link, ok := updated.Link()
	if !ok {
		return nil
	}
	ms, ok := updated.Status.MilestoneStatus()
	if !ok {
		return nil
	}
	return &Change{UserID: userID, TaskID: updated.ID, Link: link, Status: ms, TaskStatus: updated.Status}
}

// DeleteTask removes the task with exactly this id and reports whether it
// was there. A miss does not touch the backend.
func (s *Store) DeleteTask(ctx context.Context, userID, id string) bool {
	s.mu.Lock()
	tasks, err := s.load(userID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("delete task", slog.String("user", userID), slog.Any("err", err))
		return false
	}
	i := indexOf(tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	tasks = append(tasks[:i], tasks[i+1:]...)
	err = s.write(userID, tasks)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("delete task", slog.String("user", userID), slog.Any("err", err))
		return false
	}

	s.notifier.Publish(userID, nil)
	s.mirror.TaskDeleted(ctx, userID, id)
	return true
}

// ClearAll empties userID's task set.
func (s *Store) ClearAll(ctx context.Context, userID string) {
	s.mu.Lock()
	err := s.write(userID, []Task{})
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("clear tasks", slog.String("user", userID), slog.Any("err", err))
		return
	}

	s.notifier.Publish(userID, nil)
	s.mirror.TasksCleared(ctx, userID)
}

// AppendTasks adds a batch of prepared tasks in one write and one coarse
// notification. Ids already in use get a numeric suffix; empty ids and zero
// timestamps are filled in. The mirror is not called: the caller owns
// forwarding of batch imports.
func (s *Store) AppendTasks(userID string, batch []Task) ([]Task, bool) {
	if len(batch) == 0 {
		return []Task{}, true
	}
	now := s.Now()

	s.mu.Lock()
	tasks, err := s.load(userID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("append tasks", slog.String("user", userID), slog.Any("err", err))
		return nil, false
	}
	taken := make(map[string]struct{}, len(tasks)+len(batch))
	for _, t := range tasks {
		taken[t.ID] = struct{}{}
	}
	added := make([]Task, 0, len(batch))
	for _, t := range batch {
		t = t.clone()
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.ID = uniqueID(t.ID, taken)
		taken[t.ID] = struct{}{}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.Before(t.CreatedAt) {
			t.UpdatedAt = t.CreatedAt
		}
		s.applyDefaults(&t)
		added = append(added, t)
	}
	err = s.write(userID, append(tasks, added...))
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("append tasks", slog.String("user", userID), slog.Any("err", err))
		return nil, false
	}

	s.notifier.Publish(userID, nil)
	return added, true
}

// RoadmapTaskCount returns how many of userID's tasks link to roadmapID.
func (s *Store) RoadmapTaskCount(userID, roadmapID string) int {
	n := 0
	for _, t := range s.GetTasks(userID) {
		if t.RoadmapID == roadmapID {
			n++
		}
	}
	return n
}

// load reads and decodes userID's set. Undecodable data is logged and read
// as empty; only backend failures are returned.
func (s *Store) load(userID string) ([]Task, error) {
	data, err := s.backend.Load(Key(userID))
	if errors.Is(err, ErrNotFound) {
		return []Task{}, nil
	}
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.logger.Warn("discarding corrupt task data", slog.String("user", userID), slog.Any("err", err))
		return []Task{}, nil
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// write encodes and stores tasks. Callers hold s.mu.
func (s *Store) write(userID string, tasks []Task) error {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		if t.partialLink() {
			s.logger.Warn("dropping partial roadmap link", slog.String("user", userID), slog.String("task", t.ID))
			t.clearLink()
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		out[i] = t
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return s.backend.Save(Key(userID), data)
}

// applyDefaults fills empty enum fields, replaces invalid ones and drops a
// partial roadmap link, so what is stored, returned and mirrored agree.
func (s *Store) applyDefaults(t *Task) {
	if t.partialLink() {
		s.logger.Warn("dropping partial roadmap link", slog.String("task", t.ID))
		t.clearLink()
	}
	if !t.Status.Valid() {
		if t.Status != "" {
			s.logger.Warn("unknown task status, using pending", slog.String("status", string(t.Status)))
		}
		t.Status = StatusPending
	}
	if !t.Priority.Valid() {
		t.Priority = PriorityMedium
	}
	if !t.Type.Valid() {
		t.Type = TypeManual
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
}

// advance returns the new updated_at for a task last updated at prev.
func (s *Store) advance(prev time.Time) time.Time {
	now := s.Now()
	if now.Before(prev) {
		return prev
	}
	return now
}

func indexOf(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func uniqueID(id string, taken map[string]struct{}) string {
	if _, ok := taken[id]; !ok {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
