package roadmap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pathwise/tasksync/comms"
	"github.com/pathwise/tasksync/task"
)

// ErrNotPersisted is returned when the batch could not be written locally.
var ErrNotPersisted = errors.New("imported tasks were not persisted")

// Confirm is asked whether to import again when existing tasks already link
// to the roadmap. It receives their count.
type Confirm func(existing int) bool

// Result describes an import attempt.
type Result struct {
	Tasks    []task.Task `json:"tasks"`
	Existing int         `json:"existing"`
	Declined bool        `json:"declined,omitempty"`
}

// Importer commits roadmap milestones to a Store as one batch.
type Importer struct {
	store       *task.Store
	mirror      task.Mirror
	broadcaster comms.Broadcaster
	logger      *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithMirror forwards each imported task to m after the batch commit.
func WithMirror(m task.Mirror) Option { return func(im *Importer) { im.mirror = m } }

// WithBroadcaster announces completed imports on b.
func WithBroadcaster(b comms.Broadcaster) Option { return func(im *Importer) { im.broadcaster = b } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(im *Importer) { im.logger = l } }

// NewImporter creates an Importer writing into store.
func NewImporter(store *task.Store, opts ...Option) *Importer {
	im := &Importer{store: store, mirror: task.NopMirror{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ExistingCount returns how many of userID's tasks already link to roadmapID.
func (im *Importer) ExistingCount(userID, roadmapID string) int {
	return im.store.RoadmapTaskCount(userID, roadmapID)
}

// Import converts rm into tasks and appends them to userID's set in a single
// write. If tasks from rm already exist, confirm decides whether to import
// again; a nil confirm declines. The new tasks are then forwarded to the
// mirror one by one and a tasks-imported event is broadcast.
func (im *Importer) Import(ctx context.Context, userID string, rm Roadmap, confirm Confirm) (Result, error) {
	if rm.ID == "" {
		return Result{}, ErrNoID
	}
	res := Result{Tasks: []task.Task{}, Existing: im.ExistingCount(userID, rm.ID)}
	if res.Existing > 0 && (confirm == nil || !confirm(res.Existing)) {
		im.logger.Info("roadmap import declined",
			slog.String("user", userID),
			slog.String("roadmap", rm.ID),
			slog.Int("existing", res.Existing),
		)
		res.Declined = true
		return res, nil
	}

	planned := Plan(rm, im.store.Now())
	if len(planned) == 0 {
		return res, nil
	}
	added, ok := im.store.AppendTasks(userID, planned)
	if !ok {
		return res, ErrNotPersisted
	}
	res.Tasks = added

	for _, t := range added {
		im.mirror.TaskCreated(ctx, userID, t)
	}
	if im.broadcaster != nil {
		im.broadcaster.Broadcast(comms.Event{
			Type:    comms.EventTasksImported,
			UserID:  userID,
			Payload: comms.ImportedPayload{RoadmapID: rm.ID, Count: len(added)},
		})
	}
	im.logger.Info("roadmap imported",
		slog.String("user", userID),
		slog.String("roadmap", rm.ID),
		slog.Int("tasks", len(added)),
	)
	return res, nil
}
