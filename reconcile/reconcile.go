// Package reconcile applies roadmap-side milestone status changes to the
// matching to-do task, and feeds task-list status edits back to roadmap views.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pathwise/tasksync/roadmap"
	"github.com/pathwise/tasksync/task"
)

// Strategy names how a task was matched.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyCompositeKey
	StrategyID
	StrategyIDPattern
)

func (s Strategy) String() string {
	switch s {
	case StrategyCompositeKey:
		return "composite_key"
	case StrategyID:
		return "id"
	case StrategyIDPattern:
		return "id_pattern"
	}
	return "none"
}

// Update is a status change coming from the roadmap view. It identifies the
// task by id, by composite key, or both.
type Update struct {
	TaskID         string               `json:"taskId,omitempty"`
	RoadmapID      string               `json:"roadmapId,omitempty"`
	PhaseNumber    *int                 `json:"phaseNumber,omitempty"`
	MilestoneIndex *int                 `json:"milestoneIndex,omitempty"`
	Status         task.MilestoneStatus `json:"status"`
}

// Link returns the update's composite key, if all three parts are present.
func (u Update) Link() (task.Link, bool) {
	if u.RoadmapID == "" || u.PhaseNumber == nil || u.MilestoneIndex == nil {
		return task.Link{}, false
	}
	return task.Link{RoadmapID: u.RoadmapID, PhaseNumber: *u.PhaseNumber, MilestoneIndex: *u.MilestoneIndex}, true
}

// Match finds the task u refers to. Strategies are tried in order: exact
// composite key, exact id, then the structured id prefix
// milestone-<roadmap>-<phase>-<index> followed by a "-" or the end of the id.
// The first task matching the first successful strategy wins. Match returns
// -1 and StrategyNone when nothing matches.
func Match(tasks []task.Task, u Update) (int, Strategy) {
	link, hasLink := u.Link()
	if hasLink {
		for i, t := range tasks {
			if l, ok := t.Link(); ok && l == link {
				return i, StrategyCompositeKey
			}
		}
	}
	if u.TaskID != "" {
		for i, t := range tasks {
			if t.ID == u.TaskID {
				return i, StrategyID
			}
		}
	}
	if hasLink {
		prefix := roadmap.IDPrefix(link)
		for i, t := range tasks {
			if t.ID == prefix || strings.Contains(t.ID, prefix+"-") {
				return i, StrategyIDPattern
			}
		}
	}
	return -1, StrategyNone
}

// Reconciler updates tasks on behalf of the roadmap view.
type Reconciler struct {
	store  *task.Store
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// New creates a Reconciler over store.
func New(store *task.Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateTaskStatus translates u.Status to the task-list vocabulary and
// applies it to the matching task through the Store, so the usual
// notifications and remote mirroring follow. Matching and the write happen
// under one store lock. When no task matches it logs the attempt with every
// candidate's identifying fields and reports false.
func (r *Reconciler) UpdateTaskStatus(ctx context.Context, userID string, u Update) (task.Task, bool) {
	status, ok := u.Status.TaskStatus()
	if !ok {
		r.logger.Warn("unknown milestone status", slog.String("user", userID), slog.String("status", string(u.Status)))
		return task.Task{}, false
	}

	strategy := StrategyNone
	var missed []candidate
	updated, ok := r.store.UpdateMatching(ctx, userID, func(tasks []task.Task) int {
		var i int
		i, strategy = Match(tasks, u)
		if i < 0 {
			missed = candidates(tasks)
		}
		return i
	}, task.Patch{Status: &status})
	if !ok {
		if strategy == StrategyNone {
			r.logger.Warn("no task matches milestone status change",
				slog.String("user", userID),
				slog.Any("update", u),
				slog.Any("candidates", missed),
			)
		} else {
			r.logger.Warn("matched task could not be updated", slog.String("user", userID), slog.Any("update", u))
		}
		return task.Task{}, false
	}
	r.logger.Debug("milestone status applied",
		slog.String("user", userID),
		slog.String("task", updated.ID),
		slog.String("strategy", strategy.String()),
		slog.String("status", string(status)),
	)
	return updated, true
}

type candidate struct {
	ID             string `json:"id"`
	RoadmapID      string `json:"roadmapId,omitempty"`
	PhaseNumber    *int   `json:"phaseNumber,omitempty"`
	MilestoneIndex *int   `json:"milestoneIndex,omitempty"`
}

func candidates(tasks []task.Task) []candidate {
	out := make([]candidate, len(tasks))
	for i, t := range tasks {
		out[i] = candidate{ID: t.ID, RoadmapID: t.RoadmapID, PhaseNumber: t.PhaseNumber, MilestoneIndex: t.MilestoneIndex}
	}
	return out
}

// Subscriber delivers detailed task changes. *comms.Bus implements it.
type Subscriber interface {
	OnDetailedChanged(fn func(task.Change)) (unsubscribe func())
}

// OnMilestoneStatus calls fn for status edits made in the task list to
// milestones of roadmapID owned by userID. The change's Status is already in
// the milestone vocabulary. An empty roadmapID matches every roadmap.
func OnMilestoneStatus(sub Subscriber, userID, roadmapID string, fn func(task.Change)) (unsubscribe func()) {
	return sub.OnDetailedChanged(func(c task.Change) {
		if c.UserID != userID {
			return
		}
		if roadmapID != "" && c.RoadmapID != roadmapID {
			return
		}
		fn(c)
	})
}
