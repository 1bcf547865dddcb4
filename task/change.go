package task

import "context"

// Change is the fine-grained delta handed to detailed subscribers: a
// roadmap-linked task whose status moved. Status is already expressed in the
// milestone vocabulary so roadmap views can apply it as is.
type Change struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
	Link
	Status     MilestoneStatus `json:"status"`
	TaskStatus Status          `json:"taskStatus"`
}

// Notifier learns about every committed write to a user's task set.
// change is nil when the write carries no fine-grained delta.
type Notifier interface {
	Publish(userID string, change *Change)
}

// Mirror receives committed local mutations for best-effort propagation.
// Implementations must not block the caller.
type Mirror interface {
	TaskCreated(ctx context.Context, userID string, t Task)
	TaskUpdated(ctx context.Context, userID, id string, p Patch)
	TaskDeleted(ctx context.Context, userID, id string)
	TasksCleared(ctx context.Context, userID string)
}

// NopMirror discards every mutation.
type NopMirror struct{}

func (NopMirror) TaskCreated(context.Context, string, Task)          {}
func (NopMirror) TaskUpdated(context.Context, string, string, Patch) {}
func (NopMirror) TaskDeleted(context.Context, string, string)        {}
func (NopMirror) TasksCleared(context.Context, string)               {}

type nopNotifier struct{}

func (nopNotifier) Publish(string, *Change) {}
