// Package comms delivers task change notifications from the store to views.
package comms

import "time"

// Broadcast event types.
const (
	EventTasksChanged  = "tasks-changed"  // payload: task.Change or nil
	EventTasksImported = "tasks-imported" // payload: ImportedPayload
)

// Event is the broadcast form of a notification, for listeners that cannot
// hold a live subscription (SSE clients, other processes).
type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"userId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ImportedPayload accompanies EventTasksImported.
type ImportedPayload struct {
	RoadmapID string `json:"roadmapId"`
	Count     int    `json:"count"`
}

// Broadcaster receives every event published on a Bus.
// Broadcast must not block.
type Broadcaster interface {
	Broadcast(ev Event)
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(ev Event)

// Broadcast calls f(ev).
func (f BroadcastFunc) Broadcast(ev Event) { f(ev) }
