// Package task defines the to-do task model and its local-first store.
package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a task in the to-do list.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the four task-list statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Priority orders tasks in the list.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Type records where a task came from. It only affects display.
type Type string

const (
	TypeMilestone Type = "milestone"
	TypeLearning  Type = "learning"
	TypePractice  Type = "practice"
	TypeSkill     Type = "skill"
	TypeManual    Type = "manual"
)

// Valid reports whether t is a known task type.
func (t Type) Valid() bool {
	switch t {
	case TypeMilestone, TypeLearning, TypePractice, TypeSkill, TypeManual:
		return true
	}
	return false
}

// Task is a single to-do item, entered by hand or derived from a roadmap milestone.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	Type        Type           `json:"task_type"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Roadmap linkage. Either all three are set or none is.
	RoadmapID      string `json:"roadmapId,omitempty"`
	PhaseNumber    *int   `json:"phaseNumber,omitempty"`
	MilestoneIndex *int   `json:"milestoneIndex,omitempty"`
}

// Link is the composite (roadmap, phase, milestone) key of a roadmap-derived task.
type Link struct {
	RoadmapID      string `json:"roadmapId"`
	PhaseNumber    int    `json:"phaseNumber"`
	MilestoneIndex int    `json:"milestoneIndex"`
}

// Link returns the task's composite roadmap key. ok is false unless all
// three parts are present.
func (t Task) Link() (l Link, ok bool) {
	if t.RoadmapID == "" || t.PhaseNumber == nil || t.MilestoneIndex == nil {
		return Link{}, false
	}
	return Link{
		RoadmapID:      t.RoadmapID,
		PhaseNumber:    *t.PhaseNumber,
		MilestoneIndex: *t.MilestoneIndex,
	}, true
}

// SetLink attaches the composite roadmap key to the task.
func (t *Task) SetLink(l Link) {
	phase, idx := l.PhaseNumber, l.MilestoneIndex
	t.RoadmapID = l.RoadmapID
	t.PhaseNumber = &phase
	t.MilestoneIndex = &idx
}

// partialLink reports a link with some but not all parts set.
func (t Task) partialLink() bool {
	_, ok := t.Link()
	if ok {
		return false
	}
	return t.RoadmapID != "" || t.PhaseNumber != nil || t.MilestoneIndex != nil
}

func (t *Task) clearLink() {
	t.RoadmapID = ""
	t.PhaseNumber = nil
	t.MilestoneIndex = nil
}

// clone returns a copy that shares no slices or maps with t.
func (t Task) clone() Task {
	c := t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.PhaseNumber != nil {
		p := *t.PhaseNumber
		c.PhaseNumber = &p
	}
	if t.MilestoneIndex != nil {
		i := *t.MilestoneIndex
		c.MilestoneIndex = &i
	}
	return c
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *Status        `json:"status,omitempty"`
	Priority    *Priority      `json:"priority,omitempty"`
	Type        *Type          `json:"task_type,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON encodes exactly the fields the patch sets. An empty but non-nil
// Tags or Metadata is kept, since it clears the field.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	if p.Type != nil {
		m["task_type"] = *p.Type
	}
	if p.DueDate != nil {
		m["due_date"] = *p.DueDate
	}
	if p.Tags != nil {
		m["tags"] = p.Tags
	}
	if p.Metadata != nil {
		m["metadata"] = p.Metadata
	}
	return json.Marshal(m)
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Type == nil && p.DueDate == nil &&
		p.Tags == nil && p.Metadata == nil
}

// Validate rejects unknown enum values.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("invalid status %q", *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", *p.Priority)
	}
	if p.Type != nil && !p.Type.Valid() {
		return fmt.Errorf("invalid task_type %q", *p.Type)
	}
	return nil
}

// apply merges p into t and returns the merged copy.
func (p Patch) apply(t Task) Task {
	out := t.clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
