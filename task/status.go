package task

import "fmt"

// MilestoneStatus is the status vocabulary used by roadmap milestones.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneSkipped    MilestoneStatus = "skipped"
)

// Valid reports whether m is one of the four milestone statuses.
func (m MilestoneStatus) Valid() bool {
	switch m {
	case MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneSkipped:
		return true
	}
	return false
}

// TaskStatus maps a milestone status onto the task-list vocabulary.
// skipped becomes cancelled; the rest map to themselves.
func (m MilestoneStatus) TaskStatus() (Status, bool) {
	switch m {
	case MilestonePending:
		return StatusPending, true
	case MilestoneInProgress:
		return StatusInProgress, true
	case MilestoneCompleted:
		return StatusCompleted, true
	case MilestoneSkipped:
		return StatusCancelled, true
	}
	return "", false
}

// MilestoneStatus maps a task-list status onto the milestone vocabulary.
// cancelled becomes skipped; the rest map to themselves.
func (s Status) MilestoneStatus() (MilestoneStatus, bool) {
	switch s {
	case StatusPending:
		return MilestonePending, true
	case StatusInProgress:
		return MilestoneInProgress, true
	case StatusCompleted:
		return MilestoneCompleted, true
	case StatusCancelled:
		return MilestoneSkipped, true
	}
	return "", false
}

// ParseStatus validates a task-list status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid task status %q", s)
	}
	return st, nil
}

// ParseMilestoneStatus validates a milestone status string.
func ParseMilestoneStatus(s string) (MilestoneStatus, error) {
	ms := MilestoneStatus(s)
	if !ms.Valid() {
		return "", fmt.Errorf("invalid milestone status %q", s)
	}
	return ms, nil
}
