// Package roadmap turns a career roadmap's phase/milestone tree into flat
// to-do tasks.
package roadmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pathwise/tasksync/task"
)

const (
	defaultPhaseWeeks     = 4
	defaultMilestoneWeeks = 1
	week                  = 7 * 24 * time.Hour
)

// ErrNoID is returned for a roadmap without an id: its tasks could not be
// linked back to it.
var ErrNoID = errors.New("roadmap has no id")

// Roadmap is a multi-phase career plan as produced by the roadmap service.
type Roadmap struct {
	ID     string  `json:"id"`
	Title  string  `json:"title,omitempty"`
	Phases []Phase `json:"phases"`
}

// Phase is one stage of a roadmap.
type Phase struct {
	PhaseNumber   int         `json:"phase_number"`
	Title         string      `json:"title,omitempty"`
	DurationWeeks *int        `json:"duration_weeks,omitempty"`
	Milestones    []Milestone `json:"milestones"`
}

// Milestone is one deliverable inside a phase.
type Milestone struct {
	Title                    string `json:"title"`
	Description              string `json:"description,omitempty"`
	EstimatedCompletionWeeks *int   `json:"estimated_completion_weeks,omitempty"`
	IsCompleted              bool   `json:"is_completed"`
}

// MilestoneCount returns the number of milestones across all phases.
func (r Roadmap) MilestoneCount() int {
	n := 0
	for _, p := range r.Phases {
		n += len(p.Milestones)
	}
	return n
}

// Load decodes a roadmap document.
func Load(r io.Reader) (Roadmap, error) {
	var rm Roadmap
	if err := json.NewDecoder(r).Decode(&rm); err != nil {
		return Roadmap{}, fmt.Errorf("decode roadmap: %w", err)
	}
	if rm.ID == "" {
		return Roadmap{}, ErrNoID
	}
	return rm, nil
}

// Plan converts rm into one task per milestone, in phase then milestone
// order. Weeks are counted from 1: a phase starts at the running week, which
// advances by the phase's duration after it. A milestone is due
// (start + estimate - 1) weeks into the plan, measured from now.
//
// Missing or zero durations and estimates take their defaults. Negative
// values are used as given and can yield a due date before now.
func Plan(rm Roadmap, now time.Time) []task.Task {
	tasks := make([]task.Task, 0, rm.MilestoneCount())
	currentWeek := 1
	for _, phase := range rm.Phases {
		for i, m := range phase.Milestones {
			est := orDefault(m.EstimatedCompletionWeeks, defaultMilestoneWeeks)
			milestoneWeek := currentWeek + est - 1
			due := now.Add(time.Duration(milestoneWeek-1) * week)

			priority := task.PriorityMedium
			if m.EstimatedCompletionWeeks != nil && *m.EstimatedCompletionWeeks <= 2 {
				priority = task.PriorityHigh
			}
			status := task.StatusPending
			if m.IsCompleted {
				status = task.StatusCompleted
			}
			tags := []string{"roadmap"}
			if phase.Title != "" {
				tags = append(tags, phase.Title)
			}

			link := task.Link{RoadmapID: rm.ID, PhaseNumber: phase.PhaseNumber, MilestoneIndex: i}
			t := task.Task{
				ID:          IDPrefix(link) + "-" + strconv.FormatInt(now.UnixMilli(), 10),
				Title:       m.Title,
				Description: m.Description,
				Status:      status,
				Priority:    priority,
				Type:        task.TypeMilestone,
				DueDate:     &due,
				Tags:        tags,
				Metadata: map[string]any{
					"roadmap_id":      rm.ID,
					"phase_number":    phase.PhaseNumber,
					"milestone_index": i,
					"source":          "roadmap",
				},
				CreatedAt: now,
				UpdatedAt: now,
			}
			t.SetLink(link)
			tasks = append(tasks, t)
		}
		currentWeek += orDefault(phase.DurationWeeks, defaultPhaseWeeks)
	}
	return tasks
}

func orDefault(v *int, def int) int {
	if v == nil || *v == 0 {
		return def
	}
	return *v
}

// IDPrefix is the structured id prefix shared by every task imported from
// the given milestone, before the timestamp suffix.
func IDPrefix(l task.Link) string {
	return "milestone-" + l.RoadmapID + "-" + strconv.Itoa(l.PhaseNumber) + "-" + strconv.Itoa(l.MilestoneIndex)
}
