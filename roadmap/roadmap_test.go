package roadmap

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pathwise/tasksync/comms"
	"github.com/pathwise/tasksync/task"
)

var testNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func twoPhaseRoadmap() Roadmap {
	return Roadmap{
		ID:    "r1",
		Title: "Backend engineer",
		Phases: []Phase{
			{
				PhaseNumber:   1,
				Title:         "Foundations",
				DurationWeeks: intp(4),
				Milestones: []Milestone{
					{Title: "Learn Go", EstimatedCompletionWeeks: intp(2)},
				},
			},
			{
				PhaseNumber:   2,
				Title:         "Projects",
				DurationWeeks: intp(6),
				Milestones: []Milestone{
					{Title: "Build an API", EstimatedCompletionWeeks: intp(1), IsCompleted: true},
				},
			},
		},
	}
}

type recordingMirror struct {
	mu      sync.Mutex
	created []task.Task
}

func (m *recordingMirror) TaskCreated(_ context.Context, _ string, t task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, t)
}
func (m *recordingMirror) TaskUpdated(context.Context, string, string, task.Patch) {}
func (m *recordingMirror) TaskDeleted(context.Context, string, string)             {}
func (m *recordingMirror) TasksCleared(context.Context, string)                    {}

func newTestImporter(t *testing.T) (*Importer, *task.Store, *comms.Bus, *recordingMirror) {
	t.Helper()
	bus := comms.NewBus(nil)
	store := task.NewStore(task.NewMemoryBackend(),
		task.WithNotifier(bus),
		task.WithClock(func() time.Time { return testNow }),
	)
	mirror := &recordingMirror{}
	im := NewImporter(store, WithMirror(mirror), WithBroadcaster(bus))
	return im, store, bus, mirror
}

func TestPlan_TwoPhases(t *testing.T) {
	tasks := Plan(twoPhaseRoadmap(), testNow)
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}

	first, second := tasks[0], tasks[1]
	if first.DueDate == nil || second.DueDate == nil {
		t.Fatal("due dates not set")
	}
	if want := testNow.Add(7 * 24 * time.Hour); !first.DueDate.Equal(want) {
		t.Errorf("first due = %v, want %v", *first.DueDate, want)
	}
	if want := testNow.Add(4 * 7 * 24 * time.Hour); !second.DueDate.Equal(want) {
		t.Errorf("second due = %v, want %v", *second.DueDate, want)
	}

	if first.Priority != task.PriorityHigh || second.Priority != task.PriorityHigh {
		t.Errorf("priorities = %q, %q, want high", first.Priority, second.Priority)
	}
	if first.Status != task.StatusPending {
		t.Errorf("first status = %q, want pending", first.Status)
	}
	if second.Status != task.StatusCompleted {
		t.Errorf("second status = %q, want completed", second.Status)
	}
	if first.Type != task.TypeMilestone {
		t.Errorf("type = %q, want milestone", first.Type)
	}

	link, ok := second.Link()
	if !ok {
		t.Fatal("second task has no link")
	}
	if want := (task.Link{RoadmapID: "r1", PhaseNumber: 2, MilestoneIndex: 0}); link != want {
		t.Errorf("link = %+v, want %+v", link, want)
	}
	if !strings.HasPrefix(second.ID, "milestone-r1-2-0-") {
		t.Errorf("id = %q", second.ID)
	}
	if first.Metadata["source"] != "roadmap" {
		t.Errorf("metadata source = %v", first.Metadata["source"])
	}
	if want := []string{"roadmap", "Foundations"}; !reflect.DeepEqual(first.Tags, want) {
		t.Errorf("tags = %v, want %v", first.Tags, want)
	}
}

func TestPlan_Defaults(t *testing.T) {
	rm := Roadmap{ID: "r2", Phases: []Phase{
		{PhaseNumber: 1, Milestones: []Milestone{
			{Title: "no estimate"},
			{Title: "zero estimate", EstimatedCompletionWeeks: intp(0)},
			{Title: "long", EstimatedCompletionWeeks: intp(3)},
		}},
		{PhaseNumber: 2, DurationWeeks: intp(0), Milestones: []Milestone{{Title: "next"}}},
		{PhaseNumber: 3, Milestones: []Milestone{{Title: "last"}}},
	}}

	tasks := Plan(rm, testNow)
	if len(tasks) != 5 {
		t.Fatalf("len(tasks) = %d, want 5", len(tasks))
	}

	// A missing or zero phase duration counts as 4 weeks.
	for i, want := range []int{0, 0, 2, 4, 8} {
		if got := int(tasks[i].DueDate.Sub(testNow) / (7 * 24 * time.Hour)); got != want {
			t.Errorf("%s: due in %d weeks, want %d", tasks[i].Title, got, want)
		}
	}

	for i, want := range []task.Priority{task.PriorityMedium, task.PriorityHigh, task.PriorityMedium} {
		if tasks[i].Priority != want {
			t.Errorf("%s: priority = %q, want %q", tasks[i].Title, tasks[i].Priority, want)
		}
	}
}

func TestPlan_NegativeEstimateBackdates(t *testing.T) {
	rm := Roadmap{ID: "r3", Phases: []Phase{
		{PhaseNumber: 1, Milestones: []Milestone{{Title: "odd", EstimatedCompletionWeeks: intp(-1)}}},
	}}
	tasks := Plan(rm, testNow)
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if want := testNow.Add(-2 * 7 * 24 * time.Hour); !tasks[0].DueDate.Equal(want) {
		t.Errorf("due = %v, want %v", *tasks[0].DueDate, want)
	}
}

func TestPlan_Empty(t *testing.T) {
	if got := Plan(Roadmap{ID: "r"}, testNow); len(got) != 0 {
		t.Errorf("no phases: %d tasks", len(got))
	}
	if got := Plan(Roadmap{ID: "r", Phases: []Phase{{PhaseNumber: 1}}}, testNow); len(got) != 0 {
		t.Errorf("no milestones: %d tasks", len(got))
	}
}

func TestImport_SingleBatchNotification(t *testing.T) {
	im, store, bus, mirror := newTestImporter(t)

	var changed int32
	bus.OnChanged(func() { atomic.AddInt32(&changed, 1) })

	res, err := im.Import(context.Background(), "u1", twoPhaseRoadmap(), nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Declined || res.Existing != 0 || len(res.Tasks) != 2 {
		t.Errorf("result = %+v", res)
	}

	if n := atomic.LoadInt32(&changed); n != 1 {
		t.Errorf("change notifications = %d, want 1", n)
	}
	if n := len(store.GetTasks("u1")); n != 2 {
		t.Errorf("stored = %d, want 2", n)
	}
	if n := len(mirror.created); n != 2 {
		t.Errorf("mirrored = %d, want 2", n)
	}

	hist := bus.History("u1", 0)
	if len(hist) != 2 {
		t.Fatalf("history = %d events, want 2", len(hist))
	}
	if hist[0].Type != comms.EventTasksChanged || hist[1].Type != comms.EventTasksImported {
		t.Errorf("event types = %q, %q", hist[0].Type, hist[1].Type)
	}
	if want := (comms.ImportedPayload{RoadmapID: "r1", Count: 2}); hist[1].Payload != want {
		t.Errorf("payload = %+v, want %+v", hist[1].Payload, want)
	}
}

func TestImport_DuplicateGate(t *testing.T) {
	im, store, _, _ := newTestImporter(t)
	ctx := context.Background()
	rm := twoPhaseRoadmap()

	if _, err := im.Import(ctx, "u1", rm, nil); err != nil {
		t.Fatalf("first Import: %v", err)
	}

	res, err := im.Import(ctx, "u1", rm, nil)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if !res.Declined || res.Existing != 2 {
		t.Errorf("unconfirmed re-import = %+v, want declined with 2 existing", res)
	}
	if n := len(store.GetTasks("u1")); n != 2 {
		t.Errorf("stored = %d, want 2", n)
	}

	var asked int
	res, err = im.Import(ctx, "u1", rm, func(existing int) bool {
		asked = existing
		return true
	})
	if err != nil {
		t.Fatalf("confirmed Import: %v", err)
	}
	if asked != 2 {
		t.Errorf("confirm asked with %d, want 2", asked)
	}
	if len(res.Tasks) != 2 {
		t.Errorf("imported = %d, want 2", len(res.Tasks))
	}
	if got, want := im.ExistingCount("u1", "r1"), 2*rm.MilestoneCount(); got != want {
		t.Errorf("ExistingCount = %d, want %d", got, want)
	}

	ids := map[string]bool{}
	for _, tk := range store.GetTasks("u1") {
		if ids[tk.ID] {
			t.Errorf("duplicate id %s", tk.ID)
		}
		ids[tk.ID] = true
	}
}

func TestImport_OtherUserUnaffected(t *testing.T) {
	im, store, _, _ := newTestImporter(t)
	ctx := context.Background()

	if _, err := im.Import(ctx, "u1", twoPhaseRoadmap(), nil); err != nil {
		t.Fatalf("Import u1: %v", err)
	}
	res, err := im.Import(ctx, "u2", twoPhaseRoadmap(), nil)
	if err != nil {
		t.Fatalf("Import u2: %v", err)
	}
	if res.Declined {
		t.Error("u2 import declined because of u1's tasks")
	}
	if n := len(store.GetTasks("u2")); n != 2 {
		t.Errorf("u2 tasks = %d, want 2", n)
	}
}

func TestImport_EmptyRoadmap(t *testing.T) {
	im, store, bus, _ := newTestImporter(t)

	res, err := im.Import(context.Background(), "u1", Roadmap{ID: "empty"}, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Tasks) != 0 || len(store.GetTasks("u1")) != 0 {
		t.Errorf("empty roadmap imported tasks: %+v", res)
	}
	if n := len(bus.History("u1", 0)); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestImport_NoID(t *testing.T) {
	im, _, _, _ := newTestImporter(t)
	if _, err := im.Import(context.Background(), "u1", Roadmap{}, nil); !errors.Is(err, ErrNoID) {
		t.Errorf("err = %v, want ErrNoID", err)
	}
}

func TestLoad(t *testing.T) {
	doc := `{
		"id": "r9",
		"phases": [
			{"phase_number": 1, "duration_weeks": 3, "milestones": [
				{"title": "Resume", "estimated_completion_weeks": 1, "is_completed": true}
			]}
		]
	}`
	rm, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rm.ID != "r9" || len(rm.Phases) != 1 {
		t.Fatalf("roadmap = %+v", rm)
	}
	if d := rm.Phases[0].DurationWeeks; d == nil || *d != 3 {
		t.Errorf("duration_weeks = %v, want 3", d)
	}
	if !rm.Phases[0].Milestones[0].IsCompleted {
		t.Error("is_completed not decoded")
	}

	if _, err := Load(strings.NewReader(`{"phases": []}`)); !errors.Is(err, ErrNoID) {
		t.Errorf("missing id: err = %v, want ErrNoID", err)
	}
	if _, err := Load(strings.NewReader(`{`)); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestIDPrefix(t *testing.T) {
	got := IDPrefix(task.Link{RoadmapID: "r1", PhaseNumber: 2, MilestoneIndex: 10})
	if got != "milestone-r1-2-10" {
		t.Errorf("IDPrefix = %q", got)
	}
}
