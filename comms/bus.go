package comms

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathwise/tasksync/task"
)

// Bus is an in-process change notifier. Views register either a simple
// callback ("something changed") or a detailed one (the specific delta);
// every notification is also handed to the attached Broadcasters.
//
// A Bus is safe for concurrent use. Callbacks run on the publishing goroutine,
// outside the Bus lock, so they may subscribe, unsubscribe or publish.
type Bus struct {
	mu           sync.RWMutex
	simple       []*entry[func()]
	detailed     []*entry[func(task.Change)]
	broadcasters []*entry[Broadcaster]
	history      []Event
	maxHist      int

	logger *slog.Logger
	now    func() time.Time
}

type entry[T any] struct {
	fn     T
	active atomic.Bool
}

// NewBus creates a Bus with a 1000-event history cap.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		maxHist: 1000,
		logger:  logger,
		now:     time.Now,
	}
}

// OnChanged registers fn to run after every change. The returned function
// unsubscribes it; calling it more than once is harmless.
func (b *Bus) OnChanged(fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := addEntry(&b.simple, fn)
	return func() { removeEntry(&b.mu, &b.simple, e) }
}

// OnDetailedChanged registers fn to run for changes that carry a delta.
func (b *Bus) OnDetailedChanged(fn func(task.Change)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := addEntry(&b.detailed, fn)
	return func() { removeEntry(&b.mu, &b.detailed, e) }
}

// AddBroadcaster attaches br to every subsequent event.
func (b *Bus) AddBroadcaster(br Broadcaster) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := addEntry(&b.broadcasters, br)
	return func() { removeEntry(&b.mu, &b.broadcasters, e) }
}

// addEntry must be called with the Bus lock held.
func addEntry[T any](list *[]*entry[T], fn T) *entry[T] {
	e := &entry[T]{fn: fn}
	e.active.Store(true)
	*list = append(*list, e)
	return e
}

func removeEntry[T any](mu *sync.RWMutex, list *[]*entry[T], target *entry[T]) {
	if !target.active.Swap(false) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	filtered := make([]*entry[T], 0, len(*list))
	for _, x := range *list {
		if x != target {
			filtered = append(filtered, x)
		}
	}
	*list = filtered
}

// Publish announces a committed change to userID's tasks. Simple callbacks
// always run; detailed callbacks only when change is non-nil. The change is
// then broadcast as EventTasksChanged. Publish implements task.Notifier.
func (b *Bus) Publish(userID string, change *task.Change) {
	ev := Event{Type: EventTasksChanged, UserID: userID, Timestamp: b.now().UTC()}
	if change != nil {
		ev.Payload = *change
	}

	b.mu.Lock()
	b.record(ev)
	simple := append([]*entry[func()](nil), b.simple...)
	var detailed []*entry[func(task.Change)]
	if change != nil {
		detailed = append(detailed, b.detailed...)
	}
	broadcasters := append([]*entry[Broadcaster](nil), b.broadcasters...)
	b.mu.Unlock()

	for _, e := range simple {
		if e.active.Load() {
			b.safely("changed", func() { e.fn() })
		}
	}
	for _, e := range detailed {
		if e.active.Load() {
			c := *change
			b.safely("detailed", func() { e.fn(c) })
		}
	}
	b.fanOut(broadcasters, ev)
}

// Broadcast records ev and hands it to the attached Broadcasters only.
func (b *Bus) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	b.mu.Lock()
	b.record(ev)
	broadcasters := append([]*entry[Broadcaster](nil), b.broadcasters...)
	b.mu.Unlock()

	b.fanOut(broadcasters, ev)
}

func (b *Bus) fanOut(broadcasters []*entry[Broadcaster], ev Event) {
	for _, e := range broadcasters {
		if e.active.Load() {
			b.safely("broadcast", func() { e.fn.Broadcast(ev) })
		}
	}
}

// record must be called with b.mu held.
func (b *Bus) record(ev Event) {
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}
}

// safely runs fn and logs a panic instead of propagating it.
func (b *Bus) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("change handler panicked", slog.String("kind", kind), slog.Any("panic", r))
		}
	}()
	fn()
}

// History returns the most recent limit events for userID in chronological
// order. An empty userID matches every event; limit <= 0 means all.
func (b *Bus) History(userID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for i := len(b.history) - 1; i >= 0; i-- {
		ev := b.history[i]
		if userID == "" || ev.UserID == userID {
			result = append(result, ev)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	// Reverse to chronological order
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}
