// Implements the TaskQueue, the ordered backlog of pending work awaiting
// AGV assignment. The queue holds no state of its own: task records live
// in the Store and the queue recomputes its ordering from store reads, so
// there is no cached copy to go stale between ticks.

package sim

import "sort"

// TaskQueue presents the Store's Pending tasks in dispatch order:
// priority ascending (lower = more urgent), creation order within one
// priority level. The ordering is deterministic and starvation-free.
type TaskQueue struct {
	store *Store
}

// NewTaskQueue creates a TaskQueue over the given store.
func NewTaskQueue(store *Store) *TaskQueue {
	if store == nil {
		panic("NewTaskQueue: store must not be nil")
	}
	return &TaskQueue{store: store}
}

// Pending returns copies of all Pending tasks in dispatch order.
func (q *TaskQueue) Pending() []Task {
	live := q.store.LiveTasks()
	out := make([]Task, 0, len(live))
	for _, t := range live {
		if t.State == TaskPending {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Depth returns the number of Pending tasks.
func (q *TaskQueue) Depth() int {
	return len(q.Pending())
}

// Peek returns the head task without claiming it.
func (q *TaskQueue) Peek() (Task, bool) {
	pending := q.Pending()
	if len(pending) == 0 {
		return Task{}, false
	}
	return pending[0], true
}

// OpenTaskFor reports whether a live task of the given kind already
// targets the SKU. The Inventory Monitor uses this to stay idempotent.
func (q *TaskQueue) OpenTaskFor(kind TaskKind, sku string) bool {
	for _, t := range q.store.LiveTasks() {
		if t.Kind == kind && t.SKU == sku {
			return true
		}
	}
	return false
}
