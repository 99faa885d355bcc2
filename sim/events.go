package sim

// Event defines the interface for deferred simulation work. Each event
// has a Timestamp (in ticks) at which it becomes due and an Execute
// method that advances warehouse state when invoked. Seq breaks ties
// between events due at the same tick, preserving scheduling order.
type Event interface {
	Timestamp() int64
	Seq() int64
	Execute(c *Coordinator) error
}

// EventQueue implements heap.Interface and orders events by timestamp,
// then by scheduling order for determinism.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []Event

func (eq EventQueue) Len() int { return len(eq) }
func (eq EventQueue) Less(i, j int) bool {
	if eq[i].Timestamp() != eq[j].Timestamp() {
		return eq[i].Timestamp() < eq[j].Timestamp()
	}
	return eq[i].Seq() < eq[j].Seq()
}
func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(Event))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// TaskCompletionEvent fires when an in-flight task finishes its tracked
// duration. Execution resolves the task as completed or failed (fault
// injection) and applies the task's stock effects.
type TaskCompletionEvent struct {
	time   int64
	seq    int64
	TaskID string
}

// Timestamp returns the tick at which the task's duration elapses.
func (e *TaskCompletionEvent) Timestamp() int64 {
	return e.time
}

// Seq returns the scheduling order of this event.
func (e *TaskCompletionEvent) Seq() int64 {
	return e.seq
}

// Execute resolves the completion via the owning Coordinator.
func (e *TaskCompletionEvent) Execute(c *Coordinator) error {
	return c.resolveCompletion(e.TaskID)
}
