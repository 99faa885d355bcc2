// The AGV Dispatcher matches Idle AGVs to queued tasks. It plans one
// assignment at a time under a greedy policy: head task first, nearest
// Idle AGV, lowest AGV id on distance ties. When several task/AGV
// pairings are genuinely interchangeable it reports the ambiguity instead
// of resolving it, so the Coordinator can consult the Decision Gateway.

package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// DefaultRetryBudget is the number of re-executions a failed task gets
// before it goes terminal Failed.
const DefaultRetryBudget = 2

// Candidate is one feasible task/AGV pairing with its travel distance.
type Candidate struct {
	Task     Task
	AGV      AGV
	Distance int
}

// Plan is the dispatcher's proposal for the next assignment. Choice is
// always the greedy pick; when Ambiguous is set, Candidates lists the
// equally-ranked pairings the greedy rule had to break arbitrarily, and
// the Coordinator may escalate the choice to the Decision Gateway.
type Plan struct {
	Choice     Candidate
	Ambiguous  bool
	Candidates []Candidate
}

// Dispatcher assigns queued tasks to Idle AGVs and drives the task
// failure/retry policy.
type Dispatcher struct {
	store       *Store
	queue       *TaskQueue
	RetryBudget int
}

// NewDispatcher creates a Dispatcher with the default retry budget.
func NewDispatcher(store *Store, queue *TaskQueue) *Dispatcher {
	if store == nil || queue == nil {
		panic("NewDispatcher: store and queue must not be nil")
	}
	return &Dispatcher{store: store, queue: queue, RetryBudget: DefaultRetryBudget}
}

// PlanNext computes the next assignment to make. Returns nil when there
// is nothing to do: an empty queue, or no Idle AGV (backpressure; the
// task simply stays queued). Never an error.
func (d *Dispatcher) PlanNext() *Plan {
	pending := d.queue.Pending()
	if len(pending) == 0 {
		return nil
	}
	idle := d.idleAGVs()
	if len(idle) == 0 {
		logrus.Debugf("dispatcher: %d tasks queued, no idle AGV (backpressure)", len(pending))
		return nil
	}

	head := pending[0]
	ranked := d.rankAGVs(head, idle)
	plan := &Plan{Choice: Candidate{Task: head, AGV: ranked[0].AGV, Distance: ranked[0].Distance}}

	// Genuine ambiguity: more than one head-priority task, more than one
	// Idle AGV, and the nearest AGV is contended between those tasks.
	// Everything else is settled by the deterministic tie-break.
	headGroup := headPriorityGroup(pending)
	if len(headGroup) > 1 && len(idle) > 1 {
		contended := d.contendedCandidates(headGroup, idle)
		if len(contended) > 1 {
			plan.Ambiguous = true
			plan.Candidates = contended
		}
	}
	return plan
}

// Commit applies a planned assignment atomically and starts execution.
func (d *Dispatcher) Commit(c Candidate) error {
	if err := d.store.AssignTask(c.Task.ID, c.AGV.ID); err != nil {
		return fmt.Errorf("assign %s to %s: %w", c.Task.ID, c.AGV.ID, err)
	}
	if err := d.store.StartTask(c.Task.ID); err != nil {
		return fmt.Errorf("start %s: %w", c.Task.ID, err)
	}
	logrus.Infof(">> Assigned task %s (%s, priority %d) to AGV %s (distance %d)",
		c.Task.ID, c.Task.Kind, c.Task.Priority, c.AGV.ID, c.Distance)
	return nil
}

// HandleFailure runs the failure policy for an executing task: retry
// within budget (the task re-enters the queue as Pending), terminal
// Failed past it. Reserved stock of a terminally failed pick task is
// released back to the shelf.
func (d *Dispatcher) HandleFailure(taskID, reason string) (retried bool, err error) {
	t, err := d.store.TaskByID(taskID)
	if err != nil {
		return false, err
	}
	retried, err = d.store.FailAttempt(taskID, reason, d.RetryBudget)
	if err != nil {
		return false, err
	}
	if retried {
		logrus.Infof("!! Task %s failed (%s), attempt %d/%d, requeued", taskID, reason, t.Attempts+1, d.RetryBudget)
		return true, nil
	}
	logrus.Warnf("!! Task %s failed terminally after %d attempts: %s", taskID, t.Attempts+1, reason)
	if t.Kind == TaskPick && t.SKU != "" {
		if rerr := d.store.ReleaseStock(t.SKU, t.Quantity); rerr != nil {
			logrus.Errorf("release reserved stock for failed task %s: %v", taskID, rerr)
		}
	}
	return false, nil
}

// idleAGVs returns Idle AGVs sorted by id.
func (d *Dispatcher) idleAGVs() []AGV {
	all := d.store.AGVs()
	idle := make([]AGV, 0, len(all))
	for _, a := range all {
		if a.Status == AGVIdle {
			idle = append(idle, a)
		}
	}
	return idle
}

// rankAGVs orders Idle AGVs for a task by distance to the task zone,
// then by id for determinism.
func (d *Dispatcher) rankAGVs(t Task, idle []AGV) []Candidate {
	ranked := make([]Candidate, 0, len(idle))
	for _, a := range idle {
		ranked = append(ranked, Candidate{Task: t, AGV: a, Distance: d.store.Distance(a.Zone, t.Zone)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].AGV.ID < ranked[j].AGV.ID
	})
	return ranked
}

// contendedCandidates returns the nearest pairing per head-priority task
// when at least two of those tasks want the same nearest AGV.
func (d *Dispatcher) contendedCandidates(tasks []Task, idle []AGV) []Candidate {
	best := make([]Candidate, 0, len(tasks))
	wanted := make(map[string]int) // agv id -> how many tasks rank it first
	for _, t := range tasks {
		ranked := d.rankAGVs(t, idle)
		best = append(best, ranked[0])
		wanted[ranked[0].AGV.ID]++
	}
	for _, n := range wanted {
		if n > 1 {
			return best
		}
	}
	return nil
}

// headPriorityGroup returns the prefix of pending tasks sharing the head
// task's priority. Pending order is priority asc, so the group is a prefix.
func headPriorityGroup(pending []Task) []Task {
	group := []Task{pending[0]}
	for _, t := range pending[1:] {
		if t.Priority != pending[0].Priority {
			break
		}
		group = append(group, t)
	}
	return group
}
