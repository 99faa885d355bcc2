// The Coordinator drives discrete simulation ticks: it resolves due task
// completions, runs the inventory monitor and order bookkeeping, then
// assigns queued tasks to AGVs until no progress is possible, escalating
// to the Decision Gateway only on genuine ambiguity. Every committed
// transition is appended to the action journal.

package sim

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warehouse-sim/warehouse-sim/sim/journal"
	"github.com/warehouse-sim/warehouse-sim/sim/oracle"
)

// TickPhase is the Coordinator's position in its tick state machine.
type TickPhase string

const (
	PhaseIdle       TickPhase = "idle"
	PhaseTicking    TickPhase = "ticking"
	PhaseCommitting TickPhase = "committing"
)

// conflictRetries bounds local retries of a single mutation that hit a
// Conflict before it surfaces as a precondition failure.
const conflictRetries = 3

// DefaultDurations is the tracked execution time per task kind, in ticks,
// excluding travel (one tick per zone of distance).
var DefaultDurations = map[TaskKind]int64{
	TaskRestock:  3,
	TaskPick:     2,
	TaskDeliver:  2,
	TaskRelocate: 1,
}

// CoordinatorConfig carries the tunables of a simulation run.
type CoordinatorConfig struct {
	Seed            int64
	RetryBudget     int                // task retry budget (default 2)
	FaultRate       float64            // probability an execution attempt fails
	Durations       map[TaskKind]int64 // per-kind execution time in ticks
	OracleTimeout   time.Duration
	JournalCapacity int
}

// Coordinator owns the tick loop and wires the components together. The
// Store is the only shared mutable resource; the Coordinator itself keeps
// just the clock, the pending event heap, and the RNG.
type Coordinator struct {
	store      *Store
	queue      *TaskQueue
	dispatcher *Dispatcher
	monitor    *InventoryMonitor
	orders     *OrderProcessor
	gateway    *DecisionGateway
	journal    *journal.Journal
	metrics    *Metrics
	rng        *PartitionedRNG

	// clock is atomic rather than mu-guarded: the journal observer reads
	// it while holding the store lock, and Tick mutates it under mu. The
	// two locks are acquired in opposite orders on those paths, so the
	// clock must not require either.
	clock atomic.Int64

	mu           sync.Mutex
	events       EventQueue
	eventSeq     int64
	phase        TickPhase
	faultRate    float64
	durations    map[TaskKind]int64
	forcedFaults map[string]string // task id -> fail reason, consumed on completion
}

// NewCoordinator builds the full component graph over a populated store.
// client may be nil (no oracle: every ambiguity resolves greedily).
func NewCoordinator(store *Store, client oracle.Client, cfg CoordinatorConfig) *Coordinator {
	if store == nil {
		panic("NewCoordinator: store must not be nil")
	}
	queue := NewTaskQueue(store)
	dispatcher := NewDispatcher(store, queue)
	if cfg.RetryBudget > 0 {
		dispatcher.RetryBudget = cfg.RetryBudget
	}
	durations := cfg.Durations
	if durations == nil {
		durations = DefaultDurations
	}
	metrics := NewMetrics()
	c := &Coordinator{
		store:        store,
		queue:        queue,
		dispatcher:   dispatcher,
		monitor:      NewInventoryMonitor(store, queue),
		orders:       NewOrderProcessor(store),
		gateway:      NewDecisionGateway(store, client, cfg.OracleTimeout, metrics),
		journal:      journal.New(cfg.JournalCapacity, nil),
		metrics:      metrics,
		rng:          NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		events:       make(EventQueue, 0),
		phase:        PhaseIdle,
		faultRate:    cfg.FaultRate,
		durations:    durations,
		forcedFaults: make(map[string]string),
	}
	store.SetObserver(func(entity EntityKind, id, transition, result string) {
		c.journal.Record(journal.Entry{
			Tick:       c.clock.Load(),
			Entity:     string(entity),
			ID:         id,
			Transition: transition,
			Result:     result,
		})
	})
	return c
}

// SetJournalSink rebuilds the journal with a JSONL sink, carrying over
// the current tail.
func (c *Coordinator) SetJournalSink(capacity int, sink io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.journal
	c.journal = journal.New(capacity, sink)
	for _, e := range old.Tail(old.Len()) {
		c.journal.Record(e)
	}
}

// Store exposes the state store for read paths (API layer).
func (c *Coordinator) Store() *Store { return c.store }

// Metrics exposes the engine metrics registry.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Clock returns the current tick.
func (c *Coordinator) Clock() int64 {
	return c.clock.Load()
}

// Phase returns the coordinator's current tick phase.
func (c *Coordinator) Phase() TickPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetClock fast-forwards the clock (snapshot reload path). Only valid
// before the first tick.
func (c *Coordinator) SetClock(tick int64) {
	c.clock.Store(tick)
}

// Tick advances the simulation by one step: resolve due completions, run
// the inventory monitor, reconcile orders, then dispatch until no
// progress is possible. A Conflict on a single mutation is retried
// locally; only an InvariantViolation halts the tick and propagates.
func (c *Coordinator) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseTicking
	now := c.clock.Add(1)
	c.metrics.Tick.Set(float64(now))
	logrus.Debugf("== tick %d", now)

	// Phase 1: task completions due at or before this tick.
	for len(c.events) > 0 && c.events[0].Timestamp() <= now {
		ev := heap.Pop(&c.events).(Event)
		if err := ev.Execute(c); err != nil {
			if IsInvariantViolation(err) {
				c.phase = PhaseIdle
				return err
			}
			logrus.Errorf("tick %d: completion event: %v", now, err)
		}
	}

	// Phase 2: threshold sweep.
	for range c.monitor.CheckThresholds() {
		c.metrics.RestocksTriggered.Inc()
	}

	// Phase 3: order bookkeeping.
	for _, o := range c.orders.Reconcile() {
		switch o.State {
		case OrderFulfilled:
			c.metrics.OrdersFulfilled.Inc()
		case OrderPartiallyFailed:
			c.metrics.OrdersPartiallyFailed.Inc()
		}
	}

	// Phase 4: dispatch until no progress.
	if err := c.dispatchLoop(ctx); err != nil {
		c.phase = PhaseIdle
		return err
	}

	c.phase = PhaseCommitting
	c.metrics.QueueDepth.Set(float64(c.queue.Depth()))
	c.metrics.IdleAGVs.Set(float64(c.idleCount()))
	if err := c.store.CheckFleetInvariant(); err != nil {
		c.phase = PhaseIdle
		return err
	}
	c.phase = PhaseIdle
	return nil
}

// Run advances the simulation by n ticks, stopping early on context
// cancellation or an invariant violation.
func (c *Coordinator) Run(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunEvery ticks at the given wall-clock interval until the context is
// cancelled. Used by the serve command; an invariant violation stops the
// loop and is returned for operator intervention.
func (c *Coordinator) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) dispatchLoop(ctx context.Context) error {
	for {
		plan := c.dispatcher.PlanNext()
		if plan == nil {
			return nil
		}
		choice := plan.Choice
		if plan.Ambiguous {
			choice = c.gateway.ResolveAssignment(ctx, c.clock.Load(), plan)
		}
		if err := c.commitAssignment(choice); err != nil {
			if IsInvariantViolation(err) {
				return err
			}
			// Precondition races (the oracle path may return a candidate
			// just claimed elsewhere) are not fatal: replan.
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrAgvUnavailable) {
				logrus.Debugf("tick %d: assignment raced, replanning: %v", c.clock.Load(), err)
				continue
			}
			return fmt.Errorf("tick %d: dispatch: %w", c.clock.Load(), err)
		}
	}
}

// commitAssignment commits one assignment with bounded Conflict retries
// and schedules the task's completion event.
func (c *Coordinator) commitAssignment(choice Candidate) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = c.dispatcher.Commit(choice)
		if err == nil || !errors.Is(err, ErrConflict) {
			break
		}
	}
	if err != nil {
		return err
	}
	c.metrics.TasksDispatched.WithLabelValues(string(choice.Task.Kind)).Inc()
	c.scheduleCompletion(choice.Task, int64(choice.Distance))
	return nil
}

// scheduleCompletion queues the task's completion event after its
// tracked duration plus one tick per zone of travel.
func (c *Coordinator) scheduleCompletion(t Task, distance int64) {
	duration := c.durations[t.Kind]
	if duration <= 0 {
		duration = 1
	}
	ev := &TaskCompletionEvent{
		time:   c.clock.Load() + duration + distance,
		seq:    c.eventSeq,
		TaskID: t.ID,
	}
	c.eventSeq++
	heap.Push(&c.events, ev)
	logrus.Debugf("task %s completes at tick %d", t.ID, ev.time)
}

// resolveCompletion settles one in-flight task: injected or random faults
// take the failure/retry path, everything else completes and applies its
// stock effects. A task already terminal (cancelled mid-flight) is a
// no-op.
func (c *Coordinator) resolveCompletion(taskID string) error {
	t, err := c.store.TaskByID(taskID)
	if err != nil {
		return err
	}
	if t.Terminal() {
		return nil
	}

	reason, faulted := c.forcedFaults[taskID]
	if faulted {
		delete(c.forcedFaults, taskID)
	} else if c.faultRate > 0 && c.rng.ForSubsystem(SubsystemFaults).Float64() < c.faultRate {
		reason, faulted = "destination unreachable", true
	}
	if faulted {
		retried, ferr := c.dispatcher.HandleFailure(taskID, reason)
		if ferr != nil {
			return ferr
		}
		if !retried {
			c.metrics.TasksFailed.WithLabelValues(string(t.Kind)).Inc()
		}
		return nil
	}

	if err := c.store.CompleteTask(taskID); err != nil {
		return err
	}
	c.metrics.TasksCompleted.WithLabelValues(string(t.Kind)).Inc()
	switch t.Kind {
	case TaskRestock:
		if err := c.store.ApplyRestock(t.SKU, t.Quantity); err != nil {
			return err
		}
		c.metrics.ItemsRestocked.Add(float64(t.Quantity))
	case TaskPick:
		// Stock was reserved at order submission; completion just moves
		// the reserved units off the shelf.
		c.metrics.ItemsPicked.Add(float64(t.Quantity))
	}
	return nil
}

// InjectFault forces the next execution attempt of the given task to
// fail with the given reason. Test and chaos hook.
func (c *Coordinator) InjectFault(taskID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reason == "" {
		reason = "injected fault"
	}
	c.forcedFaults[taskID] = reason
}

// === Inbound command surface (consumed by the API layer) ===

// SubmitOrder validates and registers a new order, reserving stock and
// spawning pick tasks for its satisfiable lines.
func (c *Coordinator) SubmitOrder(customerID string, lines []LineRequest, priority int) (Order, error) {
	o, err := c.orders.Submit(customerID, lines, priority)
	if err != nil {
		return Order{}, err
	}
	c.metrics.OrdersSubmitted.Inc()
	return o, nil
}

// CancelOrder cancels an open order and its outstanding tasks.
func (c *Coordinator) CancelOrder(orderID string) error {
	if err := c.orders.Cancel(orderID); err != nil {
		return err
	}
	c.metrics.OrdersCancelled.Inc()
	return nil
}

// AskAgent routes a free-form operator query to the Decision Gateway.
func (c *Coordinator) AskAgent(ctx context.Context, question string) AgentReply {
	return c.gateway.AskAgent(ctx, c.Clock(), question)
}

// RecentLogs returns the most recent n journal entries, oldest first.
func (c *Coordinator) RecentLogs(n int) []journal.Entry {
	return c.journal.Tail(n)
}

// Snapshot returns an immutable copy of the live record set at the
// current tick.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.store.Snapshot(c.Clock())
}

// PlanResult is the outcome of one action of an operator plan.
type PlanResult struct {
	Action oracle.Action `json:"action"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
}

// ExecutePlan applies a validated sequence of oracle actions, stopping at
// the first failure. Restock/pick/relocate actions enter the system as
// queued tasks; assignments and cancellations apply directly.
func (c *Coordinator) ExecutePlan(actions []oracle.Action) []PlanResult {
	results := make([]PlanResult, 0, len(actions))
	for _, a := range actions {
		err := c.executeAction(a)
		r := PlanResult{Action: a, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
		if err != nil {
			logrus.Warnf("plan stopped at action %s: %v", a.Kind, err)
			break
		}
	}
	return results
}

func (c *Coordinator) executeAction(a oracle.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	switch a.Kind {
	case "restock":
		p, err := c.store.ProductBySKU(a.TargetIDs[0])
		if err != nil {
			return err
		}
		qty := a.Quantity
		if qty <= 0 {
			qty = p.RestockQuantity
		}
		c.store.CreateTask(TaskRestock, p.SKU, qty, "", p.Zone, p.Quantity-p.RestockThreshold)
		return nil
	case "pick":
		p, err := c.store.ProductBySKU(a.TargetIDs[0])
		if err != nil {
			return err
		}
		qty := a.Quantity
		if qty <= 0 {
			qty = 1
		}
		if err := c.store.ReserveStock(p.SKU, qty); err != nil {
			return err
		}
		c.store.CreateTask(TaskPick, p.SKU, qty, "", p.Zone, 0)
		return nil
	case "relocate":
		if len(a.TargetIDs) < 2 {
			return fmt.Errorf("relocate needs [agv, zone] targets: %w", oracle.ErrMalformed)
		}
		agv, err := c.store.AGVByID(a.TargetIDs[0])
		if err != nil {
			return err
		}
		z, err := c.store.ZoneByID(a.TargetIDs[1])
		if err != nil {
			return err
		}
		// The plan names the vehicle, so the task is committed to it
		// directly instead of entering the open dispatch queue. On a
		// failed commit the task is withdrawn rather than left Pending,
		// where the dispatcher would hand it to a different AGV.
		t := c.store.CreateTask(TaskRelocate, "", 0, "", z.ID, 0)
		choice := Candidate{Task: t, AGV: agv, Distance: c.store.Distance(agv.Zone, z.ID)}
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.commitAssignment(choice); err != nil {
			if cerr := c.store.CancelTask(t.ID); cerr != nil {
				logrus.Errorf("withdraw relocate task %s: %v", t.ID, cerr)
			}
			return err
		}
		return nil
	case ActionAssign:
		if len(a.TargetIDs) != 2 {
			return fmt.Errorf("assign needs [task, agv] targets: %w", oracle.ErrMalformed)
		}
		t, err := c.store.TaskByID(a.TargetIDs[0])
		if err != nil {
			return err
		}
		agv, err := c.store.AGVByID(a.TargetIDs[1])
		if err != nil {
			return err
		}
		choice := Candidate{Task: t, AGV: agv, Distance: c.store.Distance(agv.Zone, t.Zone)}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.commitAssignment(choice)
	case "cancel_order":
		return c.CancelOrder(a.TargetIDs[0])
	default:
		return fmt.Errorf("unknown action kind %q: %w", a.Kind, oracle.ErrMalformed)
	}
}

func (c *Coordinator) idleCount() int {
	n := 0
	for _, a := range c.store.AGVs() {
		if a.Status == AGVIdle {
			n++
		}
	}
	return n
}
