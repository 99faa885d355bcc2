// The Store is the single source of truth for warehouse state. All
// mutation goes through named transitions that validate their own
// preconditions under the store lock, so invalid states are unreachable.
// Cross-entity transitions (assigning a task updates both the Task and the
// AGV) happen atomically inside one lock acquisition.

package sim

import (
	"fmt"
	"sort"
	"sync"
)

// EntityKind names a record family for version checks and journal entries.
type EntityKind string

const (
	EntityProduct EntityKind = "product"
	EntityAGV     EntityKind = "agv"
	EntityTask    EntityKind = "task"
	EntityOrder   EntityKind = "order"
)

// CommitObserver is invoked for every transition the Store processes,
// successful or not. The Coordinator installs one to feed the action
// journal. Observers MUST NOT call back into the Store.
type CommitObserver func(entity EntityKind, id, transition, result string)

// Store holds the canonical Product, AGV, Task and Order records.
// All methods are safe for concurrent use; mutations on the same entity
// are serialized by the store lock.
type Store struct {
	mu       sync.Mutex
	zones    map[string]Zone
	products map[string]*Product
	agvs     map[string]*AGV
	tasks    map[string]*Task // live (non-terminal) tasks
	archived map[string]*Task // terminal tasks, kept for order reconciliation
	orders   map[string]*Order
	taskSeq  int64
	observer CommitObserver
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		zones:    make(map[string]Zone),
		products: make(map[string]*Product),
		agvs:     make(map[string]*AGV),
		tasks:    make(map[string]*Task),
		archived: make(map[string]*Task),
		orders:   make(map[string]*Order),
	}
}

// SetObserver installs the commit observer. Pass nil to disable.
func (s *Store) SetObserver(fn CommitObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Store) notify(entity EntityKind, id, transition string, err error) {
	if s.observer == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	s.observer(entity, id, transition, result)
}

// === Initialization (init_from_config path) ===

// AddZone registers a warehouse zone.
func (s *Store) AddZone(z Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[z.ID] = z
}

// AddProduct registers a product record. Panics on duplicate SKU or
// negative quantity: layout files are validated before loading, so a bad
// record here is a programmer error.
func (s *Store) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.SKU]; ok {
		panic(fmt.Sprintf("AddProduct: duplicate SKU %q", p.SKU))
	}
	if p.Quantity < 0 || p.RestockQuantity <= 0 {
		panic(fmt.Sprintf("AddProduct: invalid record for SKU %q", p.SKU))
	}
	if p.MaxCapacity <= 0 {
		p.MaxCapacity = p.Quantity + p.RestockQuantity
	}
	s.products[p.SKU] = &p
}

// AddAGV registers an AGV record. New AGVs start Idle with no task.
func (s *Store) AddAGV(a AGV) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agvs[a.ID]; ok {
		panic(fmt.Sprintf("AddAGV: duplicate AGV %q", a.ID))
	}
	a.Status = AGVIdle
	a.CurrentTask = ""
	if a.Battery == 0 {
		a.Battery = 100.0
	}
	s.agvs[a.ID] = &a
}

// RestoreTask reinserts a task record verbatim (snapshot reload path).
func (s *Store) RestoreTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	if t.Terminal() {
		s.archived[t.ID] = &cp
	} else {
		s.tasks[t.ID] = &cp
	}
	if t.Seq >= s.taskSeq {
		s.taskSeq = t.Seq + 1
	}
}

// RestoreOrder reinserts an order record verbatim (snapshot reload path).
func (s *Store) RestoreOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

// === Reads ===

// ZoneByID returns the zone record, or ErrNotFound.
func (s *Store) ZoneByID(id string) (Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[id]
	if !ok {
		return Zone{}, fmt.Errorf("zone %q: %w", id, ErrNotFound)
	}
	return z, nil
}

// Distance returns the travel distance between two zones. Unknown zones
// contribute position 0 so the result is still deterministic.
func (s *Store) Distance(fromZone, toZone string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ZoneDistance(s.zones[fromZone], s.zones[toZone])
}

// ProductBySKU returns a copy of the product record, or ErrNotFound.
func (s *Store) ProductBySKU(sku string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return Product{}, fmt.Errorf("product %q: %w", sku, ErrNotFound)
	}
	return *p, nil
}

// AGVByID returns a copy of the AGV record, or ErrNotFound.
func (s *Store) AGVByID(id string) (AGV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agvs[id]
	if !ok {
		return AGV{}, fmt.Errorf("agv %q: %w", id, ErrNotFound)
	}
	return *a, nil
}

// TaskByID returns a copy of the task record, live or archived.
func (s *Store) TaskByID(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return *t, nil
	}
	if t, ok := s.archived[id]; ok {
		return *t, nil
	}
	return Task{}, fmt.Errorf("task %q: %w", id, ErrNotFound)
}

// OrderByID returns a copy of the order record, or ErrNotFound.
func (s *Store) OrderByID(id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %q: %w", id, ErrNotFound)
	}
	return *o.Clone(), nil
}

// Products returns copies of all product records sorted by SKU.
func (s *Store) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// AGVs returns copies of all AGV records sorted by id.
func (s *Store) AGVs() []AGV {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AGV, 0, len(s.agvs))
	for _, a := range s.agvs {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LiveTasks returns copies of all non-terminal tasks in creation order.
func (s *Store) LiveTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ArchivedTasks returns copies of all terminal tasks in creation order.
func (s *Store) ArchivedTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.archived))
	for _, t := range s.archived {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Orders returns copies of all orders sorted by id.
func (s *Store) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Zones returns all zone records sorted by id.
func (s *Store) Zones() []Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VersionOf returns the current version counter of an entity. Used by the
// Decision Gateway to detect that a recommendation has gone stale.
func (s *Store) VersionOf(entity EntityKind, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch entity {
	case EntityProduct:
		if p, ok := s.products[id]; ok {
			return p.Version, nil
		}
	case EntityAGV:
		if a, ok := s.agvs[id]; ok {
			return a.Version, nil
		}
	case EntityTask:
		if t, ok := s.tasks[id]; ok {
			return t.Version, nil
		}
	case EntityOrder:
		if o, ok := s.orders[id]; ok {
			return o.Version, nil
		}
	}
	return 0, fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// === Stock transitions ===

// ReserveStock removes qty units from the product's available quantity.
// Fails with ErrInsufficientStock when fewer than qty units are available;
// the quantity is untouched on failure.
func (s *Store) ReserveStock(sku string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.reserveLocked(sku, qty)
	s.notify(EntityProduct, sku, "ReserveStock", err)
	return err
}

func (s *Store) reserveLocked(sku string, qty int) error {
	p, ok := s.products[sku]
	if !ok {
		return fmt.Errorf("product %q: %w", sku, ErrNotFound)
	}
	if qty <= 0 {
		return fmt.Errorf("reserve %d of %q: %w", qty, sku, ErrInvalidOrder)
	}
	if p.Quantity < qty {
		return fmt.Errorf("reserve %d of %q (have %d): %w", qty, sku, p.Quantity, ErrInsufficientStock)
	}
	p.Quantity -= qty
	p.Version++
	return nil
}

// ReleaseStock returns previously reserved units to the shelf. Fails with
// ErrStockCapacity if the return would exceed MaxCapacity.
func (s *Store) ReleaseStock(sku string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	p, ok := s.products[sku]
	switch {
	case !ok:
		err = fmt.Errorf("product %q: %w", sku, ErrNotFound)
	case p.Quantity+qty > p.MaxCapacity:
		err = fmt.Errorf("release %d of %q: %w", qty, sku, ErrStockCapacity)
	default:
		p.Quantity += qty
		p.Version++
	}
	s.notify(EntityProduct, sku, "ReleaseStock", err)
	return err
}

// ApplyRestock adds qty units of delivered stock, clamped at MaxCapacity.
// Clamping (rather than failing) keeps restock completion total: the
// over-capacity remainder is treated as returned to the supplier.
func (s *Store) ApplyRestock(sku string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	p, ok := s.products[sku]
	if !ok {
		err = fmt.Errorf("product %q: %w", sku, ErrNotFound)
	} else {
		p.Quantity += qty
		if p.Quantity > p.MaxCapacity {
			p.Quantity = p.MaxCapacity
		}
		p.Version++
	}
	s.notify(EntityProduct, sku, "ApplyRestock", err)
	return err
}

// === Task transitions ===

// CreateTask mints a new Pending task and returns a copy of it. Seq is a
// monotonic counter giving FIFO order within one priority level.
func (s *Store) CreateTask(kind TaskKind, sku string, qty int, orderID, zone string, priority int) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Task{
		ID:       fmt.Sprintf("%s-%d", kind, s.taskSeq),
		Kind:     kind,
		SKU:      sku,
		Quantity: qty,
		OrderID:  orderID,
		Zone:     zone,
		Priority: priority,
		State:    TaskPending,
		Seq:      s.taskSeq,
	}
	s.taskSeq++
	s.tasks[t.ID] = t
	s.notify(EntityTask, t.ID, "CreateTask", nil)
	return *t
}

// AssignTask atomically transitions a Pending task to Assigned and an Idle
// AGV to Assigned with mutual references. Returns an InvariantViolation if
// another live task already names the AGV: that state should be
// unreachable and indicates a defect, not an environmental condition.
func (s *Store) AssignTask(taskID, agvID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.assignLocked(taskID, agvID)
	s.notify(EntityTask, taskID, "AssignTask:"+agvID, err)
	return err
}

func (s *Store) assignLocked(taskID, agvID string) error {
	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	a, ok := s.agvs[agvID]
	if !ok {
		return fmt.Errorf("agv %q: %w", agvID, ErrNotFound)
	}
	if t.State != TaskPending {
		return fmt.Errorf("task %q is %s: %w", taskID, t.State, ErrConflict)
	}
	if a.Status != AGVIdle {
		return fmt.Errorf("agv %q is %s: %w", agvID, a.Status, ErrAgvUnavailable)
	}
	for _, other := range s.tasks {
		if other.AssignedAGV == agvID && !other.Terminal() {
			return &InvariantViolation{
				Entity: "agv",
				ID:     agvID,
				Detail: fmt.Sprintf("idle AGV already referenced by live task %s", other.ID),
			}
		}
	}
	t.State = TaskAssigned
	t.AssignedAGV = agvID
	t.Version++
	a.Status = AGVAssigned
	a.CurrentTask = taskID
	a.Version++
	return nil
}

// StartTask moves an Assigned task to InProgress. The AGV goes EnRoute
// when it must travel to the task zone, Busy when it is already there.
func (s *Store) StartTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	t, ok := s.tasks[taskID]
	if !ok {
		err = fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	} else if t.State != TaskAssigned {
		err = fmt.Errorf("task %q is %s: %w", taskID, t.State, ErrConflict)
	} else {
		a := s.agvs[t.AssignedAGV]
		if a == nil {
			err = &InvariantViolation{Entity: "task", ID: taskID, Detail: "assigned AGV missing from fleet"}
		} else {
			t.State = TaskInProgress
			t.Version++
			if a.Zone == t.Zone {
				a.Status = AGVBusy
			} else {
				a.Status = AGVEnRoute
			}
			a.Version++
		}
	}
	s.notify(EntityTask, taskID, "StartTask", err)
	return err
}

// CompleteTask transitions an InProgress task to Completed, archives it,
// and returns its AGV to Idle at the task zone, in one atomic step.
func (s *Store) CompleteTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.finishLocked(taskID, TaskCompleted, "")
	s.notify(EntityTask, taskID, "CompleteTask", err)
	return err
}

// FailAttempt records a failed execution attempt. Within the retry budget
// the task returns to Pending (and re-enters the queue); past it the task
// goes terminal Failed with the given reason. Returns retried=true in the
// first case. The AGV returns to Idle either way.
func (s *Store) FailAttempt(taskID, reason string, retryBudget int) (retried bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		err = fmt.Errorf("task %q: %w", taskID, ErrNotFound)
		s.notify(EntityTask, taskID, "FailAttempt", err)
		return false, err
	}
	if t.State != TaskInProgress && t.State != TaskAssigned {
		err = fmt.Errorf("task %q is %s: %w", taskID, t.State, ErrConflict)
		s.notify(EntityTask, taskID, "FailAttempt", err)
		return false, err
	}
	t.Attempts++
	if t.Attempts <= retryBudget {
		s.releaseAGVLocked(t, false)
		t.State = TaskPending
		t.AssignedAGV = ""
		t.Version++
		s.notify(EntityTask, taskID, "FailAttempt:retry", nil)
		return true, nil
	}
	err = s.finishLocked(taskID, TaskFailed, reason)
	s.notify(EntityTask, taskID, "FailAttempt:exhausted", err)
	return false, err
}

// CancelTask cancels a task. Pending tasks are simply removed from the
// live set (archived as Failed with a "cancelled" subreason so order
// reconciliation still sees them). Assigned/InProgress tasks go through
// the terminal failure path directly, bypassing retries. Terminal tasks
// return ErrTaskNotCancellable.
func (s *Store) CancelTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	t, ok := s.tasks[taskID]
	if !ok {
		err = fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	} else {
		switch t.State {
		case TaskPending, TaskAssigned, TaskInProgress:
			err = s.finishLocked(taskID, TaskFailed, "cancelled")
		default:
			err = fmt.Errorf("task %q is %s: %w", taskID, t.State, ErrTaskNotCancellable)
		}
	}
	s.notify(EntityTask, taskID, "CancelTask", err)
	return err
}

// finishLocked moves a live task to a terminal state, archives it, and
// frees its AGV (if any) at the task zone.
func (s *Store) finishLocked(taskID string, state TaskState, reason string) error {
	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	s.releaseAGVLocked(t, true)
	t.State = state
	t.FailReason = reason
	t.AssignedAGV = ""
	t.Version++
	delete(s.tasks, taskID)
	s.archived[taskID] = t
	return nil
}

// releaseAGVLocked returns the task's AGV (if any) to Idle. When moved is
// true the AGV ends up at the task zone, modeling the travel it performed.
func (s *Store) releaseAGVLocked(t *Task, moved bool) {
	if t.AssignedAGV == "" {
		return
	}
	if a, ok := s.agvs[t.AssignedAGV]; ok && a.CurrentTask == t.ID {
		a.Status = AGVIdle
		a.CurrentTask = ""
		if moved {
			a.Zone = t.Zone
			a.Battery = clampBattery(a.Battery - 5.0)
		}
		a.Version++
	}
}

func clampBattery(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// === Order transitions ===

// CreateOrder inserts a new order record in state Received.
func (s *Store) CreateOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.State = OrderReceived
	s.orders[o.ID] = o.Clone()
	s.notify(EntityOrder, o.ID, "CreateOrder", nil)
}

// AttachOrderLines replaces the order's line set and child task list after
// submission-time reservation, moving the order to InProgress when at
// least one line was accepted.
func (s *Store) AttachOrderLines(orderID string, lines []OrderLine, childTasks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	o, ok := s.orders[orderID]
	if !ok {
		err = fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	} else {
		o.Lines = append([]OrderLine(nil), lines...)
		o.ChildTasks = append([]string(nil), childTasks...)
		if len(childTasks) > 0 {
			o.State = OrderInProgress
		}
		o.Version++
	}
	s.notify(EntityOrder, orderID, "AttachOrderLines", err)
	return err
}

// SetOrderState commits a recomputed order state. Terminal orders are
// immutable: further transitions return ErrConflict.
func (s *Store) SetOrderState(orderID string, state OrderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	o, ok := s.orders[orderID]
	switch {
	case !ok:
		err = fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	case o.Terminal():
		err = fmt.Errorf("order %q is %s: %w", orderID, o.State, ErrConflict)
	default:
		o.State = state
		o.Version++
	}
	s.notify(EntityOrder, orderID, "SetOrderState:"+string(state), err)
	return err
}

// === Snapshot ===

// Snapshot is an immutable copy of the live record set at a given tick.
type Snapshot struct {
	Tick     int64     `json:"tick"`
	Zones    []Zone    `json:"zones"`
	Products []Product `json:"products"`
	AGVs     []AGV     `json:"agvs"`
	Tasks    []Task    `json:"tasks"`
	Orders   []Order   `json:"orders"`
}

// Snapshot returns a deep copy of all live records. Components never hold
// mutable state across ticks; they recompute from snapshots or re-read
// individual records before mutating.
func (s *Store) Snapshot(tick int64) *Snapshot {
	return &Snapshot{
		Tick:     tick,
		Zones:    s.Zones(),
		Products: s.Products(),
		AGVs:     s.AGVs(),
		Tasks:    s.LiveTasks(),
		Orders:   s.Orders(),
	}
}

// CheckFleetInvariant verifies that no AGV is referenced by two live
// tasks and that status/current_task are consistent on every AGV.
// Returns an InvariantViolation describing the first corruption found.
func (s *Store) CheckFleetInvariant() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]string) // agv id -> task id
	for _, t := range s.tasks {
		if t.AssignedAGV == "" {
			continue
		}
		if prev, ok := seen[t.AssignedAGV]; ok {
			return &InvariantViolation{
				Entity: "agv",
				ID:     t.AssignedAGV,
				Detail: fmt.Sprintf("referenced by live tasks %s and %s", prev, t.ID),
			}
		}
		seen[t.AssignedAGV] = t.ID
	}
	for id, a := range s.agvs {
		idle := a.Status == AGVIdle
		if idle != (a.CurrentTask == "") {
			return &InvariantViolation{
				Entity: "agv",
				ID:     id,
				Detail: fmt.Sprintf("status %s inconsistent with current_task %q", a.Status, a.CurrentTask),
			}
		}
	}
	return nil
}
