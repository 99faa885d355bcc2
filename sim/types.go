// Canonical warehouse record types. The Store owns the single mutable copy
// of each record; everything handed out of the Store is a deep copy.

package sim

// AGVStatus is the lifecycle state of an automated guided vehicle.
type AGVStatus string

const (
	AGVIdle     AGVStatus = "idle"
	AGVAssigned AGVStatus = "assigned"
	AGVEnRoute  AGVStatus = "enroute"
	AGVBusy     AGVStatus = "busy"
)

// TaskKind identifies the unit of physical work a task represents.
type TaskKind string

const (
	TaskRestock  TaskKind = "restock"
	TaskPick     TaskKind = "pick"
	TaskDeliver  TaskKind = "deliver"
	TaskRelocate TaskKind = "relocate"
)

// TaskState is the lifecycle state of a task. Completed and Failed are
// terminal: the Store archives the record and it leaves the live set.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskAssigned   TaskState = "assigned"
	TaskInProgress TaskState = "inprogress"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// OrderState is the lifecycle state of a customer order.
type OrderState string

const (
	OrderReceived        OrderState = "received"
	OrderInProgress      OrderState = "inprogress"
	OrderFulfilled       OrderState = "fulfilled"
	OrderPartiallyFailed OrderState = "partially_failed"
	OrderCancelled       OrderState = "cancelled"
)

// ZoneKind classifies a warehouse zone.
type ZoneKind string

const (
	ZoneDock        ZoneKind = "dock"
	ZoneStorage     ZoneKind = "storage"
	ZoneWorkstation ZoneKind = "workstation"
	ZoneCharging    ZoneKind = "charging"
)

// Zone is a named location in the warehouse. Position is a coordinate on a
// single abstract aisle; travel distance between two zones is the absolute
// difference of their positions.
type Zone struct {
	ID       string   `yaml:"id" json:"id"`
	Kind     ZoneKind `yaml:"kind" json:"kind"`
	Position int      `yaml:"position" json:"position"`
}

// Product is a stocked SKU. Quantity is mutated only through the Store's
// reserve/release/restock transitions and never goes negative or above
// MaxCapacity.
type Product struct {
	SKU              string `yaml:"sku" json:"sku"`
	Name             string `yaml:"name" json:"name"`
	Quantity         int    `yaml:"quantity" json:"quantity"`
	RestockThreshold int    `yaml:"restock_threshold" json:"restock_threshold"`
	RestockQuantity  int    `yaml:"restock_quantity" json:"restock_quantity"`
	MaxCapacity      int    `yaml:"max_capacity" json:"max_capacity"`
	Zone             string `yaml:"zone" json:"zone"`
	Version          int64  `yaml:"-" json:"version"`
}

// AGV is one vehicle of the fleet. CurrentTask is empty exactly when
// Status is Idle; an AGV holds at most one active task.
type AGV struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Status      AGVStatus `yaml:"status" json:"status"`
	CurrentTask string    `yaml:"-" json:"current_task,omitempty"`
	Zone        string    `yaml:"zone" json:"zone"`
	Battery     float64   `yaml:"battery" json:"battery"`
	Version     int64     `yaml:"-" json:"version"`
}

// Task is a unit of work awaiting or undergoing execution by an AGV.
// Lower Priority is more urgent. Seq preserves creation order for the
// FIFO tie-break inside one priority level.
type Task struct {
	ID          string    `json:"id"`
	Kind        TaskKind  `json:"kind"`
	SKU         string    `json:"sku,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Zone        string    `json:"zone"`
	Priority    int       `json:"priority"`
	State       TaskState `json:"state"`
	AssignedAGV string    `json:"assigned_agv,omitempty"`
	Attempts    int       `json:"attempts"`
	FailReason  string    `json:"fail_reason,omitempty"`
	Seq         int64     `json:"seq"`
	Version     int64     `json:"version"`
}

// OrderLine is one (sku, quantity) entry of an order. A line rejected at
// submission (unknown SKU, bad quantity, insufficient stock) carries the
// rejection reason; accepted lines carry the id of their pick task.
type OrderLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

// Order is a customer order decomposed into pick tasks. ChildTasks holds
// the task ids spawned for its accepted lines.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Lines      []OrderLine `json:"lines"`
	State      OrderState  `json:"state"`
	ChildTasks []string    `json:"child_tasks"`
	Version    int64       `json:"version"`
}

// Terminal reports whether the task has reached a terminal state.
func (t *Task) Terminal() bool {
	return t.State == TaskCompleted || t.State == TaskFailed
}

// Terminal reports whether the order has reached a terminal state.
func (o *Order) Terminal() bool {
	return o.State == OrderFulfilled || o.State == OrderPartiallyFailed || o.State == OrderCancelled
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	c.ChildTasks = append([]string(nil), o.ChildTasks...)
	return &c
}

// ZoneDistance returns the travel distance between two zone positions.
func ZoneDistance(a, b Zone) int {
	d := a.Position - b.Position
	if d < 0 {
		d = -d
	}
	return d
}
