// The Order Processor decomposes incoming orders into Pick tasks and
// tracks per-order completion. Stock is reserved per line at submission:
// a line that cannot be covered fails on its own with InsufficientStock
// instead of rejecting the whole order.

package sim

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LineRequest is one requested (sku, quantity) pair of an incoming order.
type LineRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderProcessor validates, reserves, and decomposes orders, and
// recomputes order state as child tasks reach terminal states.
type OrderProcessor struct {
	store *Store
}

// NewOrderProcessor creates an OrderProcessor.
func NewOrderProcessor(store *Store) *OrderProcessor {
	if store == nil {
		panic("NewOrderProcessor: store must not be nil")
	}
	return &OrderProcessor{store: store}
}

// Submit validates and registers a new order. Shape errors (unknown SKU,
// non-positive quantity, empty line set) reject the whole order with
// ErrInvalidOrder before any state changes. Insufficient stock is a
// per-line failure: the line is marked undeliverable and the rest of the
// order proceeds. One Pick task is created per satisfiable line, at the
// given priority (lower = more urgent).
func (p *OrderProcessor) Submit(customerID string, lines []LineRequest, priority int) (Order, error) {
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("order has no line items: %w", ErrInvalidOrder)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Order{}, fmt.Errorf("line %q quantity %d: %w", l.SKU, l.Quantity, ErrInvalidOrder)
		}
		if _, err := p.store.ProductBySKU(l.SKU); err != nil {
			return Order{}, fmt.Errorf("line %q: %w", l.SKU, ErrInvalidOrder)
		}
	}

	order := Order{ID: uuid.NewString(), CustomerID: customerID}
	p.store.CreateOrder(order)

	resolved := make([]OrderLine, 0, len(lines))
	var childTasks []string
	for _, l := range lines {
		line := OrderLine{SKU: l.SKU, Quantity: l.Quantity}
		if err := p.store.ReserveStock(l.SKU, l.Quantity); err != nil {
			line.Reason = reasonFor(err)
			logrus.Infof("order %s line %s rejected: %v", order.ID, l.SKU, err)
			resolved = append(resolved, line)
			continue
		}
		prod, _ := p.store.ProductBySKU(l.SKU)
		t := p.store.CreateTask(TaskPick, l.SKU, l.Quantity, order.ID, prod.Zone, priority)
		line.Accepted = true
		line.TaskID = t.ID
		resolved = append(resolved, line)
		childTasks = append(childTasks, t.ID)
	}

	if err := p.store.AttachOrderLines(order.ID, resolved, childTasks); err != nil {
		return Order{}, err
	}
	if len(childTasks) == 0 {
		// Every line failed at reservation time: nothing will ever run,
		// so the order is terminally PartiallyFailed right away.
		if err := p.store.SetOrderState(order.ID, OrderPartiallyFailed); err != nil {
			return Order{}, err
		}
	}
	return p.store.OrderByID(order.ID)
}

// Reconcile recomputes the state of every open order from its child
// tasks: Fulfilled when all tasks Completed and no line was rejected,
// PartiallyFailed when all tasks are terminal and at least one failed (or
// a line was rejected at submission), InProgress otherwise. Returns the
// orders that reached a terminal state in this pass.
func (p *OrderProcessor) Reconcile() []Order {
	var settled []Order
	for _, o := range p.store.Orders() {
		if o.Terminal() || len(o.Lines) == 0 {
			continue
		}
		next, done := p.recompute(&o)
		if !done {
			continue
		}
		if err := p.store.SetOrderState(o.ID, next); err != nil {
			if !errors.Is(err, ErrConflict) {
				logrus.Errorf("reconcile order %s: %v", o.ID, err)
			}
			continue
		}
		o.State = next
		settled = append(settled, o)
		logrus.Infof("order %s settled as %s", o.ID, next)
	}
	return settled
}

// recompute derives the order's terminal state. done is false while any
// child task is still Pending/Assigned/InProgress.
func (p *OrderProcessor) recompute(o *Order) (OrderState, bool) {
	anyFailed := false
	for _, l := range o.Lines {
		if !l.Accepted {
			anyFailed = true
		}
	}
	for _, id := range o.ChildTasks {
		t, err := p.store.TaskByID(id)
		if err != nil {
			logrus.Errorf("order %s references unknown task %s", o.ID, id)
			anyFailed = true
			continue
		}
		if !t.Terminal() {
			return "", false
		}
		if t.State == TaskFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		return OrderPartiallyFailed, true
	}
	return OrderFulfilled, true
}

// Cancel cancels an open order: Pending child tasks are removed from the
// queue, Assigned/InProgress ones fail with a "cancelled" subreason, and
// reserved stock for undelivered lines is released. Terminal orders
// cannot be cancelled.
func (p *OrderProcessor) Cancel(orderID string) error {
	o, err := p.store.OrderByID(orderID)
	if err != nil {
		return err
	}
	if o.Terminal() {
		return fmt.Errorf("order %q is %s: %w", orderID, o.State, ErrConflict)
	}
	if err := p.store.SetOrderState(orderID, OrderCancelled); err != nil {
		return err
	}
	for _, id := range o.ChildTasks {
		t, terr := p.store.TaskByID(id)
		if terr != nil || t.Terminal() {
			continue
		}
		if cerr := p.store.CancelTask(id); cerr != nil {
			logrus.Errorf("cancel task %s of order %s: %v", id, orderID, cerr)
			continue
		}
		if t.Kind == TaskPick && t.SKU != "" {
			if rerr := p.store.ReleaseStock(t.SKU, t.Quantity); rerr != nil {
				logrus.Errorf("release stock for cancelled task %s: %v", id, rerr)
			}
		}
	}
	return nil
}

// reasonFor maps a reservation error to the per-line status reported to
// the caller.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "unknown_sku"
	default:
		return err.Error()
	}
}
