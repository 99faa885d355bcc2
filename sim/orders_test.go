package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newOrderFixture(t *testing.T) (*Store, *OrderProcessor) {
	t.Helper()
	s := NewStore()
	s.AddZone(Zone{ID: "storage_a", Kind: ZoneStorage, Position: 2})
	s.AddZone(Zone{ID: "storage_b", Kind: ZoneStorage, Position: 4})
	s.AddProduct(Product{SKU: "A", Name: "Alpha", Quantity: 50, RestockThreshold: 10, RestockQuantity: 40, MaxCapacity: 100, Zone: "storage_a"})
	s.AddProduct(Product{SKU: "B", Name: "Beta", Quantity: 10, RestockThreshold: 5, RestockQuantity: 25, MaxCapacity: 50, Zone: "storage_b"})
	s.AddAGV(AGV{ID: "agv-a", Name: "A", Zone: "storage_a", Battery: 100})
	return s, NewOrderProcessor(s)
}

// === Submission ===

func TestOrderProcessor_Submit_EmptyLines_InvalidOrder(t *testing.T) {
	_, p := newOrderFixture(t)

	_, err := p.Submit("c1", nil, 0)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Submit with no lines: got %v, want ErrInvalidOrder", err)
	}
}

func TestOrderProcessor_Submit_NonPositiveQuantity_InvalidOrder(t *testing.T) {
	s, p := newOrderFixture(t)

	_, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 0}}, 0)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Submit with zero quantity: got %v, want ErrInvalidOrder", err)
	}
	// Whole-order rejection: nothing was created or reserved.
	assert.Empty(t, s.Orders())
	a, _ := s.ProductBySKU("A")
	assert.Equal(t, 50, a.Quantity)
}

func TestOrderProcessor_Submit_UnknownSKU_RejectsWholeOrder(t *testing.T) {
	// GIVEN an order with one valid and one unknown SKU
	s, p := newOrderFixture(t)

	// WHEN submitted
	_, err := p.Submit("c1", []LineRequest{
		{SKU: "A", Quantity: 3},
		{SKU: "missing", Quantity: 1},
	}, 0)

	// THEN the shape error rejects the whole order before any state change
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("Submit with unknown SKU: got %v, want ErrInvalidOrder", err)
	}
	a, _ := s.ProductBySKU("A")
	assert.Equal(t, 50, a.Quantity, "no stock may be reserved for a rejected order")
	assert.Empty(t, s.LiveTasks())
}

func TestOrderProcessor_Submit_AllLinesCovered_ReservesAndSpawnsTasks(t *testing.T) {
	// GIVEN stock A=50, B=10
	s, p := newOrderFixture(t)

	// WHEN an order for (A,3) and (B,2) is submitted at priority 1
	order, err := p.Submit("c1", []LineRequest{
		{SKU: "A", Quantity: 3},
		{SKU: "B", Quantity: 2},
	}, 1)

	// THEN both lines are accepted, stock is reserved, and one pick task
	// per line targets the product's zone
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assert.Equal(t, OrderInProgress, order.State)
	assert.Len(t, order.Lines, 2)
	assert.Len(t, order.ChildTasks, 2)
	for _, l := range order.Lines {
		assert.True(t, l.Accepted, "line %s should be accepted", l.SKU)
		assert.NotEmpty(t, l.TaskID)
	}

	a, _ := s.ProductBySKU("A")
	b, _ := s.ProductBySKU("B")
	assert.Equal(t, 47, a.Quantity)
	assert.Equal(t, 8, b.Quantity)

	tasks := s.LiveTasks()
	assert.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, TaskPick, task.Kind)
		assert.Equal(t, order.ID, task.OrderID)
		assert.Equal(t, 1, task.Priority)
	}
}

func TestOrderProcessor_Submit_InsufficientLine_FailsAlone(t *testing.T) {
	// GIVEN stock B=10
	s, p := newOrderFixture(t)

	// WHEN an order asks for (A,3) and (B,100)
	order, err := p.Submit("c1", []LineRequest{
		{SKU: "A", Quantity: 3},
		{SKU: "B", Quantity: 100},
	}, 0)

	// THEN the A line proceeds and the B line is marked undeliverable
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assert.Equal(t, OrderInProgress, order.State)
	assert.True(t, order.Lines[0].Accepted)
	assert.False(t, order.Lines[1].Accepted)
	assert.Equal(t, "insufficient_stock", order.Lines[1].Reason)
	assert.Len(t, order.ChildTasks, 1)

	b, _ := s.ProductBySKU("B")
	assert.Equal(t, 10, b.Quantity, "failed line must not touch stock")
}

func TestOrderProcessor_Submit_AllLinesRejected_ImmediatelyPartiallyFailed(t *testing.T) {
	_, p := newOrderFixture(t)

	order, err := p.Submit("c1", []LineRequest{{SKU: "B", Quantity: 100}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assert.Equal(t, OrderPartiallyFailed, order.State)
	assert.Empty(t, order.ChildTasks)
}

// === Reconciliation ===

func completeAll(t *testing.T, s *Store, agvID string, taskIDs []string) {
	t.Helper()
	for _, id := range taskIDs {
		mustAssignStart(t, s, id, agvID)
		if err := s.CompleteTask(id); err != nil {
			t.Fatalf("CompleteTask(%s): %v", id, err)
		}
	}
}

func TestOrderProcessor_Reconcile_AllTasksCompleted_Fulfilled(t *testing.T) {
	// GIVEN an order whose child tasks all completed
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks)

	// WHEN reconciled
	settled := p.Reconcile()

	// THEN the order settles as Fulfilled, exactly once
	if len(settled) != 1 {
		t.Fatalf("Reconcile: got %d settled orders, want 1", len(settled))
	}
	assert.Equal(t, OrderFulfilled, settled[0].State)
	assert.Empty(t, p.Reconcile(), "a settled order must not settle twice")
}

func TestOrderProcessor_Reconcile_OpenTasks_NotSettled(t *testing.T) {
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}, {SKU: "B", Quantity: 2}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks[:1])

	settled := p.Reconcile()
	assert.Empty(t, settled, "an order with a live task must stay open")
	got, _ := s.OrderByID(order.ID)
	assert.Equal(t, OrderInProgress, got.State)
}

func TestOrderProcessor_Reconcile_FailedTask_PartiallyFailed(t *testing.T) {
	// GIVEN an order with one completed and one terminally failed task
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}, {SKU: "B", Quantity: 2}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks[:1])
	mustAssignStart(t, s, order.ChildTasks[1], "agv-a")
	if _, err := s.FailAttempt(order.ChildTasks[1], "dropped load", 0); err != nil {
		t.Fatalf("FailAttempt: %v", err)
	}

	// WHEN reconciled
	settled := p.Reconcile()

	// THEN the order settles as PartiallyFailed
	if len(settled) != 1 {
		t.Fatalf("Reconcile: got %d settled orders, want 1", len(settled))
	}
	assert.Equal(t, OrderPartiallyFailed, settled[0].State)
}

func TestOrderProcessor_Reconcile_RejectedLine_TaintsOrder(t *testing.T) {
	// GIVEN an order with one rejected line and one completed task
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}, {SKU: "B", Quantity: 100}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks)

	// WHEN reconciled
	settled := p.Reconcile()

	// THEN even with every task completed the order is PartiallyFailed
	if len(settled) != 1 {
		t.Fatalf("Reconcile: got %d settled orders, want 1", len(settled))
	}
	assert.Equal(t, OrderPartiallyFailed, settled[0].State)
}

// === Cancellation ===

func TestOrderProcessor_Cancel_OpenOrder_CancelsTasksAndReleasesStock(t *testing.T) {
	// GIVEN an open order with two pending pick tasks
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}, {SKU: "B", Quantity: 2}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// WHEN cancelled
	if err := p.Cancel(order.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// THEN the order is Cancelled, tasks left the queue, and stock returned
	got, _ := s.OrderByID(order.ID)
	assert.Equal(t, OrderCancelled, got.State)
	assert.Empty(t, s.LiveTasks())
	a, _ := s.ProductBySKU("A")
	b, _ := s.ProductBySKU("B")
	assert.Equal(t, 50, a.Quantity)
	assert.Equal(t, 10, b.Quantity)
}

func TestOrderProcessor_Cancel_TerminalOrder_Conflict(t *testing.T) {
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks)
	p.Reconcile()

	err = p.Cancel(order.ID)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Cancel terminal order: got %v, want ErrConflict", err)
	}
}

func TestOrderProcessor_Cancel_CompletedTasksKeepTheirStock(t *testing.T) {
	// GIVEN an order where one pick already completed (units left the shelf)
	s, p := newOrderFixture(t)
	order, err := p.Submit("c1", []LineRequest{{SKU: "A", Quantity: 3}, {SKU: "B", Quantity: 2}}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	completeAll(t, s, "agv-a", order.ChildTasks[:1])

	// WHEN cancelled
	if err := p.Cancel(order.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// THEN only the unpicked line's reservation returns
	a, _ := s.ProductBySKU("A")
	b, _ := s.ProductBySKU("B")
	assert.Equal(t, 47, a.Quantity, "picked units are gone for good")
	assert.Equal(t, 10, b.Quantity, "unpicked reservation is released")
}
