package sim

import "github.com/sirupsen/logrus"

// InventoryMonitor watches stock levels and raises Restock tasks when a
// product drops below its restock threshold. Priority is derived from
// severity: quantity minus threshold, so deeper shortfalls dispatch first.
type InventoryMonitor struct {
	store *Store
	queue *TaskQueue
}

// NewInventoryMonitor creates an InventoryMonitor.
func NewInventoryMonitor(store *Store, queue *TaskQueue) *InventoryMonitor {
	if store == nil || queue == nil {
		panic("NewInventoryMonitor: store and queue must not be nil")
	}
	return &InventoryMonitor{store: store, queue: queue}
}

// CheckThresholds sweeps every product and enqueues a Restock task for
// each SKU below threshold that has no open Restock task yet. Idempotent:
// calling it twice without an intervening state change enqueues nothing
// the second time. Returns the tasks created by this sweep.
func (m *InventoryMonitor) CheckThresholds() []Task {
	var created []Task
	for _, p := range m.store.Products() {
		if p.Quantity >= p.RestockThreshold {
			continue
		}
		if m.queue.OpenTaskFor(TaskRestock, p.SKU) {
			continue
		}
		t := m.store.CreateTask(TaskRestock, p.SKU, p.RestockQuantity, "", p.Zone, p.Quantity-p.RestockThreshold)
		logrus.Infof("<< Restock raised for %s: quantity %d below threshold %d (priority %d)",
			p.SKU, p.Quantity, p.RestockThreshold, t.Priority)
		created = append(created, t)
	}
	return created
}
