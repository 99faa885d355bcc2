package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LoadDemoData seeds a store with the demo warehouse: five products
// across three storage zones, docks, workstations, a charging station,
// and a three-vehicle fleet.
func LoadDemoData(store *Store) {
	zones := []Zone{
		{ID: "receiving", Kind: ZoneDock, Position: 0},
		{ID: "storage_a", Kind: ZoneStorage, Position: 2},
		{ID: "storage_b", Kind: ZoneStorage, Position: 4},
		{ID: "storage_c", Kind: ZoneStorage, Position: 6},
		{ID: "picking_station", Kind: ZoneWorkstation, Position: 8},
		{ID: "packing_station", Kind: ZoneWorkstation, Position: 9},
		{ID: "shipping", Kind: ZoneDock, Position: 10},
		{ID: "charging_station", Kind: ZoneCharging, Position: 5},
	}
	for _, z := range zones {
		store.AddZone(z)
	}

	products := []Product{
		{SKU: "P001", Name: "Smartphone", Quantity: 50, RestockThreshold: 10, RestockQuantity: 40, MaxCapacity: 100, Zone: "storage_a"},
		{SKU: "P002", Name: "Laptop", Quantity: 20, RestockThreshold: 5, RestockQuantity: 25, MaxCapacity: 50, Zone: "storage_a"},
		{SKU: "P003", Name: "Tablet", Quantity: 30, RestockThreshold: 8, RestockQuantity: 40, MaxCapacity: 80, Zone: "storage_b"},
		{SKU: "P004", Name: "Headphones", Quantity: 100, RestockThreshold: 20, RestockQuantity: 80, MaxCapacity: 200, Zone: "storage_b"},
		{SKU: "P005", Name: "Smartwatch", Quantity: 15, RestockThreshold: 5, RestockQuantity: 30, MaxCapacity: 50, Zone: "storage_c"},
	}
	for _, p := range products {
		store.AddProduct(p)
	}

	agvs := []AGV{
		{ID: "AGV001", Name: "Picker Bot 1", Zone: "charging_station", Battery: 100.0},
		{ID: "AGV002", Name: "Picker Bot 2", Zone: "storage_a", Battery: 85.0},
		{ID: "AGV003", Name: "Heavy Lifter 1", Zone: "receiving", Battery: 90.0},
	}
	for _, a := range agvs {
		store.AddAGV(a)
	}
}

// SeedDemoOrders submits n randomly composed orders against the seeded
// catalog, drawing from the demo RNG subsystem so one seed always yields
// the same workload. Intended for use before the first tick.
func (c *Coordinator) SeedDemoOrders(n int) []Order {
	c.mu.Lock()
	rng := c.rng.ForSubsystem(SubsystemDemo)
	c.mu.Unlock()

	products := c.store.Products()
	if len(products) == 0 {
		return nil
	}
	out := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		nLines := 1 + rng.Intn(3)
		if nLines > len(products) {
			nLines = len(products)
		}
		// Draw distinct SKUs; Products() is SKU-sorted, so the picks
		// depend only on the RNG stream.
		perm := rng.Perm(len(products))
		lines := make([]LineRequest, 0, nLines)
		for _, idx := range perm[:nLines] {
			lines = append(lines, LineRequest{
				SKU:      products[idx].SKU,
				Quantity: 1 + rng.Intn(5),
			})
		}
		o, err := c.SubmitOrder(fmt.Sprintf("demo-customer-%d", i+1), lines, rng.Intn(3))
		if err != nil {
			logrus.Warnf("demo order %d rejected: %v", i+1, err)
			continue
		}
		out = append(out, o)
	}
	return out
}
