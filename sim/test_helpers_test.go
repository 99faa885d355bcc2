package sim

import "testing"

// newTestStore builds a store with a compact three-zone layout, one
// product, and two AGVs parked at opposite ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.AddZone(Zone{ID: "dock", Kind: ZoneDock, Position: 0})
	s.AddZone(Zone{ID: "shelf", Kind: ZoneStorage, Position: 3})
	s.AddZone(Zone{ID: "station", Kind: ZoneWorkstation, Position: 6})
	s.AddProduct(Product{SKU: "X", Name: "Widget", Quantity: 20, RestockThreshold: 5, RestockQuantity: 30, MaxCapacity: 50, Zone: "shelf"})
	s.AddAGV(AGV{ID: "agv-a", Name: "A", Zone: "dock", Battery: 100})
	s.AddAGV(AGV{ID: "agv-b", Name: "B", Zone: "station", Battery: 100})
	return s
}

// mustCreateTask creates a Pending task at the shelf zone.
func mustCreateTask(t *testing.T, s *Store, kind TaskKind, priority int) Task {
	t.Helper()
	return s.CreateTask(kind, "X", 5, "", "shelf", priority)
}

// mustAssignStart drives a task through Assigned into InProgress.
func mustAssignStart(t *testing.T, s *Store, taskID, agvID string) {
	t.Helper()
	if err := s.AssignTask(taskID, agvID); err != nil {
		t.Fatalf("AssignTask(%s, %s): %v", taskID, agvID, err)
	}
	if err := s.StartTask(taskID); err != nil {
		t.Fatalf("StartTask(%s): %v", taskID, err)
	}
}
