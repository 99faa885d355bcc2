package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-sim/warehouse-sim/sim"
)

func seedStore(t *testing.T) *sim.Store {
	t.Helper()
	s := sim.NewStore()
	s.AddZone(sim.Zone{ID: "shelf", Kind: sim.ZoneStorage, Position: 2})
	s.AddZone(sim.Zone{ID: "dock", Kind: sim.ZoneDock, Position: 0})
	s.AddProduct(sim.Product{SKU: "A", Name: "Alpha", Quantity: 40, RestockThreshold: 10, RestockQuantity: 30, MaxCapacity: 80, Zone: "shelf"})
	s.AddAGV(sim.AGV{ID: "agv-a", Name: "A", Zone: "dock", Battery: 90})
	return s
}

func TestDB_Load_NoSnapshot_NotFound(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)

	_, found, err := db.Load(sim.NewStore())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDB_SaveLoad_RoundTripsRecordSet(t *testing.T) {
	// GIVEN a store with an order, a completed task, and a reservation
	s := seedStore(t)
	proc := sim.NewOrderProcessor(s)
	order, err := proc.Submit("c1", []sim.LineRequest{{SKU: "A", Quantity: 5}}, 0)
	require.NoError(t, err)
	taskID := order.ChildTasks[0]
	require.NoError(t, s.AssignTask(taskID, "agv-a"))
	require.NoError(t, s.StartTask(taskID))
	require.NoError(t, s.CompleteTask(taskID))

	db, err := Open(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)

	// WHEN saved at tick 37 and loaded into a fresh store
	require.NoError(t, db.Save(s.Snapshot(37), s.ArchivedTasks()))
	restored := sim.NewStore()
	tick, found, err := db.Load(restored)
	require.NoError(t, err)
	require.True(t, found)

	// THEN the tick and every record survive
	assert.Equal(t, int64(37), tick)
	assert.Equal(t, s.Products(), restored.Products())
	assert.Equal(t, s.Zones(), restored.Zones())
	assert.Equal(t, s.Orders(), restored.Orders())

	task, err := restored.TaskByID(taskID)
	require.NoError(t, err)
	assert.Equal(t, sim.TaskCompleted, task.State)

	agv, err := restored.AGVByID("agv-a")
	require.NoError(t, err)
	assert.Equal(t, "shelf", agv.Zone, "AGV position survives the round trip")
}

func TestDB_Load_DemotesInFlightTasksToPending(t *testing.T) {
	// GIVEN a snapshot taken while a task was in flight
	s := seedStore(t)
	task := s.CreateTask(sim.TaskPick, "A", 2, "", "shelf", 0)
	require.NoError(t, s.AssignTask(task.ID, "agv-a"))
	require.NoError(t, s.StartTask(task.ID))

	db, err := Open(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	require.NoError(t, db.Save(s.Snapshot(5), s.ArchivedTasks()))

	// WHEN loaded after a restart
	restored := sim.NewStore()
	_, found, err := db.Load(restored)
	require.NoError(t, err)
	require.True(t, found)

	// THEN the in-flight task is Pending again with no AGV reference, and
	// its AGV is Idle, ready for re-dispatch
	got, err := restored.TaskByID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, sim.TaskPending, got.State)
	assert.Empty(t, got.AssignedAGV)

	agv, err := restored.AGVByID("agv-a")
	require.NoError(t, err)
	assert.Equal(t, sim.AGVIdle, agv.Status)
	assert.NoError(t, restored.CheckFleetInvariant())
}

func TestDB_Save_ReplacesPreviousSnapshot(t *testing.T) {
	// GIVEN two saves at different ticks
	s := seedStore(t)
	db, err := Open(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	require.NoError(t, db.Save(s.Snapshot(1), nil))

	require.NoError(t, s.ReserveStock("A", 10))
	require.NoError(t, db.Save(s.Snapshot(2), nil))

	// WHEN loaded
	restored := sim.NewStore()
	tick, found, err := db.Load(restored)
	require.NoError(t, err)
	require.True(t, found)

	// THEN only the latest snapshot exists
	assert.Equal(t, int64(2), tick)
	p, err := restored.ProductBySKU("A")
	require.NoError(t, err)
	assert.Equal(t, 30, p.Quantity)
}
