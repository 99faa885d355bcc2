// Package persist stores the full warehouse record set in SQLite so a
// restarted process reloads to the last committed tick. The snapshot is
// written whole (delete + insert inside one transaction): the record set
// is small and a partial write must never be observable.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warehouse-sim/warehouse-sim/sim"
)

type zoneRow struct {
	ID       string `gorm:"primaryKey"`
	Kind     string
	Position int
}

type productRow struct {
	SKU              string `gorm:"primaryKey"`
	Name             string
	Quantity         int
	RestockThreshold int
	RestockQuantity  int
	MaxCapacity      int
	Zone             string
	Version          int64
}

type agvRow struct {
	ID      string `gorm:"primaryKey"`
	Name    string
	Status  string
	Zone    string
	Battery float64
	Version int64
}

type taskRow struct {
	ID          string `gorm:"primaryKey"`
	Kind        string
	SKU         string
	Quantity    int
	OrderID     string
	Zone        string
	Priority    int
	State       string
	AssignedAGV string
	Attempts    int
	FailReason  string
	Seq         int64
	Version     int64
}

type orderRow struct {
	ID         string `gorm:"primaryKey"`
	CustomerID string
	State      string
	Lines      string // JSON-encoded []sim.OrderLine
	ChildTasks string // JSON-encoded []string
	Version    int64
}

type metaRow struct {
	Key  string `gorm:"primaryKey"`
	Tick int64
}

// DB wraps the snapshot database.
type DB struct {
	db *gorm.DB
}

// Open opens (or creates) the snapshot database at path and migrates the
// schema.
func Open(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&zoneRow{}, &productRow{}, &agvRow{}, &taskRow{}, &orderRow{}, &metaRow{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Save replaces the stored snapshot with the given record set. archived
// carries terminal tasks still needed for order reconciliation.
func (d *DB) Save(snap *sim.Snapshot, archived []sim.Task) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&zoneRow{}, &productRow{}, &agvRow{}, &taskRow{}, &orderRow{}, &metaRow{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		for _, z := range snap.Zones {
			if err := tx.Create(&zoneRow{ID: z.ID, Kind: string(z.Kind), Position: z.Position}).Error; err != nil {
				return err
			}
		}
		for _, p := range snap.Products {
			row := productRow{
				SKU: p.SKU, Name: p.Name, Quantity: p.Quantity,
				RestockThreshold: p.RestockThreshold, RestockQuantity: p.RestockQuantity,
				MaxCapacity: p.MaxCapacity, Zone: p.Zone, Version: p.Version,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, a := range snap.AGVs {
			row := agvRow{ID: a.ID, Name: a.Name, Status: string(a.Status), Zone: a.Zone, Battery: a.Battery, Version: a.Version}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		tasks := append(append([]sim.Task(nil), snap.Tasks...), archived...)
		for _, t := range tasks {
			row := taskRow{
				ID: t.ID, Kind: string(t.Kind), SKU: t.SKU, Quantity: t.Quantity,
				OrderID: t.OrderID, Zone: t.Zone, Priority: t.Priority, State: string(t.State),
				AssignedAGV: t.AssignedAGV, Attempts: t.Attempts, FailReason: t.FailReason,
				Seq: t.Seq, Version: t.Version,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, o := range snap.Orders {
			lines, err := json.Marshal(o.Lines)
			if err != nil {
				return err
			}
			children, err := json.Marshal(o.ChildTasks)
			if err != nil {
				return err
			}
			row := orderRow{ID: o.ID, CustomerID: o.CustomerID, State: string(o.State), Lines: string(lines), ChildTasks: string(children), Version: o.Version}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return tx.Create(&metaRow{Key: "tick", Tick: snap.Tick}).Error
	})
}

// Load restores the stored snapshot into an empty store and returns the
// persisted tick. found is false when no snapshot was ever saved.
//
// In-flight work does not survive a restart: Assigned/InProgress tasks
// come back Pending (their completion events lived only in memory) and
// their AGVs come back Idle, so the dispatcher re-assigns them on the
// next tick.
func (d *DB) Load(store *sim.Store) (tick int64, found bool, err error) {
	var meta metaRow
	if err := d.db.First(&meta, "key = ?", "tick").Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read snapshot tick: %w", err)
	}

	var zones []zoneRow
	if err := d.db.Find(&zones).Error; err != nil {
		return 0, false, err
	}
	for _, z := range zones {
		store.AddZone(sim.Zone{ID: z.ID, Kind: sim.ZoneKind(z.Kind), Position: z.Position})
	}

	var products []productRow
	if err := d.db.Find(&products).Error; err != nil {
		return 0, false, err
	}
	for _, p := range products {
		store.AddProduct(sim.Product{
			SKU: p.SKU, Name: p.Name, Quantity: p.Quantity,
			RestockThreshold: p.RestockThreshold, RestockQuantity: p.RestockQuantity,
			MaxCapacity: p.MaxCapacity, Zone: p.Zone, Version: p.Version,
		})
	}

	var agvs []agvRow
	if err := d.db.Find(&agvs).Error; err != nil {
		return 0, false, err
	}
	for _, a := range agvs {
		store.AddAGV(sim.AGV{ID: a.ID, Name: a.Name, Zone: a.Zone, Battery: a.Battery, Version: a.Version})
	}

	var tasks []taskRow
	if err := d.db.Find(&tasks).Error; err != nil {
		return 0, false, err
	}
	for _, t := range tasks {
		state := sim.TaskState(t.State)
		assigned := t.AssignedAGV
		if state == sim.TaskAssigned || state == sim.TaskInProgress {
			state = sim.TaskPending
			assigned = ""
		}
		store.RestoreTask(sim.Task{
			ID: t.ID, Kind: sim.TaskKind(t.Kind), SKU: t.SKU, Quantity: t.Quantity,
			OrderID: t.OrderID, Zone: t.Zone, Priority: t.Priority, State: state,
			AssignedAGV: assigned, Attempts: t.Attempts, FailReason: t.FailReason,
			Seq: t.Seq, Version: t.Version,
		})
	}

	var orders []orderRow
	if err := d.db.Find(&orders).Error; err != nil {
		return 0, false, err
	}
	for _, o := range orders {
		var lines []sim.OrderLine
		if err := json.Unmarshal([]byte(o.Lines), &lines); err != nil {
			return 0, false, fmt.Errorf("decode lines of order %s: %w", o.ID, err)
		}
		var children []string
		if err := json.Unmarshal([]byte(o.ChildTasks), &children); err != nil {
			return 0, false, fmt.Errorf("decode child tasks of order %s: %w", o.ID, err)
		}
		store.RestoreOrder(sim.Order{
			ID: o.ID, CustomerID: o.CustomerID, State: sim.OrderState(o.State),
			Lines: lines, ChildTasks: children, Version: o.Version,
		})
	}

	return meta.Tick, true, nil
}
