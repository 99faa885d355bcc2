package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warehouse-sim/warehouse-sim/sim"
)

// Layout describes the physical warehouse: zones, stocked products, and
// the AGV fleet. Loaded once at startup into the state store.
type Layout struct {
	Name     string        `yaml:"name"`
	Zones    []sim.Zone    `yaml:"zones"`
	Products []sim.Product `yaml:"products"`
	AGVs     []sim.AGV     `yaml:"agvs"`
}

// LoadLayout reads and validates a warehouse layout YAML file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return &layout, nil
}

// Validate checks referential integrity of the layout: unique ids,
// non-negative stock, and every product/AGV placed in a declared zone.
func (l *Layout) Validate() error {
	if len(l.Zones) == 0 {
		return fmt.Errorf("no zones declared")
	}
	zones := make(map[string]bool, len(l.Zones))
	for _, z := range l.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone with empty id")
		}
		if zones[z.ID] {
			return fmt.Errorf("duplicate zone %q", z.ID)
		}
		zones[z.ID] = true
	}
	skus := make(map[string]bool, len(l.Products))
	for _, p := range l.Products {
		switch {
		case p.SKU == "":
			return fmt.Errorf("product with empty sku")
		case skus[p.SKU]:
			return fmt.Errorf("duplicate sku %q", p.SKU)
		case p.Quantity < 0:
			return fmt.Errorf("product %q has negative quantity", p.SKU)
		case p.RestockQuantity <= 0:
			return fmt.Errorf("product %q needs positive restock_quantity", p.SKU)
		case !zones[p.Zone]:
			return fmt.Errorf("product %q placed in unknown zone %q", p.SKU, p.Zone)
		}
		skus[p.SKU] = true
	}
	ids := make(map[string]bool, len(l.AGVs))
	for _, a := range l.AGVs {
		switch {
		case a.ID == "":
			return fmt.Errorf("agv with empty id")
		case ids[a.ID]:
			return fmt.Errorf("duplicate agv %q", a.ID)
		case !zones[a.Zone]:
			return fmt.Errorf("agv %q placed in unknown zone %q", a.ID, a.Zone)
		}
		ids[a.ID] = true
	}
	return nil
}

// Apply populates a store with the layout's records.
func (l *Layout) Apply(store *sim.Store) {
	for _, z := range l.Zones {
		store.AddZone(z)
	}
	for _, p := range l.Products {
		store.AddProduct(p)
	}
	for _, a := range l.AGVs {
		store.AddAGV(a)
	}
}
