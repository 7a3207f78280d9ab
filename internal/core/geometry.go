package core

import "fmt"

// Geometry carries every fan-out and capacity constant of the storage
// hierarchy. The hierarchy shape is fixed (Box > Row > Section > CardRecord)
// but all ceilings and the rack addressing radices are configuration, so a
// deployment with deeper sections or wider racks only changes this table.
type Geometry struct {
	MaxRowsPerBox         int `mapstructure:"max_rows_per_box"`
	MaxSectionsPerRow     int `mapstructure:"max_sections_per_row"`
	MaxCardsPerSection    int `mapstructure:"max_cards_per_section"`
	MaxQuantityPerSection int `mapstructure:"max_quantity_per_section"`
	MaxQuantityPerCard    int `mapstructure:"max_quantity_per_card"`

	BoxesPerColumn  int `mapstructure:"boxes_per_column"`
	ColumnsPerShelf int `mapstructure:"columns_per_shelf"`
	ShelvesPerRack  int `mapstructure:"shelves_per_rack"`
}

// DefaultGeometry returns the constants the physical setup was built around.
func DefaultGeometry() Geometry {
	return Geometry{
		MaxRowsPerBox:         5,
		MaxSectionsPerRow:     10,
		MaxCardsPerSection:    12,
		MaxQuantityPerSection: 144,
		MaxQuantityPerCard:    12,
		BoxesPerColumn:        3,
		ColumnsPerShelf:       4,
		ShelvesPerRack:        3,
	}
}

func (g Geometry) Validate() error {
	fields := map[string]int{
		"max_rows_per_box":         g.MaxRowsPerBox,
		"max_sections_per_row":     g.MaxSectionsPerRow,
		"max_cards_per_section":    g.MaxCardsPerSection,
		"max_quantity_per_section": g.MaxQuantityPerSection,
		"max_quantity_per_card":    g.MaxQuantityPerCard,
		"boxes_per_column":         g.BoxesPerColumn,
		"columns_per_shelf":        g.ColumnsPerShelf,
		"shelves_per_rack":         g.ShelvesPerRack,
	}
	for name, v := range fields {
		if v < 1 {
			return fmt.Errorf("geometry: %s must be at least 1, got %d", name, v)
		}
	}
	if g.MaxQuantityPerCard > g.MaxQuantityPerSection {
		return fmt.Errorf("geometry: max_quantity_per_card (%d) cannot exceed max_quantity_per_section (%d)",
			g.MaxQuantityPerCard, g.MaxQuantityPerSection)
	}
	return nil
}

// Address is the physical spot of a box on the racks, 1-indexed at every
// level.
type Address struct {
	Rack   int
	Shelf  int
	Column int
	Box    int
}

func (a Address) String() string {
	return fmt.Sprintf("Rack %d, Shelf %d, Column %d, Box %d", a.Rack, a.Shelf, a.Column, a.Box)
}

// Location is the short form stored alongside the box name.
func (a Address) Location() string {
	return fmt.Sprintf("Shelf %d, Column %d", a.Shelf, a.Column)
}

// BoxAddress maps the ordinal count of boxes already created to the physical
// address of the next box, by fixed-radix decomposition over the rack
// geometry. Pure and total over all non-negative ordinals: the same ordinal
// always yields the same address.
func (g Geometry) BoxAddress(ordinal int) Address {
	boxesPerShelf := g.BoxesPerColumn * g.ColumnsPerShelf
	boxesPerRack := boxesPerShelf * g.ShelvesPerRack

	return Address{
		Rack:   ordinal/boxesPerRack + 1,
		Shelf:  (ordinal%boxesPerRack)/boxesPerShelf + 1,
		Column: (ordinal%boxesPerRack)%boxesPerShelf/g.BoxesPerColumn + 1,
		Box:    (ordinal%boxesPerRack)%boxesPerShelf%g.BoxesPerColumn + 1,
	}
}

// SectionResidual is how many more units the section can hold.
func (g Geometry) SectionResidual(s Section) int {
	return g.MaxQuantityPerSection - s.CurrentQuantity
}

// SectionOpen reports whether the section can accept a brand-new record of at
// least one unit: a free record slot and residual quantity.
func (g Geometry) SectionOpen(s Section) bool {
	return s.CardCount < g.MaxCardsPerSection && g.SectionResidual(s) >= 1
}

// RowOpen reports whether the row is under its section fan-out ceiling.
func (g Geometry) RowOpen(r Row) bool {
	return r.SectionCount < g.MaxSectionsPerRow
}

// BoxOpen reports whether the box is under its row fan-out ceiling.
func (g Geometry) BoxOpen(b Box) bool {
	return b.RowCount < g.MaxRowsPerBox
}

// CardResidual is how many more units the record itself can absorb before the
// per-record ceiling forces a spillover split.
func (g Geometry) CardResidual(c CardRecord) int {
	return g.MaxQuantityPerCard - c.Quantity
}
