package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Box is the top level of the storage hierarchy: one physical card box sitting
// in a fixed spot on a rack. Boxes are created on demand when every existing
// box is full and are never destroyed in normal operation.
type Box struct {
	ID        int64
	Name      string // e.g. "Rack 1, Shelf 2, Column 3, Box 1"
	Location  string // e.g. "Shelf 2, Column 3"
	RowCount  int
	CreatedAt time.Time
}

// Row is one shelf-row inside a box.
type Row struct {
	ID           int64
	BoxID        int64
	Ordinal      int // 1-based position inside the box
	SectionCount int
}

// Section is a sub-compartment of a row and the leaf container for card
// records. CardCount and CurrentQuantity are denormalized counters maintained
// in the same transaction as the structural change they reflect.
type Section struct {
	ID              int64
	RowID           int64
	Ordinal         int // 1-based position inside the row
	CardCount       int
	CurrentQuantity int
}

// CardRecord is one stocked quantity of one SKU in one section. A single SKU
// may be split across many records when a quantity exceeds the per-record
// ceiling (spillover).
type CardRecord struct {
	ID        int64
	SectionID int64
	TCGID     int64
	Name      string
	SetName   string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Path identifies where a record physically lives, down to the section.
type Path struct {
	BoxID      int64
	BoxName    string
	RowID      int64
	RowOrd     int
	SectionID  int64
	SectionOrd int
}

func (p Path) String() string {
	return fmt.Sprintf("%s / row %d / section %d", p.BoxName, p.RowOrd, p.SectionOrd)
}

// PlacedCard pairs a card record with its physical path. Stores return these
// in stable traversal order (box creation order, then row, section and record
// ordinals) so placement and retrieval walk the hierarchy identically.
type PlacedCard struct {
	Card CardRecord
	Path Path
}

// CardInput is one inbound stock request, typically a single import row.
type CardInput struct {
	TCGID     int64
	Name      string
	SetName   string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Placement records one chunk of an insert landing in one section.
type Placement struct {
	Path     Path
	RecordID int64
	Quantity int
	Merged   bool // true when the chunk was merged into an existing record
}

// PlacementResult reports where an inbound quantity ended up. The quantities
// of all placements always sum to the requested quantity.
type PlacementResult struct {
	TCGID        int64
	Requested    int
	Placements   []Placement
	BoxesCreated int
}

// Placed returns the total quantity covered by the placements.
func (r *PlacementResult) Placed() int {
	total := 0
	for _, p := range r.Placements {
		total += p.Quantity
	}
	return total
}

// PullLocation is one section a fulfillment pulled cards from.
type PullLocation struct {
	Path     Path
	Quantity int
}

// FulfillmentResult reports what a retrieval collected and from where.
// Partial is set when total stock was insufficient; that is a valid outcome,
// not an error.
type FulfillmentResult struct {
	TCGID     int64
	Name      string
	SetName   string
	Requested int
	Collected int
	Partial   bool
	Locations []PullLocation
}

// Shortfall is the quantity the fulfillment could not collect.
func (r *FulfillmentResult) Shortfall() int {
	return r.Requested - r.Collected
}

// LocationsString renders the pull locations for the report CSV,
// e.g. "Rack 1, Shelf 1, Column 1, Box 1 / row 1 / section 1 x12; ...".
func (r *FulfillmentResult) LocationsString() string {
	parts := make([]string, 0, len(r.Locations))
	for _, loc := range r.Locations {
		parts = append(parts, fmt.Sprintf("%s x%d", loc.Path, loc.Quantity))
	}
	return strings.Join(parts, "; ")
}

// StockLevel is one line of the per-item stock summary.
type StockLevel struct {
	TCGID    int64
	Name     string
	SetName  string
	Quantity int
	Records  int
	Value    decimal.Decimal // sum of quantity x unit price across records
}
