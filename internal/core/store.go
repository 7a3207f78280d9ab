package core

import "context"

// Store is the persistence boundary the engines work against. Each placement
// or retrieval runs top-to-leaf inside a single Tx, because the "which section
// has room" decision reads counters that must not move between the read and
// the matching write.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is one transaction against the backing store. Read methods return
// children in creation order (rows and sections additionally by their ordinal
// within the parent) so traversal order is stable across operations. Save
// methods mark an entity dirty; nothing is durable until Commit. A Tx that
// loses a concurrency conflict returns an error matching ErrStoreConflict.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	CountBoxes(ctx context.Context) (int, error)
	Boxes(ctx context.Context) ([]Box, error)
	RowsOf(ctx context.Context, boxID int64) ([]Row, error)
	SectionsOf(ctx context.Context, rowID int64) ([]Section, error)
	SectionByID(ctx context.Context, id int64) (*Section, error)
	CardsOf(ctx context.Context, sectionID int64) ([]CardRecord, error)

	// CardsByItem returns every record of the item together with its path,
	// in the same stable order placement traverses the hierarchy.
	CardsByItem(ctx context.Context, tcgID int64) ([]PlacedCard, error)

	// StockLevels aggregates quantity, record count and valuation per item.
	StockLevels(ctx context.Context) ([]StockLevel, error)

	CreateBox(ctx context.Context, b *Box) error
	CreateRow(ctx context.Context, r *Row) error
	CreateSection(ctx context.Context, s *Section) error
	CreateCard(ctx context.Context, c *CardRecord) error

	SaveBox(ctx context.Context, b *Box) error
	SaveRow(ctx context.Context, r *Row) error
	SaveSection(ctx context.Context, s *Section) error
	SaveCard(ctx context.Context, c *CardRecord) error

	DeleteCard(ctx context.Context, id int64) error
}
