package core_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/the-muppet/nice-rack/internal/core"
	"github.com/the-muppet/nice-rack/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tightGeometry keeps fan-outs small so tests can fill boxes quickly. The
// section quantity ceiling equals the per-record ceiling (12), so every
// spillover split also moves to the next section.
func tightGeometry() core.Geometry {
	return core.Geometry{
		MaxRowsPerBox:         2,
		MaxSectionsPerRow:     2,
		MaxCardsPerSection:    3,
		MaxQuantityPerSection: 12,
		MaxQuantityPerCard:    12,
		BoxesPerColumn:        3,
		ColumnsPerShelf:       4,
		ShelvesPerRack:        3,
	}
}

func newPlacer(t *testing.T, geo core.Geometry) (core.PlacementService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return core.NewPlacementService(store, geo, testLogger(), 1), store
}

// verifyInvariants walks the whole hierarchy and checks every capacity
// ceiling and that every denormalized counter matches the actual children.
func verifyInvariants(t *testing.T, store core.Store, geo core.Geometry) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	boxes, err := tx.Boxes(ctx)
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	for _, box := range boxes {
		rows, err := tx.RowsOf(ctx, box.ID)
		if err != nil {
			t.Fatalf("RowsOf failed: %v", err)
		}
		if box.RowCount != len(rows) {
			t.Errorf("box %d row_count = %d, actual rows = %d", box.ID, box.RowCount, len(rows))
		}
		if len(rows) > geo.MaxRowsPerBox {
			t.Errorf("box %d has %d rows, ceiling is %d", box.ID, len(rows), geo.MaxRowsPerBox)
		}
		for _, row := range rows {
			sections, err := tx.SectionsOf(ctx, row.ID)
			if err != nil {
				t.Fatalf("SectionsOf failed: %v", err)
			}
			if row.SectionCount != len(sections) {
				t.Errorf("row %d section_count = %d, actual sections = %d", row.ID, row.SectionCount, len(sections))
			}
			if len(sections) > geo.MaxSectionsPerRow {
				t.Errorf("row %d has %d sections, ceiling is %d", row.ID, len(sections), geo.MaxSectionsPerRow)
			}
			for _, sec := range sections {
				cards, err := tx.CardsOf(ctx, sec.ID)
				if err != nil {
					t.Fatalf("CardsOf failed: %v", err)
				}
				if sec.CardCount != len(cards) {
					t.Errorf("section %d card_count = %d, actual records = %d", sec.ID, sec.CardCount, len(cards))
				}
				if len(cards) > geo.MaxCardsPerSection {
					t.Errorf("section %d has %d records, ceiling is %d", sec.ID, len(cards), geo.MaxCardsPerSection)
				}
				sum := 0
				for _, c := range cards {
					if c.Quantity < 1 {
						t.Errorf("record %d has quantity %d, empty records must be deleted", c.ID, c.Quantity)
					}
					if c.Quantity > geo.MaxQuantityPerCard {
						t.Errorf("record %d quantity %d exceeds per-record ceiling %d", c.ID, c.Quantity, geo.MaxQuantityPerCard)
					}
					sum += c.Quantity
				}
				if sec.CurrentQuantity != sum {
					t.Errorf("section %d current_quantity = %d, actual sum = %d", sec.ID, sec.CurrentQuantity, sum)
				}
				if sum > geo.MaxQuantityPerSection {
					t.Errorf("section %d holds %d units, ceiling is %d", sec.ID, sum, geo.MaxQuantityPerSection)
				}
			}
		}
	}
}

// totalStock sums every record of the item across the hierarchy.
func totalStock(t *testing.T, store core.Store, tcgID int64) int {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	placed, err := tx.CardsByItem(ctx, tcgID)
	if err != nil {
		t.Fatalf("CardsByItem failed: %v", err)
	}
	total := 0
	for _, pc := range placed {
		total += pc.Card.Quantity
	}
	return total
}
