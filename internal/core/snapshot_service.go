package core

import (
	"context"
	"fmt"
	"log/slog"
)

// BoxSnapshot is the JSON-marshalable dump of one box and everything in it.
type BoxSnapshot struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Location string        `json:"location"`
	Rows     []RowSnapshot `json:"rows"`
}

type RowSnapshot struct {
	Ordinal  int               `json:"ordinal"`
	Sections []SectionSnapshot `json:"sections"`
}

type SectionSnapshot struct {
	Ordinal         int            `json:"ordinal"`
	CardCount       int            `json:"card_count"`
	CurrentQuantity int            `json:"current_quantity"`
	Cards           []CardSnapshot `json:"cards"`
}

type CardSnapshot struct {
	TCGID     int64  `json:"tcgplayer_id"`
	Name      string `json:"product_name"`
	SetName   string `json:"set_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"market_price,omitempty"`
}

// InventorySnapshot is the full read-only tree dump used for inspection.
type InventorySnapshot struct {
	Boxes []BoxSnapshot `json:"inventory"`
}

// SnapshotService produces read-only views of the hierarchy: the full tree
// dump and the per-item stock summary.
type SnapshotService interface {
	Snapshot(ctx context.Context) (*InventorySnapshot, error)
	StockLevels(ctx context.Context) ([]StockLevel, error)
}

type snapshotService struct {
	store Store
	log   *slog.Logger
}

func NewSnapshotService(store Store, log *slog.Logger) SnapshotService {
	return &snapshotService{store: store, log: log}
}

func (s *snapshotService) Snapshot(ctx context.Context) (*InventorySnapshot, error) {
	var snap *InventorySnapshot
	err := runTx(ctx, s.store, func(tx Tx) error {
		boxes, err := tx.Boxes(ctx)
		if err != nil {
			return fmt.Errorf("failed to load boxes: %w", err)
		}
		snap = &InventorySnapshot{Boxes: make([]BoxSnapshot, 0, len(boxes))}
		for _, box := range boxes {
			bs := BoxSnapshot{ID: box.ID, Name: box.Name, Location: box.Location}
			rows, err := tx.RowsOf(ctx, box.ID)
			if err != nil {
				return fmt.Errorf("failed to load rows of box %d: %w", box.ID, err)
			}
			for _, row := range rows {
				rs := RowSnapshot{Ordinal: row.Ordinal}
				sections, err := tx.SectionsOf(ctx, row.ID)
				if err != nil {
					return fmt.Errorf("failed to load sections of row %d: %w", row.ID, err)
				}
				for _, sec := range sections {
					ss := SectionSnapshot{
						Ordinal:         sec.Ordinal,
						CardCount:       sec.CardCount,
						CurrentQuantity: sec.CurrentQuantity,
					}
					cards, err := tx.CardsOf(ctx, sec.ID)
					if err != nil {
						return fmt.Errorf("failed to load cards of section %d: %w", sec.ID, err)
					}
					for _, c := range cards {
						cs := CardSnapshot{
							TCGID:    c.TCGID,
							Name:     c.Name,
							SetName:  c.SetName,
							Quantity: c.Quantity,
						}
						if !c.UnitPrice.IsZero() {
							cs.UnitPrice = c.UnitPrice.StringFixed(2)
						}
						ss.Cards = append(ss.Cards, cs)
					}
					rs.Sections = append(rs.Sections, ss)
				}
				bs.Rows = append(bs.Rows, rs)
			}
			snap.Boxes = append(snap.Boxes, bs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("snapshot generated", "boxes", len(snap.Boxes))
	return snap, nil
}

func (s *snapshotService) StockLevels(ctx context.Context) ([]StockLevel, error) {
	var levels []StockLevel
	err := runTx(ctx, s.store, func(tx Tx) error {
		var err error
		levels, err = tx.StockLevels(ctx)
		if err != nil {
			return fmt.Errorf("failed to aggregate stock levels: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}
