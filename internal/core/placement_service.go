package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/the-muppet/nice-rack/internal/metrics"
)

// PlacementService places inbound stock into the hierarchy. Insert always
// creates fresh records; Consolidate first tops up existing records of the
// same item and routes only the overflow into fresh placement. Both run as a
// single store transaction per attempt and rerun from scratch on a conflict,
// so the sum of placed quantities always equals the requested quantity.
type PlacementService interface {
	Insert(ctx context.Context, in CardInput) (*PlacementResult, error)
	Consolidate(ctx context.Context, in CardInput) (*PlacementResult, error)
}

type placementService struct {
	store      Store
	geo        Geometry
	log        *slog.Logger
	maxRetries int
}

func NewPlacementService(store Store, geo Geometry, log *slog.Logger, maxRetries int) PlacementService {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &placementService{store: store, geo: geo, log: log, maxRetries: maxRetries}
}

func validateInput(in CardInput) error {
	if in.TCGID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidItem, in.TCGID)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, in.Quantity)
	}
	return nil
}

func (s *placementService) Insert(ctx context.Context, in CardInput) (*PlacementResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var res *PlacementResult
	err := withRetry(ctx, s.store, s.maxRetries, s.noteConflict, func(tx Tx) error {
		r := &PlacementResult{TCGID: in.TCGID, Requested: in.Quantity}
		if err := s.place(ctx, tx, in, in.Quantity, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Placements.Inc()
	return res, nil
}

func (s *placementService) Consolidate(ctx context.Context, in CardInput) (*PlacementResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var res *PlacementResult
	err := withRetry(ctx, s.store, s.maxRetries, s.noteConflict, func(tx Tx) error {
		r := &PlacementResult{TCGID: in.TCGID, Requested: in.Quantity}
		remaining, err := s.merge(ctx, tx, in, r)
		if err != nil {
			return err
		}
		if remaining > 0 {
			if err := s.place(ctx, tx, in, remaining, r); err != nil {
				return err
			}
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Placements.Inc()
	return res, nil
}

// merge folds as much of the inbound quantity as possible into existing
// records of the item, capped by both the per-record ceiling and the owning
// section's quantity ceiling. Returns the overflow left for fresh placement.
func (s *placementService) merge(ctx context.Context, tx Tx, in CardInput, res *PlacementResult) (int, error) {
	remaining := in.Quantity
	placed, err := tx.CardsByItem(ctx, in.TCGID)
	if err != nil {
		return 0, fmt.Errorf("failed to load records of item %d: %w", in.TCGID, err)
	}
	for _, pc := range placed {
		if remaining == 0 {
			break
		}
		headroom := s.geo.CardResidual(pc.Card)
		if headroom <= 0 {
			continue
		}
		sec, err := tx.SectionByID(ctx, pc.Card.SectionID)
		if err != nil {
			return 0, fmt.Errorf("failed to load section %d: %w", pc.Card.SectionID, err)
		}
		take := min(headroom, s.geo.SectionResidual(*sec), remaining)
		if take <= 0 {
			continue
		}
		card := pc.Card
		card.Quantity += take
		if err := tx.SaveCard(ctx, &card); err != nil {
			return 0, fmt.Errorf("failed to update record %d: %w", card.ID, err)
		}
		sec.CurrentQuantity += take
		if err := tx.SaveSection(ctx, sec); err != nil {
			return 0, fmt.Errorf("failed to update section %d counters: %w", sec.ID, err)
		}
		res.Placements = append(res.Placements, Placement{
			Path:     pc.Path,
			RecordID: card.ID,
			Quantity: take,
			Merged:   true,
		})
		remaining -= take
	}
	if remaining > 0 && remaining < in.Quantity {
		s.log.Debug("merge overflow routed to placement",
			"tcg_id", in.TCGID, "merged", in.Quantity-remaining, "overflow", remaining)
	}
	return remaining, nil
}

// place runs the first-fit spillover loop: pick the first section that can
// take any positive quantity, create a record for as much as the section and
// the per-record ceiling allow, and repeat with the remainder. Terminates
// because every pass strictly shrinks the outstanding quantity.
func (s *placementService) place(ctx context.Context, tx Tx, in CardInput, remaining int, res *PlacementResult) error {
	for remaining > 0 {
		sec, path, err := s.openSection(ctx, tx, res)
		if err != nil {
			return err
		}
		accepted := min(s.geo.SectionResidual(*sec), remaining, s.geo.MaxQuantityPerCard)
		card := &CardRecord{
			SectionID: sec.ID,
			TCGID:     in.TCGID,
			Name:      in.Name,
			SetName:   in.SetName,
			Quantity:  accepted,
			UnitPrice: in.UnitPrice,
		}
		if err := tx.CreateCard(ctx, card); err != nil {
			return fmt.Errorf("failed to create record for item %d: %w", in.TCGID, err)
		}
		sec.CardCount++
		sec.CurrentQuantity += accepted
		if err := tx.SaveSection(ctx, sec); err != nil {
			return fmt.Errorf("failed to update section %d counters: %w", sec.ID, err)
		}
		res.Placements = append(res.Placements, Placement{Path: path, RecordID: card.ID, Quantity: accepted})

		remaining -= accepted
		if remaining > 0 {
			s.log.Debug("spillover split",
				"tcg_id", in.TCGID, "placed", accepted, "remaining", remaining, "path", path.String())
			metrics.SpilloverSplits.Inc()
		}
	}
	return nil
}

// openSection finds the section the next chunk goes into. Three passes, in
// the order the hierarchy is meant to fill: first-fit over existing sections,
// then growing the first level with spare fan-out, then a brand-new box. The
// last pass cannot fail: a freshly seeded box always has room.
func (s *placementService) openSection(ctx context.Context, tx Tx, res *PlacementResult) (*Section, Path, error) {
	boxes, err := tx.Boxes(ctx)
	if err != nil {
		return nil, Path{}, fmt.Errorf("failed to load boxes: %w", err)
	}

	// Pass 1: first existing section that can take any positive quantity.
	for bi := range boxes {
		box := &boxes[bi]
		rows, err := tx.RowsOf(ctx, box.ID)
		if err != nil {
			return nil, Path{}, fmt.Errorf("failed to load rows of box %d: %w", box.ID, err)
		}
		for ri := range rows {
			row := &rows[ri]
			sections, err := tx.SectionsOf(ctx, row.ID)
			if err != nil {
				return nil, Path{}, fmt.Errorf("failed to load sections of row %d: %w", row.ID, err)
			}
			for si := range sections {
				if s.geo.SectionOpen(sections[si]) {
					sec := sections[si]
					return &sec, path(box, row, &sec), nil
				}
			}
		}
	}

	// Pass 2: grow the first level that still has spare fan-out. With eagerly
	// seeded boxes this only fires for trees built under a smaller geometry.
	loc := &locator{geo: s.geo}
	for bi := range boxes {
		box := &boxes[bi]
		rows, err := tx.RowsOf(ctx, box.ID)
		if err != nil {
			return nil, Path{}, fmt.Errorf("failed to load rows of box %d: %w", box.ID, err)
		}
		for ri := range rows {
			row := &rows[ri]
			sec, err := loc.sectionIn(ctx, tx, row)
			if err == nil {
				return sec, path(box, row, sec), nil
			}
			if !errors.Is(err, errLevelExhausted) {
				return nil, Path{}, err
			}
		}
		row, err := loc.rowIn(ctx, tx, box)
		if err == nil {
			sec, err := loc.sectionIn(ctx, tx, row)
			if err == nil {
				return sec, path(box, row, sec), nil
			}
			if !errors.Is(err, errLevelExhausted) {
				return nil, Path{}, err
			}
		} else if !errors.Is(err, errLevelExhausted) {
			return nil, Path{}, err
		}
		s.log.Debug("box exhausted", "box", box.Name)
	}

	// Pass 3: every box and its subtree is full.
	return s.createBox(ctx, tx, res)
}

// createBox creates a new box at the next deterministic rack address and
// eagerly seeds its full row/section substructure.
func (s *placementService) createBox(ctx context.Context, tx Tx, res *PlacementResult) (*Section, Path, error) {
	ordinal, err := tx.CountBoxes(ctx)
	if err != nil {
		return nil, Path{}, fmt.Errorf("failed to count boxes: %w", err)
	}
	addr := s.geo.BoxAddress(ordinal)
	box := &Box{Name: addr.String(), Location: addr.Location(), RowCount: s.geo.MaxRowsPerBox}
	if err := tx.CreateBox(ctx, box); err != nil {
		return nil, Path{}, fmt.Errorf("failed to create box: %w", err)
	}

	var first *Section
	var firstPath Path
	for ri := 1; ri <= s.geo.MaxRowsPerBox; ri++ {
		row := &Row{BoxID: box.ID, Ordinal: ri, SectionCount: s.geo.MaxSectionsPerRow}
		if err := tx.CreateRow(ctx, row); err != nil {
			return nil, Path{}, fmt.Errorf("failed to seed row %d of box %d: %w", ri, box.ID, err)
		}
		for si := 1; si <= s.geo.MaxSectionsPerRow; si++ {
			sec := &Section{RowID: row.ID, Ordinal: si}
			if err := tx.CreateSection(ctx, sec); err != nil {
				return nil, Path{}, fmt.Errorf("failed to seed section %d of row %d: %w", si, row.ID, err)
			}
			if first == nil {
				first = sec
				firstPath = path(box, row, sec)
			}
		}
	}

	s.log.Info("box created", "name", box.Name, "location", box.Location, "ordinal", ordinal)
	metrics.BoxesCreated.Inc()
	res.BoxesCreated++
	return first, firstPath, nil
}

func (s *placementService) noteConflict() {
	s.log.Warn("store conflict, retrying placement")
	metrics.StoreConflicts.Inc()
}

func path(b *Box, r *Row, s *Section) Path {
	return Path{
		BoxID:      b.ID,
		BoxName:    b.Name,
		RowID:      r.ID,
		RowOrd:     r.Ordinal,
		SectionID:  s.ID,
		SectionOrd: s.Ordinal,
	}
}
