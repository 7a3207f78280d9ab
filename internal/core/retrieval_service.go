package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/the-muppet/nice-rack/internal/metrics"
)

// RetrievalService collects a requested quantity of one item from across the
// hierarchy and removes it, reporting where every unit came from. When total
// stock is insufficient it drains what exists and flags the result partial.
type RetrievalService interface {
	Fulfill(ctx context.Context, tcgID int64, quantity int) (*FulfillmentResult, error)
}

type retrievalService struct {
	store      Store
	geo        Geometry
	log        *slog.Logger
	maxRetries int
}

func NewRetrievalService(store Store, geo Geometry, log *slog.Logger, maxRetries int) RetrievalService {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &retrievalService{store: store, geo: geo, log: log, maxRetries: maxRetries}
}

// removal is one pending decrement or deletion, staged during the scan and
// applied only after the full scan settles what to pull from where.
type removal struct {
	card    CardRecord
	path    Path
	amount  int
	deletes bool
}

func (s *retrievalService) Fulfill(ctx context.Context, tcgID int64, quantity int) (*FulfillmentResult, error) {
	if tcgID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidItem, tcgID)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	var res *FulfillmentResult
	err := withRetry(ctx, s.store, s.maxRetries, s.noteConflict, func(tx Tx) error {
		r, err := s.fulfillTx(ctx, tx, tcgID, quantity)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CardsPulled.Add(float64(res.Collected))
	if res.Partial {
		s.log.Warn("partial fulfillment",
			"tcg_id", tcgID, "requested", quantity, "collected", res.Collected)
		metrics.PartialFulfillments.Inc()
	}
	return res, nil
}

func (s *retrievalService) fulfillTx(ctx context.Context, tx Tx, tcgID int64, quantity int) (*FulfillmentResult, error) {
	placed, err := tx.CardsByItem(ctx, tcgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load records of item %d: %w", tcgID, err)
	}

	res := &FulfillmentResult{TCGID: tcgID, Requested: quantity}

	// Scan phase: walk records in stable traversal order and decide what to
	// take from each. No mutation happens here.
	var removals []removal
	remaining := quantity
	for _, pc := range placed {
		if remaining == 0 {
			break
		}
		if res.Name == "" {
			res.Name = pc.Card.Name
			res.SetName = pc.Card.SetName
		}
		amount := min(pc.Card.Quantity, remaining)
		removals = append(removals, removal{
			card:    pc.Card,
			path:    pc.Path,
			amount:  amount,
			deletes: amount == pc.Card.Quantity,
		})
		res.Locations = append(res.Locations, PullLocation{Path: pc.Path, Quantity: amount})
		res.Collected += amount
		remaining -= amount
	}
	res.Partial = res.Collected < res.Requested

	// Apply phase: decrement or delete each record and keep the owning
	// section's counters in step, all inside the same transaction.
	for _, rm := range removals {
		sec, err := tx.SectionByID(ctx, rm.card.SectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load section %d: %w", rm.card.SectionID, err)
		}
		if rm.deletes {
			if err := tx.DeleteCard(ctx, rm.card.ID); err != nil {
				return nil, fmt.Errorf("failed to delete record %d: %w", rm.card.ID, err)
			}
			sec.CardCount--
		} else {
			card := rm.card
			card.Quantity -= rm.amount
			if err := tx.SaveCard(ctx, &card); err != nil {
				return nil, fmt.Errorf("failed to update record %d: %w", rm.card.ID, err)
			}
		}
		sec.CurrentQuantity -= rm.amount
		if err := tx.SaveSection(ctx, sec); err != nil {
			return nil, fmt.Errorf("failed to update section %d counters: %w", sec.ID, err)
		}
	}

	return res, nil
}

func (s *retrievalService) noteConflict() {
	s.log.Warn("store conflict, retrying fulfillment")
	metrics.StoreConflicts.Inc()
}
