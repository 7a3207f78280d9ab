package core

import (
	"context"
	"fmt"
)

// childSpec drives findOrCreate for one growable hierarchy level: the level's
// own residual-capacity rule, whether the parent is at its fan-out ceiling,
// and how to append a fresh child.
type childSpec[C any] struct {
	open      func(C) bool
	atCeiling bool
	create    func() (C, error)
}

// findOrCreate returns the first existing child with spare capacity, creates
// one when the parent still has fan-out room, and escalates with
// errLevelExhausted otherwise. One traversal shape serves every level; the
// per-level differences live entirely in the spec.
func findOrCreate[C any](existing []C, spec childSpec[C]) (C, error) {
	for _, c := range existing {
		if spec.open(c) {
			return c, nil
		}
	}
	var zero C
	if spec.atCeiling {
		return zero, errLevelExhausted
	}
	return spec.create()
}

// locator finds or grows containers level by level. Mutations happen inside
// the caller's transaction, so a failed placement chain never leaves a
// half-built hierarchy behind.
type locator struct {
	geo Geometry
}

// sectionIn returns the first section of the row that can accept a new record,
// growing the row by one section when it is under its fan-out ceiling.
func (l *locator) sectionIn(ctx context.Context, tx Tx, row *Row) (*Section, error) {
	sections, err := tx.SectionsOf(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections of row %d: %w", row.ID, err)
	}
	sec, err := findOrCreate(sections, childSpec[Section]{
		open:      func(s Section) bool { return l.geo.SectionOpen(s) },
		atCeiling: !l.geo.RowOpen(*row),
		create: func() (Section, error) {
			s := Section{RowID: row.ID, Ordinal: row.SectionCount + 1}
			if err := tx.CreateSection(ctx, &s); err != nil {
				return Section{}, fmt.Errorf("failed to create section in row %d: %w", row.ID, err)
			}
			row.SectionCount++
			if err := tx.SaveRow(ctx, row); err != nil {
				return Section{}, fmt.Errorf("failed to update row %d counters: %w", row.ID, err)
			}
			return s, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// rowIn returns the first row of the box with fan-out room for another
// section, growing the box by one row when possible.
func (l *locator) rowIn(ctx context.Context, tx Tx, box *Box) (*Row, error) {
	rows, err := tx.RowsOf(ctx, box.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows of box %d: %w", box.ID, err)
	}
	row, err := findOrCreate(rows, childSpec[Row]{
		open:      func(r Row) bool { return l.geo.RowOpen(r) },
		atCeiling: !l.geo.BoxOpen(*box),
		create: func() (Row, error) {
			r := Row{BoxID: box.ID, Ordinal: box.RowCount + 1}
			if err := tx.CreateRow(ctx, &r); err != nil {
				return Row{}, fmt.Errorf("failed to create row in box %d: %w", box.ID, err)
			}
			box.RowCount++
			if err := tx.SaveBox(ctx, box); err != nil {
				return Row{}, fmt.Errorf("failed to update box %d counters: %w", box.ID, err)
			}
			return r, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}
