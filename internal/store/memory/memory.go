// Package memory is a complete in-process implementation of the core store,
// used by the unit tests and selectable as the "memory" storage driver for dry
// runs. A transaction works on a private copy of the whole state and swaps it
// in on commit, so rollback never leaks partial progress.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/the-muppet/nice-rack/internal/core"
)

type state struct {
	boxes    map[int64]core.Box
	rows     map[int64]core.Row
	sections map[int64]core.Section
	cards    map[int64]core.CardRecord

	nextBoxID     int64
	nextRowID     int64
	nextSectionID int64
	nextCardID    int64
}

func newState() *state {
	return &state{
		boxes:    make(map[int64]core.Box),
		rows:     make(map[int64]core.Row),
		sections: make(map[int64]core.Section),
		cards:    make(map[int64]core.CardRecord),
	}
}

func (st *state) clone() *state {
	c := &state{
		boxes:         make(map[int64]core.Box, len(st.boxes)),
		rows:          make(map[int64]core.Row, len(st.rows)),
		sections:      make(map[int64]core.Section, len(st.sections)),
		cards:         make(map[int64]core.CardRecord, len(st.cards)),
		nextBoxID:     st.nextBoxID,
		nextRowID:     st.nextRowID,
		nextSectionID: st.nextSectionID,
		nextCardID:    st.nextCardID,
	}
	for id, b := range st.boxes {
		c.boxes[id] = b
	}
	for id, r := range st.rows {
		c.rows[id] = r
	}
	for id, s := range st.sections {
		c.sections[id] = s
	}
	for id, cd := range st.cards {
		c.cards[id] = cd
	}
	return c
}

// Store holds the live state behind a single-writer lock: Begin blocks until
// the previous transaction finishes, which makes conflicts impossible here.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Begin(_ context.Context) (core.Tx, error) {
	s.mu.Lock()
	return &tx{store: s, st: s.st.clone()}, nil
}

func (s *Store) Close() {}

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	t.store.st = t.st
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *tx) CountBoxes(_ context.Context) (int, error) {
	return len(t.st.boxes), nil
}

func (t *tx) Boxes(_ context.Context) ([]core.Box, error) {
	out := make([]core.Box, 0, len(t.st.boxes))
	for _, b := range t.st.boxes {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) RowsOf(_ context.Context, boxID int64) ([]core.Row, error) {
	var out []core.Row
	for _, r := range t.st.rows {
		if r.BoxID == boxID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (t *tx) SectionsOf(_ context.Context, rowID int64) ([]core.Section, error) {
	var out []core.Section
	for _, s := range t.st.sections {
		if s.RowID == rowID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (t *tx) SectionByID(_ context.Context, id int64) (*core.Section, error) {
	s, ok := t.st.sections[id]
	if !ok {
		return nil, fmt.Errorf("section %d not found", id)
	}
	return &s, nil
}

func (t *tx) CardsOf(_ context.Context, sectionID int64) ([]core.CardRecord, error) {
	var out []core.CardRecord
	for _, c := range t.st.cards {
		if c.SectionID == sectionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CardsByItem(ctx context.Context, tcgID int64) ([]core.PlacedCard, error) {
	boxes, _ := t.Boxes(ctx)
	var out []core.PlacedCard
	for bi := range boxes {
		box := boxes[bi]
		rows, _ := t.RowsOf(ctx, box.ID)
		for ri := range rows {
			row := rows[ri]
			sections, _ := t.SectionsOf(ctx, row.ID)
			for si := range sections {
				sec := sections[si]
				cards, _ := t.CardsOf(ctx, sec.ID)
				for _, c := range cards {
					if c.TCGID != tcgID {
						continue
					}
					out = append(out, core.PlacedCard{
						Card: c,
						Path: core.Path{
							BoxID:      box.ID,
							BoxName:    box.Name,
							RowID:      row.ID,
							RowOrd:     row.Ordinal,
							SectionID:  sec.ID,
							SectionOrd: sec.Ordinal,
						},
					})
				}
			}
		}
	}
	return out, nil
}

func (t *tx) StockLevels(_ context.Context) ([]core.StockLevel, error) {
	byItem := make(map[int64]*core.StockLevel)
	ids := make([]int64, 0, len(t.st.cards))
	for id := range t.st.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := t.st.cards[id]
		lv, ok := byItem[c.TCGID]
		if !ok {
			lv = &core.StockLevel{TCGID: c.TCGID, Name: c.Name, SetName: c.SetName, Value: decimal.Zero}
			byItem[c.TCGID] = lv
		}
		lv.Quantity += c.Quantity
		lv.Records++
		lv.Value = lv.Value.Add(c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity))))
	}
	out := make([]core.StockLevel, 0, len(byItem))
	for _, lv := range byItem {
		out = append(out, *lv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TCGID < out[j].TCGID })
	return out, nil
}

func (t *tx) CreateBox(_ context.Context, b *core.Box) error {
	t.st.nextBoxID++
	b.ID = t.st.nextBoxID
	t.st.boxes[b.ID] = *b
	return nil
}

func (t *tx) CreateRow(_ context.Context, r *core.Row) error {
	t.st.nextRowID++
	r.ID = t.st.nextRowID
	t.st.rows[r.ID] = *r
	return nil
}

func (t *tx) CreateSection(_ context.Context, s *core.Section) error {
	t.st.nextSectionID++
	s.ID = t.st.nextSectionID
	t.st.sections[s.ID] = *s
	return nil
}

func (t *tx) CreateCard(_ context.Context, c *core.CardRecord) error {
	t.st.nextCardID++
	c.ID = t.st.nextCardID
	t.st.cards[c.ID] = *c
	return nil
}

func (t *tx) SaveBox(_ context.Context, b *core.Box) error {
	if _, ok := t.st.boxes[b.ID]; !ok {
		return fmt.Errorf("box %d not found", b.ID)
	}
	t.st.boxes[b.ID] = *b
	return nil
}

func (t *tx) SaveRow(_ context.Context, r *core.Row) error {
	if _, ok := t.st.rows[r.ID]; !ok {
		return fmt.Errorf("row %d not found", r.ID)
	}
	t.st.rows[r.ID] = *r
	return nil
}

func (t *tx) SaveSection(_ context.Context, s *core.Section) error {
	if _, ok := t.st.sections[s.ID]; !ok {
		return fmt.Errorf("section %d not found", s.ID)
	}
	t.st.sections[s.ID] = *s
	return nil
}

func (t *tx) SaveCard(_ context.Context, c *core.CardRecord) error {
	if _, ok := t.st.cards[c.ID]; !ok {
		return fmt.Errorf("card %d not found", c.ID)
	}
	t.st.cards[c.ID] = *c
	return nil
}

func (t *tx) DeleteCard(_ context.Context, id int64) error {
	if _, ok := t.st.cards[id]; !ok {
		return fmt.Errorf("card %d not found", id)
	}
	delete(t.st.cards, id)
	return nil
}
