package core_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/the-muppet/nice-rack/internal/core"
)

func TestInsert_SpilloverAcrossSections(t *testing.T) {
	// Inserting 15 with a 12-unit leaf ceiling must split 12 + 3, with the
	// remainder in the next section.
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	res, err := placer.Insert(ctx, core.CardInput{TCGID: 1001, Name: "Lightning Bolt", SetName: "Beta", Quantity: 15})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if got := res.Placed(); got != 15 {
		t.Errorf("placed %d units, want 15", got)
	}
	if len(res.Placements) != 2 {
		t.Fatalf("got %d placements, want 2", len(res.Placements))
	}
	if res.Placements[0].Quantity != 12 || res.Placements[1].Quantity != 3 {
		t.Errorf("split %d + %d, want 12 + 3", res.Placements[0].Quantity, res.Placements[1].Quantity)
	}
	if res.Placements[0].Path.SectionOrd == res.Placements[1].Path.SectionOrd &&
		res.Placements[0].Path.RowOrd == res.Placements[1].Path.RowOrd {
		t.Error("spillover landed in the same section despite a full quantity ceiling")
	}
	if res.BoxesCreated != 1 {
		t.Errorf("boxes created = %d, want 1 (empty hierarchy)", res.BoxesCreated)
	}

	verifyInvariants(t, store, tightGeometry())
}

func TestInsert_ConservationUnderSpillover(t *testing.T) {
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	quantities := []int{1, 7, 12, 13, 25, 48, 3}
	total := 0
	for i, q := range quantities {
		res, err := placer.Insert(ctx, core.CardInput{TCGID: int64(2000 + i), Quantity: q})
		if err != nil {
			t.Fatalf("Insert(%d) failed: %v", q, err)
		}
		if res.Placed() != q {
			t.Errorf("Insert(%d): placed %d, conservation violated", q, res.Placed())
		}
		total += q
	}

	sum := 0
	for i := range quantities {
		sum += totalStock(t, store, int64(2000+i))
	}
	if sum != total {
		t.Errorf("total stock = %d, want %d", sum, total)
	}
	verifyInvariants(t, store, tightGeometry())
}

func TestInsert_CreatesBoxWhenFull(t *testing.T) {
	// tightGeometry holds 2x2x12 = 48 units per box.
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	res, err := placer.Insert(ctx, core.CardInput{TCGID: 42, Quantity: 50})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if res.BoxesCreated != 2 {
		t.Fatalf("boxes created = %d, want 2", res.BoxesCreated)
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)
	boxes, err := tx.Boxes(ctx)
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(boxes))
	}
	if boxes[0].Name != "Rack 1, Shelf 1, Column 1, Box 1" {
		t.Errorf("first box name = %q", boxes[0].Name)
	}
	if boxes[1].Name != "Rack 1, Shelf 1, Column 1, Box 2" {
		t.Errorf("second box name = %q", boxes[1].Name)
	}
	// Eager seeding: full substructure regardless of how little landed there.
	for _, box := range boxes {
		rows, err := tx.RowsOf(ctx, box.ID)
		if err != nil {
			t.Fatalf("RowsOf failed: %v", err)
		}
		if len(rows) != tightGeometry().MaxRowsPerBox {
			t.Errorf("box %q has %d rows, want %d", box.Name, len(rows), tightGeometry().MaxRowsPerBox)
		}
	}
}

func TestInsert_RecordSlotCeiling(t *testing.T) {
	// Singleton inserts fill the record-count ceiling (3) long before the
	// quantity ceiling; the fourth record must land in the next section.
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	var last *core.PlacementResult
	for i := 0; i < 4; i++ {
		var err error
		last, err = placer.Insert(ctx, core.CardInput{TCGID: int64(100 + i), Quantity: 1})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if got := last.Placements[0].Path.SectionOrd; got != 2 {
		t.Errorf("fourth record landed in section %d, want 2", got)
	}
	verifyInvariants(t, store, tightGeometry())
}

func TestInsert_RejectsBeforeMutation(t *testing.T) {
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	tests := []struct {
		name string
		in   core.CardInput
		want error
	}{
		{"zero quantity", core.CardInput{TCGID: 1, Quantity: 0}, core.ErrInvalidQuantity},
		{"negative quantity", core.CardInput{TCGID: 1, Quantity: -4}, core.ErrInvalidQuantity},
		{"zero item id", core.CardInput{TCGID: 0, Quantity: 5}, core.ErrInvalidItem},
		{"negative item id", core.CardInput{TCGID: -9, Quantity: 5}, core.ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := placer.Insert(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Insert = %v, want %v", err, tt.want)
			}
			if _, err := placer.Consolidate(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Consolidate = %v, want %v", err, tt.want)
			}
		})
	}

	// Rejection happens before any structural mutation.
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)
	n, err := tx.CountBoxes(ctx)
	if err != nil {
		t.Fatalf("CountBoxes failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rejected inserts created %d boxes", n)
	}
}

func TestConsolidate_MergesThenSpills(t *testing.T) {
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	if _, err := placer.Insert(ctx, core.CardInput{TCGID: 7, Name: "Counterspell", Quantity: 5}); err != nil {
		t.Fatalf("seed Insert failed: %v", err)
	}

	res, err := placer.Consolidate(ctx, core.CardInput{TCGID: 7, Name: "Counterspell", Quantity: 10})
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if res.Placed() != 10 {
		t.Fatalf("placed %d, want 10", res.Placed())
	}
	// Record headroom is 7 (5 of 12), the section ceiling also allows 7, so
	// 7 merges and 3 spills into a fresh record elsewhere.
	if len(res.Placements) != 2 {
		t.Fatalf("got %d placements, want 2", len(res.Placements))
	}
	if !res.Placements[0].Merged || res.Placements[0].Quantity != 7 {
		t.Errorf("first placement = %+v, want merged 7", res.Placements[0])
	}
	if res.Placements[1].Merged || res.Placements[1].Quantity != 3 {
		t.Errorf("second placement = %+v, want fresh 3", res.Placements[1])
	}

	if got := totalStock(t, store, 7); got != 15 {
		t.Errorf("total stock = %d, want 15", got)
	}
	verifyInvariants(t, store, tightGeometry())
}

func TestConsolidate_NoExistingRecords(t *testing.T) {
	placer, store := newPlacer(t, tightGeometry())
	ctx := context.Background()

	res, err := placer.Consolidate(ctx, core.CardInput{TCGID: 99, Quantity: 4})
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}
	if res.Placed() != 4 || res.Placements[0].Merged {
		t.Errorf("expected a single fresh placement of 4, got %+v", res.Placements)
	}
	if got := totalStock(t, store, 99); got != 4 {
		t.Errorf("total stock = %d, want 4", got)
	}
}

func TestInsert_FirstFitStability(t *testing.T) {
	// The same insertion sequence against a fresh hierarchy must produce an
	// identical layout every time.
	ctx := context.Background()
	inputs := []core.CardInput{
		{TCGID: 1, Name: "Shock", Quantity: 9},
		{TCGID: 2, Name: "Giant Growth", Quantity: 14},
		{TCGID: 1, Name: "Shock", Quantity: 2},
		{TCGID: 3, Name: "Dark Ritual", Quantity: 30},
		{TCGID: 2, Name: "Giant Growth", Quantity: 1},
	}

	layout := func() *core.InventorySnapshot {
		placer, store := newPlacer(t, tightGeometry())
		for _, in := range inputs {
			if _, err := placer.Insert(ctx, in); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
		snap, err := core.NewSnapshotService(store, testLogger()).Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		return snap
	}

	first := layout()
	second := layout()
	if !reflect.DeepEqual(first, second) {
		t.Error("identical insertion sequences produced different layouts")
	}
}
