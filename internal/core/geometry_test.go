package core_test

import (
	"testing"

	"github.com/the-muppet/nice-rack/internal/core"
)

func TestBoxAddress_RadixDecomposition(t *testing.T) {
	// Default radices: 3 boxes/column, 4 columns/shelf, 3 shelves/rack,
	// so 12 boxes per shelf and 36 per rack.
	geo := core.DefaultGeometry()

	tests := []struct {
		ordinal int
		want    core.Address
	}{
		{0, core.Address{Rack: 1, Shelf: 1, Column: 1, Box: 1}},
		{1, core.Address{Rack: 1, Shelf: 1, Column: 1, Box: 2}},
		{2, core.Address{Rack: 1, Shelf: 1, Column: 1, Box: 3}},
		{3, core.Address{Rack: 1, Shelf: 1, Column: 2, Box: 1}},
		{11, core.Address{Rack: 1, Shelf: 1, Column: 4, Box: 3}},
		{12, core.Address{Rack: 1, Shelf: 2, Column: 1, Box: 1}},
		{35, core.Address{Rack: 1, Shelf: 3, Column: 4, Box: 3}},
		{36, core.Address{Rack: 2, Shelf: 1, Column: 1, Box: 1}},
		{72, core.Address{Rack: 3, Shelf: 1, Column: 1, Box: 1}},
	}
	for _, tt := range tests {
		got := geo.BoxAddress(tt.ordinal)
		if got != tt.want {
			t.Errorf("BoxAddress(%d) = %+v, want %+v", tt.ordinal, got, tt.want)
		}
	}
}

func TestBoxAddress_Deterministic(t *testing.T) {
	geo := core.DefaultGeometry()
	for ordinal := 0; ordinal < 200; ordinal++ {
		first := geo.BoxAddress(ordinal)
		second := geo.BoxAddress(ordinal)
		if first != second {
			t.Fatalf("BoxAddress(%d) not deterministic: %+v vs %+v", ordinal, first, second)
		}
	}
}

func TestBoxAddress_String(t *testing.T) {
	addr := core.Address{Rack: 1, Shelf: 2, Column: 3, Box: 1}
	if got := addr.String(); got != "Rack 1, Shelf 2, Column 3, Box 1" {
		t.Errorf("String() = %q", got)
	}
	if got := addr.Location(); got != "Shelf 2, Column 3" {
		t.Errorf("Location() = %q", got)
	}
}

func TestGeometry_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*core.Geometry)
		expectErr bool
	}{
		{"defaults are valid", func(*core.Geometry) {}, false},
		{"zero fan-out", func(g *core.Geometry) { g.MaxRowsPerBox = 0 }, true},
		{"negative ceiling", func(g *core.Geometry) { g.MaxQuantityPerSection = -1 }, true},
		{"record ceiling above section ceiling", func(g *core.Geometry) {
			g.MaxQuantityPerCard = g.MaxQuantityPerSection + 1
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := core.DefaultGeometry()
			tt.mutate(&geo)
			err := geo.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGeometry_Residuals(t *testing.T) {
	geo := core.DefaultGeometry()

	sec := core.Section{CardCount: 0, CurrentQuantity: 0}
	if !geo.SectionOpen(sec) {
		t.Error("empty section should be open")
	}

	sec.CurrentQuantity = geo.MaxQuantityPerSection
	if geo.SectionOpen(sec) {
		t.Error("quantity-full section should be closed")
	}
	if got := geo.SectionResidual(sec); got != 0 {
		t.Errorf("SectionResidual = %d, want 0", got)
	}

	sec.CurrentQuantity = 0
	sec.CardCount = geo.MaxCardsPerSection
	if geo.SectionOpen(sec) {
		t.Error("record-slot-full section should be closed")
	}

	card := core.CardRecord{Quantity: geo.MaxQuantityPerCard - 3}
	if got := geo.CardResidual(card); got != 3 {
		t.Errorf("CardResidual = %d, want 3", got)
	}
}
