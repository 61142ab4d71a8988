package domain

import (
	"errors"
	"testing"
)

func TestAssetDirection(t *testing.T) {
	tests := []struct {
		change float64
		want   Direction
	}{
		{2.5, DirectionUp},
		{-0.1, DirectionDown},
		{0, DirectionSame},
	}
	for _, tt := range tests {
		a := Asset{ID: "BTC", Change24h: tt.change}
		if got := a.Direction(); got != tt.want {
			t.Errorf("Direction(%v) = %v, want %v", tt.change, got, tt.want)
		}
	}
}

func TestAssetValue(t *testing.T) {
	a := Asset{ID: "ETH", Quantity: 2, CurrentPrice: 1500}
	if a.Value() != 3000 {
		t.Errorf("expected 3000, got %v", a.Value())
	}
}

func TestNormalizeID(t *testing.T) {
	if got := NormalizeID("  btc "); got != "BTC" {
		t.Errorf("expected BTC, got %q", got)
	}
}

func TestConflictErrorsWrapRegistryConflict(t *testing.T) {
	for _, err := range []error{ErrDuplicateAsset, ErrInvalidQuantity, ErrInvalidAsset} {
		if !errors.Is(err, ErrRegistryConflict) {
			t.Errorf("%v should wrap ErrRegistryConflict", err)
		}
	}
}
