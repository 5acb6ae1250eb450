package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSignalStrength(t *testing.T) {
	tests := []struct {
		price, sentiment float64
		want             float64
	}{
		{0.06, 0.6, 0.9},
		{0.06, 0.4, 0.7},
		{0.05, 0.6, 0.7},
		{0.01, 0.35, 0.7},
		{0.01, 0.1, 0.5},
		{-0.2, -0.9, 0.5},
	}
	for _, tt := range tests {
		if got := SignalStrength(tt.price, tt.sentiment); got != tt.want {
			t.Fatalf("SignalStrength(%v, %v)=%v, expected %v", tt.price, tt.sentiment, got, tt.want)
		}
	}
}

func TestSizingFraction(t *testing.T) {
	tests := map[float64]float64{0.9: 0.8, 0.8: 0.6, 0.7: 0.6, 0.6: 0.4, 0.5: 0.4}
	for strength, want := range tests {
		if got := SizingFraction(strength); got != want {
			t.Fatalf("SizingFraction(%v)=%v, expected %v", strength, got, want)
		}
	}
}

func TestTierSellFraction(t *testing.T) {
	tests := map[float64]float64{0.08: 0.5, 0.05: 0.5, 0.03: 0.3, 0.029: 0.1, 0.01: 0.1, 0.005: 0, -0.1: 0}
	for margin, want := range tests {
		if got := TierSellFraction(margin); got != want {
			t.Fatalf("TierSellFraction(%v)=%v, expected %v", margin, got, want)
		}
	}

	qty, frac := TierSellQuantity(d("2"), d("100"), d("103"))
	if frac != 0.3 || !qty.Equal(d("0.6")) {
		t.Fatalf("TierSellQuantity=%s/%v, expected 0.6/0.3", qty, frac)
	}
	if qty, _ := TierSellQuantity(decimal.Zero, d("100"), d("200")); !qty.IsZero() {
		t.Fatalf("flat position sells %s", qty)
	}
}

func TestBuyQuantity(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	fee := d("0.0005")

	qty, frac := ctrl.BuyQuantity(d("1000"), d("50"), fee, 0.9)
	if frac != 0.8 || !qty.Equal(d("15.99200399")) {
		t.Fatalf("BuyQuantity=%s/%v", qty, frac)
	}

	qty, frac = ctrl.BuyQuantity(d("10"), d("50"), fee, 0.5)
	if frac != 1 || !qty.Equal(d("0.19990004")) {
		t.Fatalf("small capital BuyQuantity=%s/%v", qty, frac)
	}

	if qty, _ := ctrl.BuyQuantity(decimal.Zero, d("50"), fee, 0.9); !qty.IsZero() {
		t.Fatalf("no capital buys %s", qty)
	}
}
