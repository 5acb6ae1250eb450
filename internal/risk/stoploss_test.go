package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDynamicStopMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		vol  float64
		want string
	}{
		{vol: 0.12, want: "97.75"},
		{vol: 0.07, want: "98.5"},
		{vol: 0.01, want: "98.8"},
	}
	for _, tt := range tests {
		got := cfg.DynamicStop(d("100"), tt.vol)
		if !got.Equal(d(tt.want)) {
			t.Fatalf("vol %.2f: stop=%s, expected %s", tt.vol, got, tt.want)
		}
	}
}

func TestCheckStopLossDynamic(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())

	exit := ctrl.CheckStopLoss("bitcoin", PositionView{
		Position: d("2"), AvgCost: d("100"), Price: d("97"), Volatility: 0.12,
	})
	if exit == nil {
		t.Fatal("expected dynamic stop to trigger")
	}
	if exit.Kind != ExitDynamicStop || !exit.Quantity.Equal(d("1")) || !exit.TriggerPrice.Equal(d("97.75")) {
		t.Fatalf("unexpected exit: %+v", exit)
	}
	if !ctrl.State("bitcoin").StopLossPrice.Equal(d("97.75")) {
		t.Fatalf("stop not stored: %s", ctrl.State("bitcoin").StopLossPrice)
	}

	if exit := ctrl.CheckStopLoss("bitcoin", PositionView{
		Position: d("2"), AvgCost: d("100"), Price: d("98"), Volatility: 0.12,
	}); exit != nil {
		t.Fatalf("price above stop must hold, got %+v", exit)
	}
	if exit := ctrl.CheckStopLoss("bitcoin", PositionView{
		Position: decimal.Zero, AvgCost: d("100"), Price: d("50"), Volatility: 0.12,
	}); exit != nil {
		t.Fatalf("flat position must not exit, got %+v", exit)
	}
}

func TestCheckStopLossTrailing(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	ctrl.RecordBuy("ethereum", d("100"), now)
	ctrl.ObservePrice("ethereum", d("110"), true)
	ctrl.ObservePrice("ethereum", d("105"), true)
	if !ctrl.State("ethereum").HighestPrice.Equal(d("110")) {
		t.Fatalf("high-water mark=%s", ctrl.State("ethereum").HighestPrice)
	}

	exit := ctrl.CheckStopLoss("ethereum", PositionView{
		Position: d("3"), AvgCost: d("100"), Price: d("108"), Volatility: 0.07,
	})
	if exit == nil || exit.Kind != ExitTrailingStop {
		t.Fatalf("expected trailing stop, got %+v", exit)
	}
	if !exit.TriggerPrice.Equal(d("108.35")) || !exit.Quantity.Equal(d("1.5")) {
		t.Fatalf("unexpected trailing exit: %+v", exit)
	}

	cfg := DefaultConfig()
	cfg.UseTrailingStop = false
	off := NewInMemory(cfg)
	off.RecordBuy("ethereum", d("110"), now)
	if exit := off.CheckStopLoss("ethereum", PositionView{
		Position: d("3"), AvgCost: d("100"), Price: d("108"), Volatility: 0.07,
	}); exit != nil {
		t.Fatalf("trailing disabled, got %+v", exit)
	}
}

func TestCheckStopLossDynamicBeforeTrailing(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	ctrl.RecordBuy("bitcoin", d("100"), time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	ctrl.ObservePrice("bitcoin", d("110"), true)

	// 97 is under both the dynamic stop (97.75) and the trailing stop (108.35).
	exit := ctrl.CheckStopLoss("bitcoin", PositionView{
		Position: d("2"), AvgCost: d("100"), Price: d("97"), Volatility: 0.12,
	})
	if exit == nil || exit.Kind != ExitDynamicStop {
		t.Fatalf("expected dynamic stop to win, got %+v", exit)
	}
	if !exit.TriggerPrice.Equal(d("97.75")) {
		t.Fatalf("trigger=%s", exit.TriggerPrice)
	}
}

func TestCooldown(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if !ctrl.CooldownElapsed("bitcoin", t0) {
		t.Fatal("unseen asset must not be cooling down")
	}
	ctrl.RecordBuy("bitcoin", d("50"), t0)
	if ctrl.CooldownElapsed("bitcoin", t0.Add(10*time.Minute)) {
		t.Fatal("cooldown should still apply after 10 minutes")
	}
	if !ctrl.CooldownElapsed("bitcoin", t0.Add(15*time.Minute)) {
		t.Fatal("cooldown should elapse after 15 minutes")
	}

	// Going flat keeps the trade timestamp.
	ctrl.RecordSell("bitcoin", decimal.Zero, t0.Add(20*time.Minute), "")
	st := ctrl.State("bitcoin")
	if !st.HighestPrice.IsZero() || !st.OpenedAt.IsZero() {
		t.Fatalf("flat state not cleared: %+v", st)
	}
	if ctrl.CooldownElapsed("bitcoin", t0.Add(25*time.Minute)) {
		t.Fatal("cooldown must survive a flat reset")
	}
}

func TestCheckPeriodic(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctrl.Seed("bitcoin", ledger.Activity{LastTradeAt: t0, OpenedAt: t0})

	if exit := ctrl.CheckPeriodic("bitcoin", d("5"), d("60"), t0.Add(71*time.Hour)); exit != nil {
		t.Fatalf("too early, got %+v", exit)
	}
	exit := ctrl.CheckPeriodic("bitcoin", d("5"), d("60"), t0.Add(72*time.Hour))
	if exit == nil || exit.Kind != ExitPeriodic || !exit.Quantity.Equal(d("0.5")) {
		t.Fatalf("expected periodic trim of 0.5, got %+v", exit)
	}

	ctrl.RecordSell("bitcoin", d("4.5"), t0.Add(72*time.Hour), ExitPeriodic)
	if exit := ctrl.CheckPeriodic("bitcoin", d("4.5"), d("60"), t0.Add(100*time.Hour)); exit != nil {
		t.Fatalf("clock should restart at the last sell, got %+v", exit)
	}
	if ctrl.GetMetrics().PeriodicExits != 1 {
		t.Fatalf("PeriodicExits=%d", ctrl.GetMetrics().PeriodicExits)
	}

	// Seed never overwrites a known asset.
	ctrl.Seed("bitcoin", ledger.Activity{})
	if ctrl.State("bitcoin").LastSellAt.IsZero() {
		t.Fatal("Seed overwrote live state")
	}
}

func TestCheckPeriodicStartsClockForUnknownPosition(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if exit := ctrl.CheckPeriodic("solana", d("1"), d("20"), now); exit != nil {
		t.Fatalf("unexpected exit %+v", exit)
	}
	if !ctrl.State("solana").OpenedAt.Equal(now) {
		t.Fatalf("OpenedAt=%v, expected %v", ctrl.State("solana").OpenedAt, now)
	}
}

func TestForget(t *testing.T) {
	ctrl := NewInMemory(DefaultConfig())
	ctrl.RecordBuy("bitcoin", d("50"), time.Now())
	ctrl.Forget()
	if !ctrl.State("bitcoin").LastTradeAt.IsZero() {
		t.Fatal("state survived Forget")
	}
}
