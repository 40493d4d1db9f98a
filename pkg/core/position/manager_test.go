package position

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
)

func perp() *instrument.Instrument {
	one := decimal.NewFromInt(1)
	return &instrument.Instrument{
		Symbol:               "BTC-USDT-PERP",
		BaseAsset:            "BTC",
		QuoteAsset:           "USDT",
		Market:               core.Futures,
		Active:               true,
		TickSize:             one,
		StepSize:             one,
		MinPrice:             one,
		MaxPrice:             decimal.NewFromInt(1_000_000),
		MinQty:               one,
		MaxQty:               decimal.NewFromInt(1_000_000),
		AllowMarketOrders:    true,
		MaxLeverage:          20,
		InitialMarginBps:     500,
		MaintenanceMarginBps: 250,
	}
}

func longKey(user string) core.PositionKey {
	return core.PositionKey{UserID: user, Symbol: "BTC-USDT-PERP", Side: core.PositionLong}
}

func shortKey(user string) core.PositionKey {
	return core.PositionKey{UserID: user, Symbol: "BTC-USDT-PERP", Side: core.PositionShort}
}

// TestOpenAndIncrease: entry price is the VWAP of the opening fills and
// margin accrues per fill at the order's leverage.
func TestOpenAndIncrease(t *testing.T) {
	m := NewManager(nil)
	in := perp()
	k := longKey("alice")

	eff := m.ApplyFill(k, core.Buy, 100, 10, 10, core.Cross, in)
	if eff.MarginDelta != 100 { // 1000 notional / 10x
		t.Errorf("open margin = %d, want 100", eff.MarginDelta)
	}

	eff = m.ApplyFill(k, core.Buy, 110, 10, 10, core.Cross, in)
	if eff.MarginDelta != 110 {
		t.Errorf("increase margin = %d, want 110", eff.MarginDelta)
	}

	p, err := m.Get(k)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Size != 20 {
		t.Errorf("size = %d, want 20", p.Size)
	}
	if p.EntryPrice != 105 { // (100×10 + 110×10) / 20
		t.Errorf("entry = %d, want 105", p.EntryPrice)
	}
	if p.Margin != 210 {
		t.Errorf("margin = %d, want 210", p.Margin)
	}
}

// TestReduceRealizesPnl: a decrease realizes (price − entry) × qty in the
// position's direction and releases margin pro rata.
func TestReduceRealizesPnl(t *testing.T) {
	m := NewManager(nil)
	in := perp()
	k := longKey("alice")

	m.ApplyFill(k, core.Buy, 100, 10, 10, core.Cross, in)

	eff := m.ApplyFill(k, core.Sell, 110, 4, 10, core.Cross, in)
	if eff.RealizedPnl != 40 {
		t.Errorf("pnl = %d, want 40", eff.RealizedPnl)
	}
	if eff.MarginDelta != -40 { // 100 × 4/10 released
		t.Errorf("margin delta = %d, want -40", eff.MarginDelta)
	}
	if eff.Closed {
		t.Error("partial reduce must not close")
	}

	eff = m.ApplyFill(k, core.Sell, 90, 6, 10, core.Cross, in)
	if eff.RealizedPnl != -60 {
		t.Errorf("pnl = %d, want -60", eff.RealizedPnl)
	}
	if !eff.Closed {
		t.Error("full reduce must close")
	}

	p, _ := m.Get(k)
	if p.Status != core.PositionClosed || p.Size != 0 || p.Margin != 0 {
		t.Errorf("closed position = %+v", p)
	}
	if p.RealizedPnl != -20 {
		t.Errorf("cumulative pnl = %d, want -20", p.RealizedPnl)
	}
}

// TestShortPnlDirection: shorts profit when price falls.
func TestShortPnlDirection(t *testing.T) {
	m := NewManager(nil)
	in := perp()
	k := shortKey("bob")

	m.ApplyFill(k, core.Sell, 100, 10, 10, core.Cross, in)
	eff := m.ApplyFill(k, core.Buy, 90, 10, 10, core.Cross, in)
	if eff.RealizedPnl != 100 {
		t.Errorf("short pnl = %d, want 100", eff.RealizedPnl)
	}
}

// TestFlip: an oversized reduce in one-way mode closes the position and
// opens the opposite side with the remainder.
func TestFlip(t *testing.T) {
	m := NewManager(nil)
	in := perp()
	k := longKey("alice")

	m.ApplyFill(k, core.Buy, 100, 10, 10, core.Cross, in)
	eff := m.ApplyFill(k, core.Sell, 110, 15, 10, core.Cross, in)

	if eff.RealizedPnl != 100 { // close 10 at +10 each
		t.Errorf("pnl = %d, want 100", eff.RealizedPnl)
	}
	if !eff.Closed {
		t.Error("long must report closed")
	}
	if eff.FlipOpened == nil {
		t.Fatal("flip must open the short")
	}
	if eff.FlipOpened.Key.Side != core.PositionShort || eff.FlipOpened.Size != 5 {
		t.Errorf("flip = %+v, want short size 5", eff.FlipOpened)
	}
	if eff.FlipOpened.EntryPrice != 110 {
		t.Errorf("flip entry = %d, want 110", eff.FlipOpened.EntryPrice)
	}
	// -100 released from the long, +55 locked for the short.
	if eff.MarginDelta != -100+55 {
		t.Errorf("net margin delta = %d, want -45", eff.MarginDelta)
	}

	if size := m.Size(shortKey("alice")); size != 5 {
		t.Errorf("short size = %d, want 5", size)
	}
}

// TestResolveSide: one-way orders reduce an open opposite position first.
func TestResolveSide(t *testing.T) {
	m := NewManager(nil)
	in := perp()

	if ps := m.ResolveSide("alice", "BTC-USDT-PERP", core.PositionBoth, core.Buy); ps != core.PositionLong {
		t.Errorf("flat buy resolves to %s, want LONG", ps)
	}

	m.ApplyFill(shortKey("alice"), core.Sell, 100, 10, 10, core.Cross, in)
	if ps := m.ResolveSide("alice", "BTC-USDT-PERP", core.PositionBoth, core.Buy); ps != core.PositionShort {
		t.Errorf("buy against open short resolves to %s, want SHORT", ps)
	}

	// Hedge mode names the side explicitly.
	if ps := m.ResolveSide("alice", "BTC-USDT-PERP", core.PositionLong, core.Buy); ps != core.PositionLong {
		t.Errorf("explicit side resolves to %s, want LONG", ps)
	}
}

// TestLiquidationPrice: long 10x with 2.5% maintenance liquidates 7.5%
// below entry; the short mirror sits above.
func TestLiquidationPrice(t *testing.T) {
	m := NewManager(nil)
	in := perp()

	m.ApplyFill(longKey("alice"), core.Buy, 1000, 10, 10, core.Cross, in)
	p, _ := m.Get(longKey("alice"))
	// 1000 − (1000/10 − 1000×250/10000) = 1000 − 75
	if p.LiquidationPrice != 925 {
		t.Errorf("long liq price = %d, want 925", p.LiquidationPrice)
	}

	m.ApplyFill(shortKey("bob"), core.Sell, 1000, 10, 10, core.Cross, in)
	p, _ = m.Get(shortKey("bob"))
	if p.LiquidationPrice != 1075 {
		t.Errorf("short liq price = %d, want 1075", p.LiquidationPrice)
	}
}

// TestUpdateMark returns exactly the breached positions.
func TestUpdateMark(t *testing.T) {
	m := NewManager(nil)
	in := perp()

	m.ApplyFill(longKey("alice"), core.Buy, 1000, 10, 10, core.Cross, in) // liq 925
	m.ApplyFill(longKey("bob"), core.Buy, 1000, 10, 2, core.Cross, in)   // liq 525

	if breached := m.UpdateMark("BTC-USDT-PERP", 950); len(breached) != 0 {
		t.Fatalf("no breach at 950, got %d", len(breached))
	}
	breached := m.UpdateMark("BTC-USDT-PERP", 900)
	if len(breached) != 1 || breached[0].Key.UserID != "alice" {
		t.Fatalf("at 900 want alice only, got %v", breached)
	}
	if m.MarkPrice("BTC-USDT-PERP") != 900 {
		t.Errorf("mark = %d, want 900", m.MarkPrice("BTC-USDT-PERP"))
	}
}

func TestMarkLiquidated(t *testing.T) {
	m := NewManager(nil)
	in := perp()
	k := longKey("alice")

	m.ApplyFill(k, core.Buy, 1000, 10, 10, core.Cross, in)
	m.ApplyFill(k, core.Sell, 900, 10, 10, core.Cross, in) // forced close fills

	final, err := m.MarkLiquidated(k)
	if err != nil {
		t.Fatalf("MarkLiquidated: %v", err)
	}
	if final.Status != core.PositionLiquidated {
		t.Errorf("status = %s, want LIQUIDATED", final.Status)
	}

	if _, err := m.MarkLiquidated(longKey("nobody")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestUnrealizedPnl(t *testing.T) {
	p := core.Position{
		Key:        core.PositionKey{Side: core.PositionLong},
		Size:       10,
		EntryPrice: 100,
	}
	if got := p.UnrealizedPnl(110); got != 100 {
		t.Errorf("long upnl = %d, want 100", got)
	}
	p.Key.Side = core.PositionShort
	if got := p.UnrealizedPnl(110); got != -100 {
		t.Errorf("short upnl = %d, want -100", got)
	}
}

func TestRestoreInstallsCopy(t *testing.T) {
	m := NewManager(nil)
	p := core.Position{
		Key:        longKey("alice"),
		Size:       5,
		EntryPrice: 100,
		Status:     core.PositionOpen,
	}
	m.Restore(p)

	got, err := m.Get(p.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Size != 5 || got.EntryPrice != 100 {
		t.Errorf("restored = %+v", got)
	}
}
