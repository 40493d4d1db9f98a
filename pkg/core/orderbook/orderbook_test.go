package orderbook

import (
	"testing"

	"github.com/openexch/excore/pkg/core"
)

var nextID uint64

func lim(side core.Side, price, qty int64) *core.Order {
	nextID++
	return &core.Order{
		ID:       nextID,
		Side:     side,
		Type:     core.Limit,
		Price:    price,
		Quantity: qty,
	}
}

func TestBestPrices(t *testing.T) {
	b := New()

	if _, ok := b.BestBid(); ok {
		t.Error("empty book should have no best bid")
	}

	b.Insert(lim(core.Buy, 100, 10))
	b.Insert(lim(core.Buy, 102, 5))
	b.Insert(lim(core.Sell, 105, 7))
	b.Insert(lim(core.Sell, 103, 3))

	if bid, _ := b.BestBid(); bid != 102 {
		t.Errorf("best bid = %d, want 102", bid)
	}
	if ask, _ := b.BestAsk(); ask != 103 {
		t.Errorf("best ask = %d, want 103", ask)
	}
	if mid := b.MidPrice(); mid != 102 {
		t.Errorf("mid = %d, want 102", mid)
	}
}

// TestPriceTimePriority: better price first, FIFO within a price.
func TestPriceTimePriority(t *testing.T) {
	b := New()

	first := lim(core.Sell, 100, 1)
	second := lim(core.Sell, 100, 1)
	cheaper := lim(core.Sell, 99, 1)
	b.Insert(first)
	b.Insert(second)
	b.Insert(cheaper)

	if got := b.PeekBest(core.Sell); got.ID != cheaper.ID {
		t.Fatalf("peek = order %d, want cheapest %d", got.ID, cheaper.ID)
	}
	b.Remove(cheaper.ID)
	if got := b.PeekBest(core.Sell); got.ID != first.ID {
		t.Fatalf("peek = order %d, want first-in %d", got.ID, first.ID)
	}
	b.Remove(first.ID)
	if got := b.PeekBest(core.Sell); got.ID != second.ID {
		t.Fatalf("peek = order %d, want %d", got.ID, second.ID)
	}
}

func TestRemove(t *testing.T) {
	b := New()
	o := lim(core.Buy, 100, 10)
	b.Insert(o)

	if !b.Contains(o.ID) {
		t.Fatal("inserted order not in book")
	}
	got, ok := b.Remove(o.ID)
	if !ok || got.ID != o.ID {
		t.Fatalf("Remove = (%v, %v)", got, ok)
	}
	if b.Contains(o.ID) {
		t.Error("removed order still in book")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("drained level should leave no best bid")
	}
	if _, ok := b.Remove(o.ID); ok {
		t.Error("double remove should report not resting")
	}
}

func TestLevels(t *testing.T) {
	b := New()
	b.Insert(lim(core.Buy, 100, 10))
	b.Insert(lim(core.Buy, 100, 5))
	b.Insert(lim(core.Buy, 98, 7))
	b.Insert(lim(core.Buy, 99, 2))

	levels := b.Levels(core.Buy, 2)
	if len(levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(levels))
	}
	if levels[0].Price != 100 || levels[0].Qty != 15 {
		t.Errorf("level 0 = %+v, want {100 15}", levels[0])
	}
	if levels[1].Price != 99 || levels[1].Qty != 2 {
		t.Errorf("level 1 = %+v, want {99 2}", levels[1])
	}

	if depth := b.DepthAt(core.Buy, 100); depth != 15 {
		t.Errorf("DepthAt(100) = %d, want 15", depth)
	}
}

// TestCostToFill: sweep cost walks levels best-first and respects the limit
// price cutoff.
func TestCostToFill(t *testing.T) {
	b := New()
	b.Insert(lim(core.Sell, 100, 5))
	b.Insert(lim(core.Sell, 101, 5))
	b.Insert(lim(core.Sell, 110, 5))

	// Unbounded sweep of 8 lots: 5@100 + 3@101.
	cost, fillable := b.CostToFill(core.Sell, 8, 0)
	if cost != 5*100+3*101 || fillable != 8 {
		t.Errorf("CostToFill(8, 0) = (%d, %d), want (803, 8)", cost, fillable)
	}

	// Limit 101 cuts off the 110 level.
	cost, fillable = b.CostToFill(core.Sell, 12, 101)
	if cost != 5*100+5*101 || fillable != 10 {
		t.Errorf("CostToFill(12, 101) = (%d, %d), want (1005, 10)", cost, fillable)
	}

	// More than the book holds.
	_, fillable = b.CostToFill(core.Sell, 100, 0)
	if fillable != 15 {
		t.Errorf("fillable = %d, want 15", fillable)
	}
}

// TestCostToFillFunc drives the per-order walk: skipped orders drop out of
// the total, a stop ends the walk where a self-trade-prevented match would
// end.
func TestCostToFillFunc(t *testing.T) {
	b := New()
	mine := lim(core.Sell, 100, 5)
	mine.UserID = "me"
	b.Insert(mine)
	other := lim(core.Sell, 101, 5)
	other.UserID = "them"
	b.Insert(other)

	// Skipping my own order leaves only the 101 level.
	cost, fillable := b.CostToFillFunc(core.Sell, 10, 0, func(o *core.Order) (bool, bool) {
		return o.UserID == "me", false
	})
	if cost != 5*101 || fillable != 5 {
		t.Errorf("skip own = (%d, %d), want (505, 5)", cost, fillable)
	}

	// Stopping at my own order counts nothing past the best level.
	_, fillable = b.CostToFillFunc(core.Sell, 10, 0, func(o *core.Order) (bool, bool) {
		return false, o.UserID == "me"
	})
	if fillable != 0 {
		t.Errorf("stop at own fillable = %d, want 0", fillable)
	}

	// A nil visit matches CostToFill.
	cost, fillable = b.CostToFillFunc(core.Sell, 8, 0, nil)
	if cost != 5*100+3*101 || fillable != 8 {
		t.Errorf("nil visit = (%d, %d), want (803, 8)", cost, fillable)
	}
}

func stop(typ core.OrderType, side core.Side, stopPrice int64) *core.Order {
	nextID++
	return &core.Order{
		ID:        nextID,
		Side:      side,
		Type:      typ,
		StopPrice: stopPrice,
		Quantity:  1,
		Status:    core.StatusPendingTrigger,
	}
}

// TestTriggerDirections: buy stop-loss fires on a rise through its stop,
// sell stop-loss on a fall, take-profits the other way around.
func TestTriggerDirections(t *testing.T) {
	b := New()

	buyStop := stop(core.StopLoss, core.Buy, 105)   // fires at >= 105
	sellStop := stop(core.StopLoss, core.Sell, 95)  // fires at <= 95
	sellTP := stop(core.TakeProfit, core.Sell, 110) // fires at >= 110
	buyTP := stop(core.TakeProfit, core.Buy, 90)    // fires at <= 90
	for _, o := range []*core.Order{buyStop, sellStop, sellTP, buyTP} {
		b.AddTrigger(o)
	}
	if b.PendingTriggers() != 4 {
		t.Fatalf("pending = %d, want 4", b.PendingTriggers())
	}

	if fired := b.Triggered(100); len(fired) != 0 {
		t.Fatalf("nothing should fire at 100, got %d", len(fired))
	}
	fired := b.Triggered(106)
	if len(fired) != 1 || fired[0].ID != buyStop.ID {
		t.Fatalf("at 106 want buy stop-loss, got %v", fired)
	}
	fired = b.Triggered(94)
	if len(fired) != 1 || fired[0].ID != sellStop.ID {
		t.Fatalf("at 94 want sell stop-loss, got %v", fired)
	}
	fired = b.Triggered(112)
	if len(fired) != 1 || fired[0].ID != sellTP.ID {
		t.Fatalf("at 112 want sell take-profit, got %v", fired)
	}
	fired = b.Triggered(88)
	if len(fired) != 1 || fired[0].ID != buyTP.ID {
		t.Fatalf("at 88 want buy take-profit, got %v", fired)
	}
	if b.PendingTriggers() != 0 {
		t.Errorf("pending = %d after all fired", b.PendingTriggers())
	}
}

func TestRemoveTrigger(t *testing.T) {
	b := New()
	o := stop(core.StopLoss, core.Sell, 95)
	b.AddTrigger(o)

	got, ok := b.RemoveTrigger(o.ID)
	if !ok || got.ID != o.ID {
		t.Fatalf("RemoveTrigger = (%v, %v)", got, ok)
	}
	if fired := b.Triggered(90); len(fired) != 0 {
		t.Error("removed trigger must not fire")
	}
}

// TestTrailingStop: a sell trailing stop follows the high up and fires on a
// callbackRate retrace.
func TestTrailingStop(t *testing.T) {
	b := New()
	nextID++
	o := &core.Order{
		ID:           nextID,
		Side:         core.Sell,
		Type:         core.TrailingStopMarket,
		CallbackRate: 100, // 1%
		Quantity:     1,
		Status:       core.StatusPendingTrigger,
	}
	b.AddTrigger(o)

	// Ratchet the extreme up; no retrace yet.
	for _, p := range []int64{10000, 10500, 11000} {
		if fired := b.Triggered(p); len(fired) != 0 {
			t.Fatalf("fired on the way up at %d", p)
		}
	}
	// 1% below the 11000 high is 10890.
	if fired := b.Triggered(10900); len(fired) != 0 {
		t.Fatal("10900 is inside the callback, must not fire")
	}
	fired := b.Triggered(10890)
	if len(fired) != 1 || fired[0].ID != o.ID {
		t.Fatalf("want trailing stop to fire at 10890, got %v", fired)
	}
}

// TestTrailingStopActivation: the trail only starts once activationPrice is
// touched.
func TestTrailingStopActivation(t *testing.T) {
	b := New()
	nextID++
	o := &core.Order{
		ID:              nextID,
		Side:            core.Sell,
		Type:            core.TrailingStopMarket,
		CallbackRate:    100,
		ActivationPrice: 11000,
		Quantity:        1,
		Status:          core.StatusPendingTrigger,
	}
	b.AddTrigger(o)

	// Deep drop before activation: inert.
	if fired := b.Triggered(9000); len(fired) != 0 {
		t.Fatal("must not fire before activation")
	}
	if fired := b.Triggered(11000); len(fired) != 0 {
		t.Fatal("activation tick itself must not fire")
	}
	if fired := b.Triggered(10890); len(fired) != 1 {
		t.Fatalf("want fire on 1%% retrace after activation, got %d", len(fired))
	}
}
