package orderbook

import (
	"container/heap"

	"github.com/openexch/excore/pkg/core"
)

// triggerIndex parks PENDING_TRIGGER orders until a trade tick satisfies
// their condition. Orders split into two classes:
//
//   - rise: fire when price >= stopPrice (buy stop-loss, sell take-profit)
//   - fall: fire when price <= stopPrice (sell stop-loss, buy take-profit)
//
// Each class keeps its stop prices in a heap ordered so the next price to
// fire sits on top. Trailing stops track the best favorable price since
// activation and are re-evaluated per tick.
type triggerIndex struct {
	riseHeap *MinPriceHeap               // lowest rise-stop fires first
	fallHeap *MaxPriceHeap               // highest fall-stop fires first
	rise     map[int64][]*core.Order     // stopPrice → FIFO
	fall     map[int64][]*core.Order
	trailing []*trailingEntry
	byID     map[uint64]*core.Order
}

type trailingEntry struct {
	order   *core.Order
	active  bool  // activationPrice reached
	extreme int64 // best favorable price since activation
}

func newTriggerIndex() *triggerIndex {
	riseHeap := &MinPriceHeap{}
	fallHeap := &MaxPriceHeap{}
	heap.Init(riseHeap)
	heap.Init(fallHeap)
	return &triggerIndex{
		riseHeap: riseHeap,
		fallHeap: fallHeap,
		rise:     make(map[int64][]*core.Order),
		fall:     make(map[int64][]*core.Order),
		byID:     make(map[uint64]*core.Order),
	}
}

// triggersOnRise classifies the order's condition direction.
func triggersOnRise(o *core.Order) bool {
	switch o.Type {
	case core.StopLoss, core.StopLossLimit:
		return o.Side == core.Buy
	case core.TakeProfit, core.TakeProfitLimit:
		return o.Side == core.Sell
	}
	return false
}

func (ti *triggerIndex) add(o *core.Order) {
	ti.byID[o.ID] = o

	if o.Type == core.TrailingStopMarket {
		e := &trailingEntry{order: o}
		if o.ActivationPrice == 0 {
			e.active = true
		}
		ti.trailing = append(ti.trailing, e)
		return
	}

	if triggersOnRise(o) {
		if len(ti.rise[o.StopPrice]) == 0 {
			heap.Push(ti.riseHeap, o.StopPrice)
		}
		ti.rise[o.StopPrice] = append(ti.rise[o.StopPrice], o)
	} else {
		if len(ti.fall[o.StopPrice]) == 0 {
			heap.Push(ti.fallHeap, o.StopPrice)
		}
		ti.fall[o.StopPrice] = append(ti.fall[o.StopPrice], o)
	}
}

func (ti *triggerIndex) remove(id uint64) (*core.Order, bool) {
	o, ok := ti.byID[id]
	if !ok {
		return nil, false
	}
	delete(ti.byID, id)

	if o.Type == core.TrailingStopMarket {
		for i, e := range ti.trailing {
			if e.order.ID == id {
				ti.trailing = append(ti.trailing[:i], ti.trailing[i+1:]...)
				break
			}
		}
		return o, true
	}

	levels, h := ti.fall, false
	if triggersOnRise(o) {
		levels, h = ti.rise, true
	}
	arr := levels[o.StopPrice]
	for i, ro := range arr {
		if ro.ID == id {
			levels[o.StopPrice] = append(arr[:i], arr[i+1:]...)
			break
		}
	}
	if len(levels[o.StopPrice]) == 0 {
		delete(levels, o.StopPrice)
		ti.removeStop(h, o.StopPrice)
	}
	return o, true
}

func (ti *triggerIndex) removeStop(rise bool, price int64) {
	if rise {
		for i := 0; i < ti.riseHeap.Len(); i++ {
			if (*ti.riseHeap)[i] == price {
				heap.Remove(ti.riseHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < ti.fallHeap.Len(); i++ {
		if (*ti.fallHeap)[i] == price {
			heap.Remove(ti.fallHeap, i)
			return
		}
	}
}

// fire pops every order whose condition is satisfied at price.
func (ti *triggerIndex) fire(price int64) []*core.Order {
	var out []*core.Order

	for ti.riseHeap.Len() > 0 && ti.riseHeap.Peek() <= price {
		stop := heap.Pop(ti.riseHeap).(int64)
		for _, o := range ti.rise[stop] {
			delete(ti.byID, o.ID)
			out = append(out, o)
		}
		delete(ti.rise, stop)
	}

	for ti.fallHeap.Len() > 0 && ti.fallHeap.Peek() >= price {
		stop := heap.Pop(ti.fallHeap).(int64)
		for _, o := range ti.fall[stop] {
			delete(ti.byID, o.ID)
			out = append(out, o)
		}
		delete(ti.fall, stop)
	}

	// Trailing stops: a sell trails the high, firing after a callbackRate
	// retrace down; a buy trails the low, firing on the retrace up.
	kept := ti.trailing[:0]
	for _, e := range ti.trailing {
		o := e.order
		if !e.active {
			if (o.Side == core.Sell && price >= o.ActivationPrice) ||
				(o.Side == core.Buy && price <= o.ActivationPrice) {
				e.active = true
				e.extreme = price
			}
			kept = append(kept, e)
			continue
		}
		fired := false
		if o.Side == core.Sell {
			if price > e.extreme {
				e.extreme = price
			}
			fired = price <= e.extreme-e.extreme*o.CallbackRate/10000
		} else {
			if e.extreme == 0 || price < e.extreme {
				e.extreme = price
			}
			fired = price >= e.extreme+e.extreme*o.CallbackRate/10000
		}
		if fired {
			delete(ti.byID, o.ID)
			out = append(out, o)
		} else {
			kept = append(kept, e)
		}
	}
	ti.trailing = kept

	return out
}

func (ti *triggerIndex) size() int {
	return len(ti.byID)
}
