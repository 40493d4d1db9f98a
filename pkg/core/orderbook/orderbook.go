// Package orderbook is the per-instrument resting-order index: two sides in
// strict price-time priority plus a trigger index for stop orders. The book
// never matches by itself; the engine walks it under the symbol's writer
// lock. MARKET orders are never inserted.
package orderbook

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/openexch/excore/pkg/core"
)

// PriceLevel aggregates resting quantity at one price.
type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Book holds resting orders for one instrument. Bids are ordered price
// descending, asks ascending; ties at a price break by insertion order
// (FIFO slices per level).
type Book struct {
	mu sync.RWMutex

	// Heap-based best price tracking (O(1) peek).
	bidHeap *MaxPriceHeap
	askHeap *MinPriceHeap

	// Price level queues (FIFO matching at each price).
	bids map[int64][]*core.Order
	asks map[int64][]*core.Order

	// Order index for O(1) cancellation.
	index map[uint64]*core.Order

	triggers *triggerIndex

	lastPrice int64 // most recent fill price
}

func New() *Book {
	bidHeap := &MaxPriceHeap{}
	askHeap := &MinPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &Book{
		bidHeap:  bidHeap,
		askHeap:  askHeap,
		bids:     make(map[int64][]*core.Order),
		asks:     make(map[int64][]*core.Order),
		index:    make(map[uint64]*core.Order),
		triggers: newTriggerIndex(),
	}
}

// Insert rests order on its side at its limit price.
func (b *Book) Insert(o *core.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o.Side == core.Buy {
		if len(b.bids[o.Price]) == 0 {
			heap.Push(b.bidHeap, o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
	} else {
		if len(b.asks[o.Price]) == 0 {
			heap.Push(b.askHeap, o.Price)
		}
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
	b.index[o.ID] = o
}

// Remove takes an order out of the book by id. Returns the order and whether
// it was resting.
func (b *Book) Remove(id uint64) (*core.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(id)
}

func (b *Book) removeLocked(id uint64) (*core.Order, bool) {
	o, ok := b.index[id]
	if !ok {
		return nil, false
	}

	levels := b.bids
	if o.Side == core.Sell {
		levels = b.asks
	}
	arr := levels[o.Price]
	for i, ro := range arr {
		if ro.ID == id {
			levels[o.Price] = append(arr[:i], arr[i+1:]...)
			break
		}
	}
	if len(levels[o.Price]) == 0 {
		delete(levels, o.Price)
		b.removeFromHeap(o.Side, o.Price)
	}
	delete(b.index, id)
	return o, true
}

// removeFromHeap removes a drained price level (O(N) worst case, but rare).
func (b *Book) removeFromHeap(side core.Side, price int64) {
	if side == core.Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if (*b.bidHeap)[i] == price {
				heap.Remove(b.bidHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < b.askHeap.Len(); i++ {
		if (*b.askHeap)[i] == price {
			heap.Remove(b.askHeap, i)
			return
		}
	}
}

// BestBid returns the highest bid price.
func (b *Book) BestBid() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// BestAsk returns the lowest ask price.
func (b *Book) BestAsk() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// PeekBest returns the first order in price-time priority on side, without
// removing it. Nil when the side is empty.
func (b *Book) PeekBest(side core.Side) *core.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if side == core.Buy {
		if b.bidHeap.Len() == 0 {
			return nil
		}
		return b.bids[b.bidHeap.Peek()][0]
	}
	if b.askHeap.Len() == 0 {
		return nil
	}
	return b.asks[b.askHeap.Peek()][0]
}

// Contains reports whether id is resting in the book.
func (b *Book) Contains(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[id]
	return ok
}

// DepthAt returns the total resting lots on side at price.
func (b *Book) DepthAt(side core.Side, price int64) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == core.Sell {
		levels = b.asks
	}
	var qty int64
	for _, o := range levels[price] {
		qty += o.Remaining()
	}
	return qty
}

// Levels returns up to limit aggregated price levels on side, best first.
// limit <= 0 means all levels.
func (b *Book) Levels(side core.Side, limit int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == core.Sell {
		levels = b.asks
	}

	out := make([]PriceLevel, 0, len(levels))
	for price, orders := range levels {
		var qty int64
		for _, o := range orders {
			qty += o.Remaining()
		}
		if qty > 0 {
			out = append(out, PriceLevel{Price: price, Qty: qty})
		}
	}

	// Best first: bids high→low, asks low→high.
	if side == core.Buy {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CostToFill walks side's levels best-first and returns the quote units
// (price × lots) needed to consume qty lots, plus how many lots the side can
// actually fill. limitPrice = 0 means no price limit (MARKET); otherwise
// levels beyond the limit are not counted. Used to size MARKET reservations
// and to pre-check FOK orders.
func (b *Book) CostToFill(side core.Side, qty, limitPrice int64) (cost, fillable int64) {
	return b.CostToFillFunc(side, qty, limitPrice, nil)
}

// CostToFillFunc is CostToFill with per-order control: visit runs for every
// resting order in match order and can skip one (left out of the total, walk
// continues) or stop the walk. The engine uses it to pre-check FOK orders
// under self-trade prevention, where the submitter's own resting orders are
// expired or end the match instead of trading. A nil visit counts everything.
func (b *Book) CostToFillFunc(side core.Side, qty, limitPrice int64, visit func(*core.Order) (skip, stop bool)) (cost, fillable int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.bids
	if side == core.Sell {
		levels = b.asks
	}
	prices := make([]int64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	if side == core.Buy {
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	} else {
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	}

	for _, price := range prices {
		if fillable >= qty {
			break
		}
		if limitPrice > 0 {
			if side == core.Sell && price > limitPrice {
				break // asks above the buyer's limit
			}
			if side == core.Buy && price < limitPrice {
				break // bids below the seller's limit
			}
		}
		for _, o := range levels[price] {
			if fillable >= qty {
				break
			}
			if visit != nil {
				skip, stop := visit(o)
				if stop {
					return cost, fillable
				}
				if skip {
					continue
				}
			}
			take := qty - fillable
			if r := o.Remaining(); take > r {
				take = r
			}
			cost += price * take
			fillable += take
		}
	}
	return cost, fillable
}

// SetLastPrice records the most recent fill price.
func (b *Book) SetLastPrice(p int64) {
	b.mu.Lock()
	b.lastPrice = p
	b.mu.Unlock()
}

// LastPrice returns the most recent fill price, 0 if none.
func (b *Book) LastPrice() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// MidPrice returns (bestBid+bestAsk)/2, 0 when the book is one-sided.
func (b *Book) MidPrice() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidHeap.Len() == 0 || b.askHeap.Len() == 0 {
		return 0
	}
	return (b.bidHeap.Peek() + b.askHeap.Peek()) / 2
}

// AddTrigger parks a stop order in the trigger index.
func (b *Book) AddTrigger(o *core.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.triggers.add(o)
}

// RemoveTrigger removes a pending stop order by id.
func (b *Book) RemoveTrigger(id uint64) (*core.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.triggers.remove(id)
}

// Triggered pops every pending order whose condition fires at price.
func (b *Book) Triggered(price int64) []*core.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.triggers.fire(price)
}

// PendingTriggers returns the number of parked stop orders.
func (b *Book) PendingTriggers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.triggers.size()
}
