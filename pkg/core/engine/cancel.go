package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/metrics"
)

// Cancel cancels an open order. version is the order version the caller
// observed; pass a negative version to cancel unconditionally. A cancel
// that arrives after the order went terminal returns
// ErrConcurrentModification with a copy of the final order state, so the
// caller can see it lost the race rather than that the order vanished.
func (e *Engine) Cancel(userID string, orderID uint64, version int64) (*core.Order, error) {
	o, ok := e.lookupOrder(orderID)
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", core.ErrNotFound, orderID)
	}

	sh := e.shardFor(o.Symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if o.Status.IsTerminal() {
		cp := *o
		return &cp, fmt.Errorf("%w: order %d already %s", core.ErrConcurrentModification, orderID, o.Status)
	}
	if version >= 0 && version != o.Version {
		cp := *o
		return &cp, fmt.Errorf("%w: order %d at version %d, cancel saw %d",
			core.ErrConcurrentModification, orderID, o.Version, version)
	}

	e.removeOpenLocked(sh, o)

	o.Status = core.StatusCanceled
	o.Version++
	o.UpdatedAt = e.clock.Now().UnixMilli()
	if err := e.settler.ReleaseReserve(o); err != nil {
		e.log.Error("release on cancel failed", zap.Uint64("order", o.ID), zap.Error(err))
	}
	e.settler.PersistOrder(o)
	e.emitOrder(o)
	metrics.OrdersCanceled.WithLabelValues(o.Symbol).Inc()

	cp := *o
	return &cp, nil
}

// CancelByClientID cancels by the user's own order identifier.
func (e *Engine) CancelByClientID(userID, clientOrderID string, version int64) (*core.Order, error) {
	o, ok := e.orderByClientID(userID, clientOrderID)
	if !ok {
		return nil, fmt.Errorf("%w: client order %q", core.ErrNotFound, clientOrderID)
	}
	return e.Cancel(userID, o.ID, version)
}

// removeOpenLocked detaches a non-terminal order from wherever it waits:
// the book, the trigger index, or a parent's child list.
func (e *Engine) removeOpenLocked(sh *shard, o *core.Order) {
	sh.book.Remove(o.ID)
	sh.book.RemoveTrigger(o.ID)
	delete(sh.expiring, o.ID)

	if o.ParentID != 0 {
		e.ordersMu.Lock()
		kids := e.children[o.ParentID]
		for i, k := range kids {
			if k.ID == o.ID {
				e.children[o.ParentID] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
		if len(e.children[o.ParentID]) == 0 {
			delete(e.children, o.ParentID)
		}
		e.ordersMu.Unlock()
	}
}

// Amend replaces a resting limit order's price and/or quantity under
// optimistic concurrency. The order loses time priority: it re-enters the
// book as if newly placed. Executed quantity carries over; newQty must
// leave room for it. Pass 0 to keep a field.
func (e *Engine) Amend(userID string, orderID uint64, version, newPrice, newQty int64) (*core.Order, error) {
	o, ok := e.lookupOrder(orderID)
	if !ok || o.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", core.ErrNotFound, orderID)
	}

	in, err := e.registry.Get(o.Symbol)
	if err != nil {
		return nil, err
	}

	sh := e.shardFor(o.Symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if o.Status.IsTerminal() {
		cp := *o
		return &cp, fmt.Errorf("%w: order %d already %s", core.ErrConcurrentModification, orderID, o.Status)
	}
	if version >= 0 && version != o.Version {
		cp := *o
		return &cp, fmt.Errorf("%w: order %d at version %d, amend saw %d",
			core.ErrConcurrentModification, orderID, o.Version, version)
	}
	if !sh.book.Contains(o.ID) {
		return nil, fmt.Errorf("%w: order %d is not resting", core.ErrValidation, orderID)
	}

	price := o.Price
	if newPrice > 0 {
		price = newPrice
	}
	qty := o.Quantity
	if newQty > 0 {
		qty = newQty
	}
	if qty <= o.ExecutedQty {
		return nil, fmt.Errorf("%w: quantity %d not above executed %d", core.ErrValidation, qty, o.ExecutedQty)
	}
	if err := in.CheckNotional(in.TicksToPrice(price), in.LotsToQty(qty)); err != nil {
		return nil, err
	}

	// Reservation tracks the remainder: quote units for buys and margin,
	// base lots for spot sells.
	var want int64
	switch {
	case in.Market.IsLeveraged():
		if o.ReduceOnly {
			want = 0
		} else {
			want = in.RequiredMargin(price*(qty-o.ExecutedQty), o.Leverage)
		}
	case o.Side == core.Buy:
		want = price * (qty - o.ExecutedQty)
	default:
		want = qty - o.ExecutedQty
	}

	key := core.WalletKey{UserID: o.UserID, Asset: o.ReserveAsset, Type: o.ReserveWallet}
	if want > o.Reserved {
		if err := e.ledger.Reserve(key, want-o.Reserved); err != nil {
			return nil, err
		}
	} else if want < o.Reserved {
		if err := e.ledger.Release(key, o.Reserved-want); err != nil {
			return nil, err
		}
	}
	o.Reserved = want

	sh.book.Remove(o.ID)
	o.Price = price
	o.Quantity = qty
	o.Version++
	o.UpdatedAt = e.clock.Now().UnixMilli()

	return o, e.runLocked(sh, in, o, true)
}
