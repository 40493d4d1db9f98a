package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/core/position"
	"github.com/openexch/excore/pkg/metrics"
)

// OrderRequest is an order as submitted over the wire, prices and
// quantities still in decimal units.
type OrderRequest struct {
	UserID          string
	Symbol          string
	ClientOrderID   string
	Side            core.Side
	Type            core.OrderType
	TimeInForce     core.TimeInForce
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	StopPrice       decimal.Decimal
	ActivationPrice decimal.Decimal
	CallbackRate    int64 // basis points
	PositionSide    core.PositionSide
	Leverage        int64
	MarginType      core.MarginType
	ReduceOnly      bool
	STPMode         core.STPMode
	ParentID        uint64
	ExpiresAt       int64 // unix milliseconds, 0 = no expiry
}

// Submit validates, reserves and matches one order. The returned order
// carries the outcome: FILLED/PARTIALLY_FILLED/NEW after matching,
// PENDING_TRIGGER for parked stop and bracket orders, REJECTED (with a
// non-nil error) when admission failed or a FOK order could not be filled
// whole. Validation failures before an order ID is assigned return a nil
// order.
func (e *Engine) Submit(req OrderRequest) (*core.Order, error) {
	if err := e.identity(req.UserID); err != nil {
		metrics.OrdersRejected.WithLabelValues(req.Symbol, "identity").Inc()
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	in, err := e.registry.Get(req.Symbol)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(req.Symbol, "unknown_symbol").Inc()
		return nil, err
	}
	if !in.Active {
		metrics.OrdersRejected.WithLabelValues(in.Symbol, "inactive").Inc()
		return nil, fmt.Errorf("%w: %s is not trading", core.ErrValidation, in.Symbol)
	}

	o, err := e.buildOrder(&req, in)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(in.Symbol, "validation").Inc()
		return nil, err
	}
	if err := e.registerOrder(o); err != nil {
		metrics.OrdersRejected.WithLabelValues(in.Symbol, "duplicate_client_order_id").Inc()
		return nil, err
	}

	sh := e.shardFor(o.Symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e.sweepExpiredLocked(sh, e.clock.Now().UnixMilli())

	if o.ParentID != 0 {
		parent, ok := e.lookupOrder(o.ParentID)
		if !ok || parent.UserID != o.UserID || parent.Symbol != o.Symbol {
			metrics.OrdersRejected.WithLabelValues(in.Symbol, "parent").Inc()
			return nil, fmt.Errorf("%w: parent order %d", core.ErrNotFound, o.ParentID)
		}
		switch {
		case parent.Status == core.StatusFilled:
			// Parent already done, the child goes straight in.
		case parent.Status.IsTerminal():
			metrics.OrdersRejected.WithLabelValues(in.Symbol, "parent").Inc()
			return nil, fmt.Errorf("%w: parent order %d is %s", core.ErrValidation, o.ParentID, parent.Status)
		default:
			o.Status = core.StatusPendingTrigger
			e.ordersMu.Lock()
			e.children[o.ParentID] = append(e.children[o.ParentID], o)
			e.ordersMu.Unlock()
			e.settler.PersistOrder(o)
			e.emitOrder(o)
			return o, nil
		}
	}

	if o.Type.IsTriggered() {
		e.armTriggerLocked(sh, o)
		return o, nil
	}

	return o, e.runLocked(sh, in, o, false)
}

// buildOrder converts a request to integer tick/lot units and applies
// static validation. It does not touch the book or the ledger.
func (e *Engine) buildOrder(req *OrderRequest, in *instrument.Instrument) (*core.Order, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId required", core.ErrValidation)
	}
	if req.Side != core.Buy && req.Side != core.Sell {
		return nil, fmt.Errorf("%w: invalid side", core.ErrValidation)
	}

	qty, err := in.QtyToLots(req.Quantity)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UnixMilli()
	o := &core.Order{
		ClientOrderID: req.ClientOrderID,
		UserID:        req.UserID,
		Symbol:        in.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Market:        in.Market,
		Quantity:      qty,
		PositionSide:  req.PositionSide,
		STPMode:       req.STPMode,
		ParentID:      req.ParentID,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	switch req.Type {
	case core.Market, core.StopLoss, core.TakeProfit, core.TrailingStopMarket:
		if !in.AllowMarketOrders {
			return nil, fmt.Errorf("%w: market orders disabled for %s", core.ErrValidation, in.Symbol)
		}
		if !req.Price.IsZero() {
			return nil, fmt.Errorf("%w: %s orders take no price", core.ErrValidation, req.Type)
		}
		// A market-style order never rests.
		o.TimeInForce = core.IOC
	case core.Limit, core.StopLossLimit, core.TakeProfitLimit, core.LimitMaker:
		o.Price, err = in.PriceToTicks(req.Price)
		if err != nil {
			return nil, err
		}
		if err := in.CheckNotional(req.Price, req.Quantity); err != nil {
			return nil, err
		}
		if req.Type == core.LimitMaker {
			o.TimeInForce = core.GTC
		}
	default:
		return nil, fmt.Errorf("%w: invalid order type", core.ErrValidation)
	}

	switch req.Type {
	case core.StopLoss, core.StopLossLimit, core.TakeProfit, core.TakeProfitLimit:
		o.StopPrice, err = in.PriceToTicks(req.StopPrice)
		if err != nil {
			return nil, fmt.Errorf("stop price: %w", err)
		}
	case core.TrailingStopMarket:
		if req.CallbackRate <= 0 || req.CallbackRate > 10000 {
			return nil, fmt.Errorf("%w: callback rate must be in (0, 10000] bps", core.ErrValidation)
		}
		o.CallbackRate = req.CallbackRate
		if !req.ActivationPrice.IsZero() {
			o.ActivationPrice, err = in.PriceToTicks(req.ActivationPrice)
			if err != nil {
				return nil, fmt.Errorf("activation price: %w", err)
			}
		}
	}

	if in.Market.IsLeveraged() {
		o.Leverage = req.Leverage
		if o.Leverage == 0 {
			o.Leverage = 1
		}
		if o.Leverage < 1 || o.Leverage > in.MaxLeverage {
			return nil, fmt.Errorf("%w: leverage %d outside [1, %d]", core.ErrValidation, o.Leverage, in.MaxLeverage)
		}
		o.MarginType = req.MarginType
		o.ReduceOnly = req.ReduceOnly
	} else {
		if req.ReduceOnly {
			return nil, fmt.Errorf("%w: reduceOnly requires a leveraged market", core.ErrValidation)
		}
		if req.PositionSide != core.PositionBoth {
			return nil, fmt.Errorf("%w: positionSide requires a leveraged market", core.ErrValidation)
		}
	}

	if o.ExpiresAt > 0 && o.ExpiresAt <= now {
		return nil, fmt.Errorf("%w: expiry is in the past", core.ErrValidation)
	}

	o.ID = e.ids.Next()
	return o, nil
}

// armTriggerLocked parks a stop-family order in the trigger index. No funds
// are reserved until the trigger fires and the order enters admission.
func (e *Engine) armTriggerLocked(sh *shard, o *core.Order) {
	o.Status = core.StatusPendingTrigger
	sh.book.AddTrigger(o)
	e.settler.PersistOrder(o)
	e.emitOrder(o)
}

// runLocked activates an order and then drains the cascade it causes:
// triggers fired by its trades and bracket children released by fills, all
// under the same shard lock so the whole cascade is one atomic match cycle.
func (e *Engine) runLocked(sh *shard, in *instrument.Instrument, first *core.Order, preReserved bool) error {
	queue := []*core.Order{first}
	var firstErr error
	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		follow, err := e.activateLocked(sh, in, o, preReserved && o == first)
		if err != nil {
			if o == first {
				firstErr = err
			} else {
				e.log.Warn("cascade order failed",
					zap.Uint64("order", o.ID),
					zap.String("symbol", o.Symbol),
					zap.Error(err),
				)
			}
		}
		queue = append(queue, follow...)
	}
	return firstErr
}

// activateLocked runs one order through admission, matching and
// time-in-force handling. Returned orders are cascade follow-ups that must
// run through activation in turn.
func (e *Engine) activateLocked(sh *shard, in *instrument.Instrument, o *core.Order, preReserved bool) ([]*core.Order, error) {
	if o.Type == core.LimitMaker {
		if maker := sh.book.PeekBest(o.Side.Opposite()); maker != nil && crosses(o.Side, o.Price, maker.Price) {
			return nil, e.rejectLocked(o, "would_match", core.ErrWouldMatch)
		}
	}
	if o.TimeInForce == core.FOK {
		// The feasibility walk must see the book the way matchLocked will:
		// under EXPIRE_MAKER the submitter's own resting orders are expired
		// rather than traded, and under EXPIRE_TAKER/EXPIRE_BOTH the match
		// ends at the first own order.
		stp := o.STPMode
		if stp == core.STPNone {
			stp = e.defaultSTP
		}
		_, fillable := sh.book.CostToFillFunc(o.Side.Opposite(), o.Quantity, o.Price, func(m *core.Order) (skip, stop bool) {
			if m.UserID != o.UserID {
				return false, false
			}
			switch stp {
			case core.STPExpireMaker:
				return true, false
			case core.STPExpireTaker, core.STPExpireBoth:
				return false, true
			}
			return false, false
		})
		if fillable < o.Quantity {
			return nil, e.rejectLocked(o, "fok_unfillable",
				fmt.Errorf("%w: fill-or-kill quantity %d not available", core.ErrValidation, o.Quantity))
		}
	}

	if !preReserved {
		if err := e.reserveLocked(sh, in, o); err != nil {
			reason := "insufficient_balance"
			if !isInsufficient(err) {
				reason = "reserve"
			}
			return nil, e.rejectLocked(o, reason, err)
		}
	}

	fired, filled, matchErr := e.matchLocked(sh, in, o)

	switch {
	case o.IsClosed():
		// Filled, or expired by self-trade prevention.
		if err := e.settler.ReleaseReserve(o); err != nil {
			e.log.Error("release on close failed", zap.Uint64("order", o.ID), zap.Error(err))
		}
	case o.Price == 0 || o.TimeInForce == core.IOC || o.TimeInForce == core.FOK || matchErr != nil:
		// Market remainder, IOC remainder, or a settlement failure that
		// aborted the cycle: cancel what is left. FOK remainders cannot
		// survive the feasibility check above, but they must never rest.
		o.Status = core.StatusCanceled
		o.Version++
		if err := e.settler.ReleaseReserve(o); err != nil {
			e.log.Error("release on cancel failed", zap.Uint64("order", o.ID), zap.Error(err))
		}
	default:
		sh.book.Insert(o)
		if o.ExpiresAt > 0 {
			sh.expiring[o.ID] = o
		}
	}

	e.settler.PersistOrder(o)
	e.emitOrder(o)
	if !preReserved {
		metrics.OrdersAccepted.WithLabelValues(o.Symbol).Inc()
	}

	if o.Status == core.StatusFilled {
		filled = append(filled, o)
	}

	follow := fired
	for _, f := range filled {
		follow = append(follow, e.releaseChildrenLocked(sh, f)...)
	}
	return follow, matchErr
}

// rejectLocked finalizes an admission failure. Amended orders arrive here
// with their reservation still held, so it is returned first.
func (e *Engine) rejectLocked(o *core.Order, reason string, err error) error {
	if rerr := e.settler.ReleaseReserve(o); rerr != nil {
		e.log.Error("release on reject failed", zap.Uint64("order", o.ID), zap.Error(rerr))
	}
	o.Status = core.StatusRejected
	o.Version++
	e.settler.PersistOrder(o)
	e.emitOrder(o)
	metrics.OrdersRejected.WithLabelValues(o.Symbol, reason).Inc()
	return err
}

// reserveLocked locks the funds the order may need: quote for spot buys,
// base for spot sells, margin for leveraged orders. Market orders reserve
// the exact sweep cost of the current book. Reduce-only orders reserve
// nothing but must not exceed the open position.
func (e *Engine) reserveLocked(sh *shard, in *instrument.Instrument, o *core.Order) error {
	if in.Market.IsLeveraged() {
		wt := core.WalletForMarket(in.Market)
		o.ReserveAsset = in.QuoteAsset
		o.ReserveWallet = wt

		if o.ReduceOnly {
			ps := e.positions.ResolveSide(o.UserID, o.Symbol, o.PositionSide, o.Side)
			size := e.positions.Size(core.PositionKey{UserID: o.UserID, Symbol: o.Symbol, Side: ps})
			if size == 0 || !reduces(ps, o.Side) {
				return fmt.Errorf("%w: no position to reduce", core.ErrReduceOnly)
			}
			if o.Quantity > size {
				return fmt.Errorf("%w: quantity %d exceeds position size %d", core.ErrReduceOnly, o.Quantity, size)
			}
			return nil
		}

		notional := o.Price * o.Quantity
		if o.Price == 0 {
			cost, fillable := sh.book.CostToFill(o.Side.Opposite(), o.Quantity, 0)
			if fillable == 0 {
				return fmt.Errorf("%w: no liquidity for market order", core.ErrValidation)
			}
			notional = cost
		}
		margin := in.RequiredMargin(notional, o.Leverage)
		key := core.WalletKey{UserID: o.UserID, Asset: in.QuoteAsset, Type: wt}
		if err := e.ledger.Reserve(key, margin); err != nil {
			return err
		}
		o.Reserved = margin
		return nil
	}

	var key core.WalletKey
	var amount int64
	if o.Side == core.Buy {
		amount = o.Price * o.Quantity
		if o.Price == 0 {
			cost, fillable := sh.book.CostToFill(core.Sell, o.Quantity, 0)
			if fillable == 0 {
				return fmt.Errorf("%w: no liquidity for market order", core.ErrValidation)
			}
			amount = cost
		}
		key = core.WalletKey{UserID: o.UserID, Asset: in.QuoteAsset, Type: core.WalletSpot}
		o.ReserveAsset = in.QuoteAsset
	} else {
		amount = o.Quantity
		key = core.WalletKey{UserID: o.UserID, Asset: in.BaseAsset, Type: core.WalletSpot}
		o.ReserveAsset = in.BaseAsset
	}
	o.ReserveWallet = core.WalletSpot

	if err := e.ledger.Reserve(key, amount); err != nil {
		return err
	}
	o.Reserved = amount
	return nil
}

// matchLocked walks the opposite side of the book in price-time order,
// settling each fill at the maker's resting price. It returns trigger
// orders fired by the trades and makers that reached FILLED, both for the
// caller's cascade. A settlement failure stops the cycle; completed fills
// stand.
func (e *Engine) matchLocked(sh *shard, in *instrument.Instrument, taker *core.Order) (fired, filled []*core.Order, err error) {
	makerSide := taker.Side.Opposite()

	for taker.Remaining() > 0 {
		maker := sh.book.PeekBest(makerSide)
		if maker == nil {
			break
		}
		if taker.Price > 0 && !crosses(taker.Side, taker.Price, maker.Price) {
			break
		}

		if maker.UserID == taker.UserID {
			mode := taker.STPMode
			if mode == core.STPNone {
				mode = e.defaultSTP
			}
			switch mode {
			case core.STPExpireMaker:
				e.expireRestingLocked(sh, maker)
				continue
			case core.STPExpireTaker:
				taker.Status = core.StatusExpired
				taker.Version++
				return fired, filled, nil
			case core.STPExpireBoth:
				e.expireRestingLocked(sh, maker)
				taker.Status = core.StatusExpired
				taker.Version++
				return fired, filled, nil
			}
		}

		price := maker.Price
		qty := minQty(taker.Remaining(), maker.Remaining())

		// A market buy whose reservation was priced off a book that STP
		// expiries have since thinned may no longer afford this level.
		if taker.Price == 0 && !in.Market.IsLeveraged() && taker.Side == core.Buy && taker.Reserved < price*qty {
			break
		}

		if settleErr := e.settleFillLocked(in, taker, maker, price, qty); settleErr != nil {
			return fired, filled, settleErr
		}

		taker.Fill(price, qty)
		maker.Fill(price, qty)
		sh.book.SetLastPrice(price)

		metrics.TradesMatched.WithLabelValues(in.Symbol).Inc()
		metrics.TradeVolume.WithLabelValues(in.Symbol).Add(float64(price * qty))

		if maker.IsClosed() {
			sh.book.Remove(maker.ID)
			delete(sh.expiring, maker.ID)
			if relErr := e.settler.ReleaseReserve(maker); relErr != nil {
				e.log.Error("maker release failed", zap.Uint64("order", maker.ID), zap.Error(relErr))
			}
			e.settler.PersistOrder(maker)
			e.emitOrder(maker)
			filled = append(filled, maker)
		}

		fired = append(fired, e.fireTriggersLocked(sh, price)...)
	}

	return fired, filled, nil
}

// settleFillLocked creates the trade record for one fill and applies it to
// the ledger (and, on leveraged markets, the position manager). Called
// before the orders record the fill, so Remaining/Reserved still describe
// the pre-fill state.
func (e *Engine) settleFillLocked(in *instrument.Instrument, taker, maker *core.Order, price, qty int64) error {
	quote := price * qty

	buy, sell := taker, maker
	if taker.Side == core.Sell {
		buy, sell = maker, taker
	}

	buyMakerBps, buyTakerBps := e.fees.Fees(buy.UserID, in)
	sellMakerBps, sellTakerBps := e.fees.Fees(sell.UserID, in)
	buyBps, sellBps := buyTakerBps, sellMakerBps
	if buy == maker {
		buyBps, sellBps = buyMakerBps, sellTakerBps
	}

	t := &core.Trade{
		ID:           e.ids.Next(),
		Symbol:       in.Symbol,
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		BuyUserID:    buy.UserID,
		SellUserID:   sell.UserID,
		Price:        price,
		Quantity:     qty,
		QuoteQty:     quote,
		MakerOrderID: maker.ID,
		TakerSide:    taker.Side,
		Market:       in.Market,
		CreatedAt:    e.clock.Now().UnixMilli(),
	}

	if !in.Market.IsLeveraged() {
		t.BuyCommission = qty * buyBps / 10000
		t.BuyCommissionAsset = in.BaseAsset
		t.SellCommission = quote * sellBps / 10000
		t.SellCommissionAsset = in.QuoteAsset

		// A buy limit reserved at its own price; the spread to the maker
		// price unlocks back to available alongside the debit.
		var buyUnlock int64
		if buy.Price > 0 {
			buyUnlock = (buy.Price - price) * qty
		}
		if err := e.settler.SettleSpot(in, t, buy, sell, buyUnlock); err != nil {
			return err
		}
		buy.Reserved -= quote + buyUnlock
		sell.Reserved -= qty
		e.emitTrade(t)
		return nil
	}

	t.BuyCommission = quote * buyBps / 10000
	t.BuyCommissionAsset = in.QuoteAsset
	t.SellCommission = quote * sellBps / 10000
	t.SellCommissionAsset = in.QuoteAsset

	buyPS := e.positions.ResolveSide(buy.UserID, in.Symbol, buy.PositionSide, core.Buy)
	sellPS := e.positions.ResolveSide(sell.UserID, in.Symbol, sell.PositionSide, core.Sell)
	buyKey := core.PositionKey{UserID: buy.UserID, Symbol: in.Symbol, Side: buyPS}
	sellKey := core.PositionKey{UserID: sell.UserID, Symbol: in.Symbol, Side: sellPS}

	buyEff := e.positions.ApplyFill(buyKey, core.Buy, price, qty, buy.Leverage, buy.MarginType, in)
	sellEff := e.positions.ApplyFill(sellKey, core.Sell, price, qty, sell.Leverage, sell.MarginType, in)

	// Margin consumed by an increase comes out of the order's reservation;
	// any shortfall (a fill needing more margin than the reserve implied)
	// locks fresh funds.
	buyLock := consumeReserve(buy, buyEff.MarginDelta)
	sellLock := consumeReserve(sell, sellEff.MarginDelta)

	if taker == buy {
		t.RealizedPnl = buyEff.RealizedPnl
	} else {
		t.RealizedPnl = sellEff.RealizedPnl
	}

	updated := e.positionSnapshots(buyKey, sellKey, buyEff, sellEff)
	if err := e.settler.SettleLeveraged(in, t, buy, sell, buyEff, sellEff, buyLock, sellLock, updated); err != nil {
		return err
	}
	e.emitTrade(t)
	return nil
}

// consumeReserve draws an increase's margin from the order's reservation
// and returns the shortfall to lock on top.
func consumeReserve(o *core.Order, marginDelta int64) int64 {
	if marginDelta <= 0 {
		return 0
	}
	take := marginDelta
	if take > o.Reserved {
		take = o.Reserved
	}
	o.Reserved -= take
	return marginDelta - take
}

func (e *Engine) positionSnapshots(buyKey, sellKey core.PositionKey, buyEff, sellEff position.FillEffect) []*core.Position {
	var out []*core.Position
	for _, key := range []core.PositionKey{buyKey, sellKey} {
		if p, err := e.positions.Get(key); err == nil {
			cp := p
			out = append(out, &cp)
		}
	}
	for _, eff := range []position.FillEffect{buyEff, sellEff} {
		if eff.FlipOpened != nil {
			cp := *eff.FlipOpened
			out = append(out, &cp)
		}
	}
	return out
}

// fireTriggersLocked pops trigger orders satisfied at a trade price and
// promotes them into the matching path.
func (e *Engine) fireTriggersLocked(sh *shard, price int64) []*core.Order {
	fired := sh.book.Triggered(price)
	for _, o := range fired {
		o.Status = core.StatusNew
		o.Version++
	}
	return fired
}

// releaseChildrenLocked frees bracket children parked on a filled parent.
// Stop-family children arm in the trigger index; plain children return for
// activation.
func (e *Engine) releaseChildrenLocked(sh *shard, parent *core.Order) []*core.Order {
	e.ordersMu.Lock()
	kids := e.children[parent.ID]
	delete(e.children, parent.ID)
	e.ordersMu.Unlock()

	var exec []*core.Order
	for _, k := range kids {
		if k.Type.IsTriggered() {
			e.armTriggerLocked(sh, k)
			continue
		}
		k.Status = core.StatusNew
		k.Version++
		exec = append(exec, k)
	}
	return exec
}

// expireRestingLocked removes a resting order from the book and finalizes
// it as EXPIRED (self-trade prevention, time expiry).
func (e *Engine) expireRestingLocked(sh *shard, o *core.Order) {
	sh.book.Remove(o.ID)
	delete(sh.expiring, o.ID)
	o.Status = core.StatusExpired
	o.Version++
	if err := e.settler.ReleaseReserve(o); err != nil {
		e.log.Error("release on expiry failed", zap.Uint64("order", o.ID), zap.Error(err))
	}
	e.settler.PersistOrder(o)
	e.emitOrder(o)
	metrics.OrdersCanceled.WithLabelValues(o.Symbol).Inc()
}

// sweepExpiredLocked expires resting orders whose ExpiresAt has passed.
// Runs at the head of every shard operation, so expiry is checked before
// any new order can match against a stale quote.
func (e *Engine) sweepExpiredLocked(sh *shard, now int64) {
	for id, o := range sh.expiring {
		if o.ExpiresAt <= now {
			delete(sh.expiring, id)
			sh.book.Remove(o.ID)
			o.Status = core.StatusExpired
			o.Version++
			if err := e.settler.ReleaseReserve(o); err != nil {
				e.log.Error("release on expiry failed", zap.Uint64("order", o.ID), zap.Error(err))
			}
			e.settler.PersistOrder(o)
			e.emitOrder(o)
			metrics.OrdersCanceled.WithLabelValues(o.Symbol).Inc()
		}
	}
}

// crosses reports whether a taker at limitPrice trades against makerPrice.
func crosses(takerSide core.Side, limitPrice, makerPrice int64) bool {
	if takerSide == core.Buy {
		return makerPrice <= limitPrice
	}
	return makerPrice >= limitPrice
}

// reduces reports whether an order side shrinks a position side.
func reduces(ps core.PositionSide, side core.Side) bool {
	return (ps == core.PositionLong && side == core.Sell) ||
		(ps == core.PositionShort && side == core.Buy)
}

func minQty(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func isInsufficient(err error) bool {
	return errors.Is(err, core.ErrInsufficientBalance)
}
