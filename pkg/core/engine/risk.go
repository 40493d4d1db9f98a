package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/metrics"
)

// UpdateMarkPrice records a new mark price for a leveraged symbol and
// force-closes every position whose liquidation price the mark breached.
// Liquidation runs under the symbol's shard lock, so forced closes are
// serialized with regular matching.
func (e *Engine) UpdateMarkPrice(symbol string, price decimal.Decimal) error {
	in, err := e.registry.Get(symbol)
	if err != nil {
		return err
	}
	if !in.Market.IsLeveraged() {
		return fmt.Errorf("%w: %s is not a leveraged market", core.ErrValidation, symbol)
	}
	ticks, err := in.PriceToTicks(price)
	if err != nil {
		return err
	}

	sh := e.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for _, p := range e.positions.UpdateMark(symbol, ticks) {
		e.liquidateLocked(sh, in, p, ticks)
	}
	return nil
}

// liquidateLocked closes one breached position with an internal
// reduce-only market order and records the liquidation. If the book cannot
// absorb the full size, the remainder stays open and the next mark update
// retries it.
func (e *Engine) liquidateLocked(sh *shard, in *instrument.Instrument, p core.Position, markPrice int64) {
	side := core.Sell
	if p.Key.Side == core.PositionShort {
		side = core.Buy
	}

	now := e.clock.Now().UnixMilli()
	o := &core.Order{
		ID:           e.ids.Next(),
		UserID:       p.Key.UserID,
		Symbol:       p.Key.Symbol,
		Side:         side,
		Type:         core.Market,
		TimeInForce:  core.IOC,
		Market:       in.Market,
		Quantity:     p.Size,
		PositionSide: p.Key.Side,
		Leverage:     p.Leverage,
		MarginType:   p.MarginType,
		ReduceOnly:   true,
		Status:       core.StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.registerOrder(o); err != nil {
		e.log.Error("liquidation order rejected", zap.Uint64("order", o.ID), zap.Error(err))
		return
	}

	if err := e.runLocked(sh, in, o, false); err != nil {
		e.log.Error("liquidation close failed",
			zap.String("user", p.Key.UserID),
			zap.String("symbol", p.Key.Symbol),
			zap.Error(err),
		)
		return
	}
	if o.Remaining() > 0 {
		e.log.Warn("liquidation partially filled",
			zap.String("user", p.Key.UserID),
			zap.String("symbol", p.Key.Symbol),
			zap.Int64("remaining", o.Remaining()),
		)
		return
	}

	final, err := e.positions.MarkLiquidated(p.Key)
	if err != nil {
		e.log.Error("mark liquidated failed", zap.String("user", p.Key.UserID), zap.Error(err))
		return
	}

	liq := &core.Liquidation{
		ID:               e.ids.Next(),
		UserID:           p.Key.UserID,
		Symbol:           p.Key.Symbol,
		Side:             p.Key.Side,
		Size:             p.Size,
		EntryPrice:       p.EntryPrice,
		MarkPrice:        markPrice,
		LiquidationPrice: p.LiquidationPrice,
		Pnl:              final.RealizedPnl - p.RealizedPnl,
		Fee:              takerFeeFor(in, o),
		CreatedAt:        e.clock.Now().UnixMilli(),
	}
	e.settler.PersistLiquidation(liq, &final)
	metrics.Liquidations.WithLabelValues(p.Key.Symbol).Inc()

	e.log.Info("position liquidated",
		zap.String("user", p.Key.UserID),
		zap.String("symbol", p.Key.Symbol),
		zap.String("side", p.Key.Side.String()),
		zap.Int64("size", p.Size),
		zap.Int64("markPrice", markPrice),
		zap.Int64("pnl", liq.Pnl),
	)
	e.emit(&Event{Type: EventLiquidation, Symbol: p.Key.Symbol, Liquidation: liq})
}

func takerFeeFor(in *instrument.Instrument, o *core.Order) int64 {
	return in.TakerFee(o.ExecutedQuoteQty)
}

// MarkPrice returns the last mark price set for symbol, 0 if none.
func (e *Engine) MarkPrice(symbol string) int64 {
	return e.positions.MarkPrice(symbol)
}
