// Package settle applies matched trades to the ledger. Each trade settles
// atomically: every leg is validated before any balance moves, and the
// durable record of the trade, both orders and the touched wallets commits
// as one Pebble batch. A failed leg surfaces ErrSettlementFailure and leaves
// no partial effect; it is never retried automatically.
package settle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/core/ledger"
	"github.com/openexch/excore/pkg/core/position"
	"github.com/openexch/excore/pkg/metrics"
	"github.com/openexch/excore/pkg/storage"
)

type Settler struct {
	ledger *ledger.Ledger
	store  *storage.Store // nil in pure in-memory runs (tests)
	log    *zap.Logger
}

func New(l *ledger.Ledger, store *storage.Store, log *zap.Logger) *Settler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Settler{ledger: l, store: store, log: log.Named("settle")}
}

// SettleSpot settles one spot trade: the buyer's reserved quote pays for the
// base, the seller's reserved base pays for the quote, and both commissions
// flow to the fee sink in the asset each side received. buyUnlock is the
// buyer's price-improvement surplus ((limit − trade price) × qty), returned
// to available in the same atomic step.
func (s *Settler) SettleSpot(in *instrument.Instrument, t *core.Trade, buy, sell *core.Order, buyUnlock int64) error {
	buyQuote := core.WalletKey{UserID: t.BuyUserID, Asset: in.QuoteAsset, Type: core.WalletSpot}
	buyBase := core.WalletKey{UserID: t.BuyUserID, Asset: in.BaseAsset, Type: core.WalletSpot}
	sellQuote := core.WalletKey{UserID: t.SellUserID, Asset: in.QuoteAsset, Type: core.WalletSpot}
	sellBase := core.WalletKey{UserID: t.SellUserID, Asset: in.BaseAsset, Type: core.WalletSpot}
	sinkQuote := core.WalletKey{UserID: ledger.FeeSinkUser, Asset: in.QuoteAsset, Type: core.WalletSpot}
	sinkBase := core.WalletKey{UserID: ledger.FeeSinkUser, Asset: in.BaseAsset, Type: core.WalletSpot}

	movements := []ledger.Movement{
		{Key: buyQuote, DebitLocked: t.QuoteQty, Unlock: buyUnlock},
		{Key: sellBase, DebitLocked: t.Quantity},
		{Key: buyBase, Credit: t.Quantity - t.BuyCommission},
		{Key: sellQuote, Credit: t.QuoteQty - t.SellCommission},
		{Key: sinkBase, Credit: t.BuyCommission},
		{Key: sinkQuote, Credit: t.SellCommission},
	}

	if err := s.ledger.Apply(movements); err != nil {
		metrics.SettlementFailures.Inc()
		s.log.Error("spot settlement failed",
			zap.Uint64("trade", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Error(err),
		)
		return fmt.Errorf("trade %d: %w", t.ID, err)
	}

	return s.persist(t, buy, sell, []core.WalletKey{buyQuote, buyBase, sellQuote, sellBase, sinkQuote, sinkBase}, nil)
}

// SettleLeveraged settles one futures/margin trade. No base asset moves;
// each side's margin delta, realized PnL and commission net against its
// margin wallet, with commissions credited to the fee sink. buyLock and
// sellLock top up margin beyond what the order reserved (a short filling
// above its limit price needs more margin than the limit implied).
func (s *Settler) SettleLeveraged(in *instrument.Instrument, t *core.Trade, buy, sell *core.Order, buyEff, sellEff position.FillEffect, buyLock, sellLock int64, updated []*core.Position) error {
	wt := core.WalletForMarket(in.Market)
	buyKey := core.WalletKey{UserID: t.BuyUserID, Asset: in.QuoteAsset, Type: wt}
	sellKey := core.WalletKey{UserID: t.SellUserID, Asset: in.QuoteAsset, Type: wt}
	sinkKey := core.WalletKey{UserID: ledger.FeeSinkUser, Asset: in.QuoteAsset, Type: wt}

	movements := []ledger.Movement{
		sideMovement(buyKey, buyEff, t.BuyCommission, buyLock),
		sideMovement(sellKey, sellEff, t.SellCommission, sellLock),
		{Key: sinkKey, Credit: t.BuyCommission + t.SellCommission},
	}

	if err := s.ledger.Apply(movements); err != nil {
		metrics.SettlementFailures.Inc()
		s.log.Error("leveraged settlement failed",
			zap.Uint64("trade", t.ID),
			zap.String("symbol", t.Symbol),
			zap.Error(err),
		)
		return fmt.Errorf("trade %d: %w", t.ID, err)
	}

	return s.persist(t, buy, sell, []core.WalletKey{buyKey, sellKey, sinkKey}, updated)
}

// sideMovement nets one party's margin release, realized PnL and fee into a
// single movement. Margin consumed by an increase stays locked, so only
// releases show up here.
func sideMovement(key core.WalletKey, eff position.FillEffect, fee, extraLock int64) ledger.Movement {
	m := ledger.Movement{Key: key, Debit: fee, Lock: extraLock}
	if eff.MarginDelta < 0 {
		m.Unlock = -eff.MarginDelta
	}
	if eff.RealizedPnl > 0 {
		m.Credit = eff.RealizedPnl
	} else {
		m.Debit += -eff.RealizedPnl
	}
	return m
}

// persist commits the trade and everything it touched in one batch.
func (s *Settler) persist(t *core.Trade, buy, sell *core.Order, walletKeys []core.WalletKey, positions []*core.Position) error {
	if s.store == nil {
		return nil
	}

	batch := s.store.NewBatch()
	defer batch.Close()

	if err := batch.SaveTrade(t); err != nil {
		return s.persistFailed(t, err)
	}
	if err := batch.SaveOrder(buy); err != nil {
		return s.persistFailed(t, err)
	}
	if err := batch.SaveOrder(sell); err != nil {
		return s.persistFailed(t, err)
	}
	for _, w := range s.ledger.Snapshot(walletKeys) {
		if err := batch.SaveWallet(w); err != nil {
			return s.persistFailed(t, err)
		}
	}
	for _, p := range positions {
		if err := batch.SavePosition(p); err != nil {
			return s.persistFailed(t, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return s.persistFailed(t, err)
	}
	return nil
}

func (s *Settler) persistFailed(t *core.Trade, err error) error {
	metrics.SettlementFailures.Inc()
	s.log.Error("settlement persistence failed", zap.Uint64("trade", t.ID), zap.Error(err))
	return fmt.Errorf("%w: persist trade %d: %v", core.ErrSettlementFailure, t.ID, err)
}

// ReleaseReserve returns an order's remaining reservation to available
// balance (cancel, expiry, IOC remainder).
func (s *Settler) ReleaseReserve(o *core.Order) error {
	if o.Reserved <= 0 {
		return nil
	}
	key := core.WalletKey{UserID: o.UserID, Asset: o.ReserveAsset, Type: o.ReserveWallet}
	if err := s.ledger.Release(key, o.Reserved); err != nil {
		return err
	}
	o.Reserved = 0
	return nil
}

// PersistOrder durably records an order state outside a trade batch
// (admission, cancel, trigger transitions).
func (s *Settler) PersistOrder(o *core.Order) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveOrder(o); err != nil {
		s.log.Warn("order persistence failed", zap.Uint64("order", o.ID), zap.Error(err))
	}
}

// PersistLiquidation durably records a liquidation fact and the final
// position state.
func (s *Settler) PersistLiquidation(l *core.Liquidation, p *core.Position) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveLiquidation(l); err != nil {
		s.log.Warn("liquidation persistence failed", zap.Uint64("id", l.ID), zap.Error(err))
	}
	if err := s.store.SavePosition(p); err != nil {
		s.log.Warn("position persistence failed", zap.String("user", p.Key.UserID), zap.Error(err))
	}
}
