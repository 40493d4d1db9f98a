// Package position maintains the derivatives positions implied by trades:
// one position per (user, symbol, side), VWAP entry price on increase,
// realized PnL on decrease, and the liquidation threshold the mark-price
// sweep checks against.
package position

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
)

// FillEffect is what one fill did to a position, expressed as ledger-ready
// deltas. MarginDelta > 0 locks additional margin (already reserved by the
// order), < 0 releases it. RealizedPnl is settled against the wallet's
// available balance.
type FillEffect struct {
	Key         core.PositionKey
	MarginDelta int64
	RealizedPnl int64
	Closed      bool

	// FlipOpened is set when a decrease overshot the position and the
	// remainder opened the opposite side (one-way mode flip).
	FlipOpened *core.Position
}

// Manager owns all position records. The engine calls it under the symbol's
// writer lock, so per-symbol mutations are already serialized; the internal
// mutex only protects cross-symbol readers.
type Manager struct {
	mu        sync.RWMutex
	positions map[core.PositionKey]*core.Position
	marks     map[string]int64 // symbol → mark price

	log *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		positions: make(map[core.PositionKey]*core.Position),
		marks:     make(map[string]int64),
		log:       log.Named("position"),
	}
}

// ResolveSide maps an order to the position it affects. Hedge-mode orders
// name their side explicitly; one-way (BOTH) orders reduce an open opposite
// position first, otherwise open in the order's direction.
func (m *Manager) ResolveSide(userID, symbol string, ps core.PositionSide, side core.Side) core.PositionSide {
	if ps != core.PositionBoth {
		return ps
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if side == core.Buy {
		if p, ok := m.positions[core.PositionKey{UserID: userID, Symbol: symbol, Side: core.PositionShort}]; ok && p.Size > 0 && p.Status == core.PositionOpen {
			return core.PositionShort
		}
		return core.PositionLong
	}
	if p, ok := m.positions[core.PositionKey{UserID: userID, Symbol: symbol, Side: core.PositionLong}]; ok && p.Size > 0 && p.Status == core.PositionOpen {
		return core.PositionLong
	}
	return core.PositionShort
}

// increases reports whether an order side grows a position side.
func increases(ps core.PositionSide, side core.Side) bool {
	return (ps == core.PositionLong && side == core.Buy) ||
		(ps == core.PositionShort && side == core.Sell)
}

// Size returns the current open size for key, 0 if no position.
func (m *Manager) Size(key core.PositionKey) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.positions[key]; ok && p.Status == core.PositionOpen {
		return p.Size
	}
	return 0
}

// Get returns a copy of the position for key.
func (m *Manager) Get(key core.PositionKey) (core.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[key]
	if !ok {
		return core.Position{}, fmt.Errorf("%w: position %s/%s/%s", core.ErrNotFound, key.UserID, key.Symbol, key.Side)
	}
	return *p, nil
}

// UserPositions returns copies of all positions for userID.
func (m *Manager) UserPositions(userID string) []core.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Position, 0, 2)
	for k, p := range m.positions {
		if k.UserID == userID {
			out = append(out, *p)
		}
	}
	return out
}

// ApplyFill mutates the position for key by one fill of qty lots at price
// ticks and returns the ledger deltas. Entry price is volume-weighted on
// increase; decreases realize (price − entry) × qty in the position's
// direction and release margin pro rata.
func (m *Manager) ApplyFill(key core.PositionKey, side core.Side, price, qty, leverage int64, marginType core.MarginType, in *instrument.Instrument) FillEffect {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	p, ok := m.positions[key]
	if !ok || p.Status != core.PositionOpen {
		p = &core.Position{
			Key:        key,
			Leverage:   leverage,
			MarginType: marginType,
			Status:     core.PositionOpen,
			CreatedAt:  now,
		}
		m.positions[key] = p
	}

	eff := FillEffect{Key: key}

	if increases(key.Side, side) {
		margin := in.RequiredMargin(price*qty, leverage)
		if p.Size == 0 {
			p.EntryPrice = price
		} else {
			p.EntryPrice = (p.EntryPrice*p.Size + price*qty) / (p.Size + qty)
		}
		p.Size += qty
		p.Margin += margin
		eff.MarginDelta = margin
	} else {
		closed := qty
		if closed > p.Size {
			closed = p.Size
		}
		dir := int64(1)
		if key.Side == core.PositionShort {
			dir = -1
		}
		if closed > 0 {
			pnl := (price - p.EntryPrice) * closed * dir
			released := p.Margin * closed / p.Size
			p.Size -= closed
			p.Margin -= released
			p.RealizedPnl += pnl
			eff.RealizedPnl = pnl
			eff.MarginDelta = -released
		}
		if p.Size == 0 {
			p.EntryPrice = 0
			p.LiquidationPrice = 0
			p.Status = core.PositionClosed
			eff.Closed = true
		}
		// One-way flip: the overshoot opens the opposite side.
		if rem := qty - closed; rem > 0 {
			flip := m.openLocked(core.PositionKey{
				UserID: key.UserID,
				Symbol: key.Symbol,
				Side:   oppositeSide(key.Side),
			}, price, rem, leverage, marginType, in, now)
			eff.MarginDelta += in.RequiredMargin(price*rem, leverage)
			eff.FlipOpened = flip
		}
	}

	if p.Status == core.PositionOpen && p.Size > 0 {
		p.LiquidationPrice = liquidationPrice(key.Side, p.EntryPrice, p.Leverage, in.MaintenanceMarginBps)
	}
	p.UpdatedAt = now
	return eff
}

func (m *Manager) openLocked(key core.PositionKey, price, qty, leverage int64, marginType core.MarginType, in *instrument.Instrument, now int64) *core.Position {
	p, ok := m.positions[key]
	if !ok || p.Status != core.PositionOpen {
		p = &core.Position{
			Key:        key,
			Leverage:   leverage,
			MarginType: marginType,
			Status:     core.PositionOpen,
			CreatedAt:  now,
		}
		m.positions[key] = p
	}
	if p.Size == 0 {
		p.EntryPrice = price
	} else {
		p.EntryPrice = (p.EntryPrice*p.Size + price*qty) / (p.Size + qty)
	}
	p.Size += qty
	p.Margin += in.RequiredMargin(price*qty, leverage)
	p.LiquidationPrice = liquidationPrice(key.Side, p.EntryPrice, p.Leverage, in.MaintenanceMarginBps)
	p.UpdatedAt = now
	return p
}

func oppositeSide(ps core.PositionSide) core.PositionSide {
	if ps == core.PositionLong {
		return core.PositionShort
	}
	return core.PositionLong
}

// liquidationPrice is where equity hits maintenance margin:
//
//	long:  entry × (1 − 1/leverage + maintBps/10000)
//	short: entry × (1 + 1/leverage − maintBps/10000)
func liquidationPrice(ps core.PositionSide, entry, leverage, maintBps int64) int64 {
	if leverage <= 0 {
		return 0
	}
	buffer := entry/leverage - entry*maintBps/10000
	if ps == core.PositionShort {
		return entry + buffer
	}
	liq := entry - buffer
	if liq < 0 {
		liq = 0
	}
	return liq
}

// UpdateMark records the external mark price for symbol and returns copies
// of the positions it breaches. The engine turns each into a forced close.
func (m *Manager) UpdateMark(symbol string, markPrice int64) []core.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.marks[symbol] = markPrice

	var breached []core.Position
	for k, p := range m.positions {
		if k.Symbol != symbol || p.Status != core.PositionOpen || p.Size == 0 {
			continue
		}
		p.MarkPrice = markPrice
		if p.LiquidationPrice == 0 {
			continue
		}
		if (k.Side == core.PositionLong && markPrice <= p.LiquidationPrice) ||
			(k.Side == core.PositionShort && markPrice >= p.LiquidationPrice) {
			breached = append(breached, *p)
		}
	}
	return breached
}

// MarkPrice returns the last recorded mark for symbol, 0 if none.
func (m *Manager) MarkPrice(symbol string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks[symbol]
}

// MarkLiquidated transitions a breached position to LIQUIDATED and returns
// its final state. The forced-close fills have already zeroed the size.
func (m *Manager) MarkLiquidated(key core.PositionKey) (core.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[key]
	if !ok {
		return core.Position{}, fmt.Errorf("%w: position %s/%s/%s", core.ErrNotFound, key.UserID, key.Symbol, key.Side)
	}
	p.Status = core.PositionLiquidated
	p.UpdatedAt = time.Now().UnixMilli()
	m.log.Warn("position liquidated",
		zap.String("user", key.UserID),
		zap.String("symbol", key.Symbol),
		zap.String("side", key.Side.String()),
	)
	return *p, nil
}

// Restore installs a position loaded from durable storage at startup.
func (m *Manager) Restore(p core.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.positions[p.Key] = &cp
}
