package core

// PositionKey identifies a derivatives position. One position exists per key.
type PositionKey struct {
	UserID string       `json:"userId"`
	Symbol string       `json:"symbol"`
	Side   PositionSide `json:"side"`
}

// Position is a margin/futures position. Size is unsigned lots; the key's
// side carries the direction. EntryPrice is the volume-weighted average of
// the fills that built the current size.
type Position struct {
	Key PositionKey `json:"key"`

	Size       int64 `json:"size"`       // lots, >= 0
	EntryPrice int64 `json:"entryPrice"` // ticks, VWAP
	MarkPrice  int64 `json:"markPrice"`  // ticks, external feed

	Leverage   int64      `json:"leverage"`
	MarginType MarginType `json:"marginType"`
	Margin     int64      `json:"margin"` // quote units locked for this position

	LiquidationPrice int64 `json:"liquidationPrice"`
	RealizedPnl      int64 `json:"realizedPnl"`

	Status    PositionStatus `json:"status"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
}

// direction returns +1 for long exposure, -1 for short.
func (p *Position) direction() int64 {
	if p.Key.Side == PositionShort {
		return -1
	}
	return 1
}

// UnrealizedPnl marks the position against price. Longs profit when price
// rises, shorts when it falls.
func (p *Position) UnrealizedPnl(markPrice int64) int64 {
	if p.Size == 0 {
		return 0
	}
	return (markPrice - p.EntryPrice) * p.Size * p.direction()
}

// Notional returns |size| × price in quote units.
func (p *Position) Notional(price int64) int64 {
	return p.Size * price
}

// Liquidation is an immutable record of a forced position close, capturing
// the position state at the time it was liquidated.
type Liquidation struct {
	ID     uint64       `json:"id"`
	UserID string       `json:"userId"`
	Symbol string       `json:"symbol"`
	Side   PositionSide `json:"side"`

	Size             int64 `json:"size"`
	EntryPrice       int64 `json:"entryPrice"`
	MarkPrice        int64 `json:"markPrice"`
	LiquidationPrice int64 `json:"liquidationPrice"`
	Pnl              int64 `json:"pnl"`
	Fee              int64 `json:"fee"`

	CreatedAt int64 `json:"createdAt"`
}
