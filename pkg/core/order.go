package core

// Order is the authoritative order record. Prices are integer ticks and
// quantities integer lots of the order's instrument; the instrument package
// owns the conversion to and from decimal units.
type Order struct {
	ID            uint64      `json:"id"`
	ClientOrderID string      `json:"clientOrderId,omitempty"`
	UserID        string      `json:"userId"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	TimeInForce   TimeInForce `json:"timeInForce"`
	Market        MarketType  `json:"marketType"`

	Quantity  int64 `json:"quantity"`       // lots
	Price     int64 `json:"price"`          // ticks; 0 for MARKET
	StopPrice int64 `json:"stopPrice,omitempty"`

	// Trailing stop parameters (TRAILING_STOP_MARKET only).
	ActivationPrice int64 `json:"activationPrice,omitempty"`
	CallbackRate    int64 `json:"callbackRate,omitempty"` // basis points

	Status           OrderStatus `json:"status"`
	ExecutedQty      int64       `json:"executedQty"`
	ExecutedQuoteQty int64       `json:"executedQuoteQty"`

	// Bracket linkage: a child order is inert until its parent fills.
	ParentID uint64 `json:"parentOrderId,omitempty"`

	// Derivatives fields.
	PositionSide PositionSide `json:"positionSide,omitempty"`
	Leverage     int64        `json:"leverage,omitempty"`
	MarginType   MarginType   `json:"marginType,omitempty"`
	ReduceOnly   bool         `json:"reduceOnly,omitempty"`

	STPMode STPMode `json:"selfTradePreventionMode,omitempty"`

	// Reserved is the amount locked in the ledger for the unexecuted part of
	// the order: quote units for buys and margin, base lots for spot sells.
	Reserved      int64      `json:"reserved"`
	ReserveAsset  string     `json:"reserveAsset"`
	ReserveWallet WalletType `json:"reserveWallet"`

	// Version increments on every observable mutation; cancels and amends
	// carry the version they observed (optimistic concurrency).
	Version int64 `json:"version"`

	CreatedAt int64 `json:"createdAt"` // unix milliseconds
	UpdatedAt int64 `json:"updatedAt"`
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// Remaining returns the unfilled quantity in lots.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.ExecutedQty
}

// IsClosed reports whether the order can no longer trade.
func (o *Order) IsClosed() bool {
	return o.Status.IsTerminal()
}

// Fill applies an execution of qty lots at price ticks and advances the
// status machine. It never moves a terminal status.
func (o *Order) Fill(price, qty int64) {
	o.ExecutedQty += qty
	o.ExecutedQuoteQty += price * qty
	if o.ExecutedQty >= o.Quantity {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.Version++
}
