package core

// Trade is an immutable match fact, created exactly once per match event.
// Price is always the maker's resting price.
type Trade struct {
	ID          uint64 `json:"id"`
	Symbol      string `json:"symbol"`
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	BuyUserID   string `json:"buyUserId"`
	SellUserID  string `json:"sellUserId"`

	Price    int64 `json:"price"`    // ticks (maker price)
	Quantity int64 `json:"quantity"` // lots
	QuoteQty int64 `json:"quoteQty"` // price × quantity

	// Commissions charged to each side, denominated in the asset that side
	// receives: base lots for the buyer, quote units for the seller (both in
	// quote units on leveraged markets). Redistributed to the fee sink,
	// never created or destroyed.
	BuyCommission       int64  `json:"buyCommission"`
	BuyCommissionAsset  string `json:"buyCommissionAsset"`
	SellCommission      int64  `json:"sellCommission"`
	SellCommissionAsset string `json:"sellCommissionAsset"`

	MakerOrderID uint64     `json:"makerOrderId"`
	TakerSide    Side       `json:"takerSide"`
	Market       MarketType `json:"marketType"`

	// RealizedPnl carries the taker-side realized PnL for derivatives trades.
	RealizedPnl int64 `json:"realizedPnl,omitempty"`

	Version   int64 `json:"version"`
	CreatedAt int64 `json:"createdAt"` // unix milliseconds
}

// MakerSide returns the side of the resting order.
func (t *Trade) MakerSide() Side {
	return t.TakerSide.Opposite()
}
