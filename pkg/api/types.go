package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
)

// ==============================
// Request Types
// ==============================

// SubmitOrderRequest is the POST /orders body. Prices and quantities are
// decimal strings in the instrument's external units.
type SubmitOrderRequest struct {
	UserID          string `json:"userId"`
	Symbol          string `json:"symbol"`
	ClientOrderID   string `json:"clientOrderId,omitempty"`
	Side            string `json:"side"`
	Type            string `json:"type"`
	TimeInForce     string `json:"timeInForce,omitempty"`
	Quantity        string `json:"quantity"`
	Price           string `json:"price,omitempty"`
	StopPrice       string `json:"stopPrice,omitempty"`
	ActivationPrice string `json:"activationPrice,omitempty"`
	CallbackRate    int64  `json:"callbackRate,omitempty"`
	PositionSide    string `json:"positionSide,omitempty"`
	Leverage        int64  `json:"leverage,omitempty"`
	MarginType      string `json:"marginType,omitempty"`
	ReduceOnly      bool   `json:"reduceOnly,omitempty"`
	STPMode         string `json:"selfTradePreventionMode,omitempty"`
	ParentID        uint64 `json:"parentOrderId,omitempty"`
	ExpiresAt       int64  `json:"expiresAt,omitempty"`
}

type CancelOrderRequest struct {
	UserID        string `json:"userId"`
	OrderID       uint64 `json:"orderId,omitempty"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	Version       int64  `json:"version"`
}

type AmendOrderRequest struct {
	UserID   string `json:"userId"`
	OrderID  uint64 `json:"orderId"`
	Version  int64  `json:"version"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

type TransferRequest struct {
	UserID string `json:"userId"`
	Asset  string `json:"asset"`
	Wallet string `json:"walletType,omitempty"`
	Amount string `json:"amount"`
}

type MarkPriceRequest struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// WSSubscribeRequest is a websocket subscription frame.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

// ==============================
// Response Types
// ==============================

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type MarketInfo struct {
	Symbol               string `json:"symbol"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	Type                 string `json:"marketType"`
	Active               bool   `json:"active"`
	TickSize             string `json:"tickSize"`
	StepSize             string `json:"stepSize"`
	MinNotional          string `json:"minNotional"`
	MaxLeverage          int64  `json:"maxLeverage,omitempty"`
	MakerFeeBps          int64  `json:"makerFeeBps"`
	TakerFeeBps          int64  `json:"takerFeeBps"`
	MaintenanceMarginBps int64  `json:"maintenanceMarginBps,omitempty"`
}

type PriceLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	LastPrice string       `json:"lastPrice,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

type OrderInfo struct {
	OrderID       uint64 `json:"orderId"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"timeInForce"`
	Status        string `json:"status"`
	Price         string `json:"price,omitempty"`
	StopPrice     string `json:"stopPrice,omitempty"`
	Quantity      string `json:"quantity"`
	ExecutedQty   string `json:"executedQty"`
	ExecutedQuote string `json:"executedQuoteQty"`
	ReduceOnly    bool   `json:"reduceOnly,omitempty"`
	PositionSide  string `json:"positionSide,omitempty"`
	Version       int64  `json:"version"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

type TradeInfo struct {
	TradeID   uint64 `json:"tradeId"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Quantity  string `json:"qty"`
	QuoteQty  string `json:"quoteQty"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}

type BalanceInfo struct {
	Asset      string `json:"asset"`
	WalletType string `json:"walletType"`
	Available  string `json:"available"`
	Locked     string `json:"locked"`
}

type PositionInfo struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"positionSide"`
	Size             string `json:"size"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	LiquidationPrice string `json:"liquidationPrice"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
	RealizedPnl      string `json:"realizedPnl"`
	Margin           string `json:"margin"`
	Leverage         int64  `json:"leverage"`
	MarginType       string `json:"marginType"`
	Status           string `json:"status"`
}

// ==============================
// Enum parsing
// ==============================

func parseSide(s string) (core.Side, error) {
	switch s {
	case "BUY":
		return core.Buy, nil
	case "SELL":
		return core.Sell, nil
	}
	return 0, fmt.Errorf("invalid side %q", s)
}

func parseOrderType(s string) (core.OrderType, error) {
	switch s {
	case "", "LIMIT":
		return core.Limit, nil
	case "MARKET":
		return core.Market, nil
	case "STOP_LOSS":
		return core.StopLoss, nil
	case "STOP_LOSS_LIMIT":
		return core.StopLossLimit, nil
	case "TAKE_PROFIT":
		return core.TakeProfit, nil
	case "TAKE_PROFIT_LIMIT":
		return core.TakeProfitLimit, nil
	case "TRAILING_STOP_MARKET":
		return core.TrailingStopMarket, nil
	case "LIMIT_MAKER":
		return core.LimitMaker, nil
	}
	return 0, fmt.Errorf("invalid order type %q", s)
}

func parseTIF(s string) (core.TimeInForce, error) {
	switch s {
	case "", "GTC":
		return core.GTC, nil
	case "IOC":
		return core.IOC, nil
	case "FOK":
		return core.FOK, nil
	}
	return 0, fmt.Errorf("invalid timeInForce %q", s)
}

func parsePositionSide(s string) (core.PositionSide, error) {
	switch s {
	case "", "BOTH":
		return core.PositionBoth, nil
	case "LONG":
		return core.PositionLong, nil
	case "SHORT":
		return core.PositionShort, nil
	}
	return 0, fmt.Errorf("invalid positionSide %q", s)
}

func parseMarginType(s string) (core.MarginType, error) {
	switch s {
	case "", "CROSS":
		return core.Cross, nil
	case "ISOLATED":
		return core.Isolated, nil
	}
	return 0, fmt.Errorf("invalid marginType %q", s)
}

func parseSTPMode(s string) (core.STPMode, error) {
	switch s {
	case "", "NONE":
		return core.STPNone, nil
	case "EXPIRE_MAKER":
		return core.STPExpireMaker, nil
	case "EXPIRE_TAKER":
		return core.STPExpireTaker, nil
	case "EXPIRE_BOTH":
		return core.STPExpireBoth, nil
	}
	return 0, fmt.Errorf("invalid selfTradePreventionMode %q", s)
}

func parseWalletType(s string) (core.WalletType, error) {
	switch s {
	case "", "SPOT":
		return core.WalletSpot, nil
	case "FUTURES":
		return core.WalletFutures, nil
	case "MARGIN":
		return core.WalletMargin, nil
	case "ISOLATED_MARGIN":
		return core.WalletIsolatedMargin, nil
	}
	return 0, fmt.Errorf("invalid walletType %q", s)
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	return d, nil
}

// ==============================
// DTO construction
// ==============================

func orderInfo(in *instrument.Instrument, o *core.Order) OrderInfo {
	info := OrderInfo{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		Type:          o.Type.String(),
		TimeInForce:   o.TimeInForce.String(),
		Status:        o.Status.String(),
		Quantity:      in.LotsToQty(o.Quantity).String(),
		ExecutedQty:   in.LotsToQty(o.ExecutedQty).String(),
		ExecutedQuote: in.QuoteUnitsToAmount(o.ExecutedQuoteQty).String(),
		ReduceOnly:    o.ReduceOnly,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Price > 0 {
		info.Price = in.TicksToPrice(o.Price).String()
	}
	if o.StopPrice > 0 {
		info.StopPrice = in.TicksToPrice(o.StopPrice).String()
	}
	if o.Market.IsLeveraged() {
		info.PositionSide = o.PositionSide.String()
	}
	return info
}

func tradeInfo(in *instrument.Instrument, t *core.Trade) TradeInfo {
	return TradeInfo{
		TradeID:   t.ID,
		Symbol:    t.Symbol,
		Price:     in.TicksToPrice(t.Price).String(),
		Quantity:  in.LotsToQty(t.Quantity).String(),
		QuoteQty:  in.QuoteUnitsToAmount(t.QuoteQty).String(),
		TakerSide: t.TakerSide.String(),
		Timestamp: t.CreatedAt,
	}
}

func positionInfo(in *instrument.Instrument, p *core.Position) PositionInfo {
	return PositionInfo{
		Symbol:           p.Key.Symbol,
		Side:             p.Key.Side.String(),
		Size:             in.LotsToQty(p.Size).String(),
		EntryPrice:       in.TicksToPrice(p.EntryPrice).String(),
		MarkPrice:        in.TicksToPrice(p.MarkPrice).String(),
		LiquidationPrice: in.TicksToPrice(p.LiquidationPrice).String(),
		UnrealizedPnl:    in.QuoteUnitsToAmount(p.UnrealizedPnl(p.MarkPrice)).String(),
		RealizedPnl:      in.QuoteUnitsToAmount(p.RealizedPnl).String(),
		Margin:           in.QuoteUnitsToAmount(p.Margin).String(),
		Leverage:         p.Leverage,
		MarginType:       p.MarginType.String(),
		Status:           p.Status.String(),
	}
}

func marketInfo(in *instrument.Instrument) MarketInfo {
	return MarketInfo{
		Symbol:               in.Symbol,
		BaseAsset:            in.BaseAsset,
		QuoteAsset:           in.QuoteAsset,
		Type:                 in.Market.String(),
		Active:               in.Active,
		TickSize:             in.TickSize.String(),
		StepSize:             in.StepSize.String(),
		MinNotional:          in.MinNotional.String(),
		MaxLeverage:          in.MaxLeverage,
		MakerFeeBps:          in.MakerFeeBps,
		TakerFeeBps:          in.TakerFeeBps,
		MaintenanceMarginBps: in.MaintenanceMarginBps,
	}
}
