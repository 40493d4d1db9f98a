package core

// Side is the direction of an order.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	return -s
}

// OrderType covers the exchange-visible order variants. Stop and trailing
// variants rest in the trigger index until their condition fires, then are
// promoted as MARKET or LIMIT per the *_LIMIT suffix.
type OrderType int8

const (
	Market OrderType = iota
	Limit
	StopLoss
	StopLossLimit
	TakeProfit
	TakeProfitLimit
	TrailingStopMarket
	LimitMaker
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case StopLoss:
		return "STOP_LOSS"
	case StopLossLimit:
		return "STOP_LOSS_LIMIT"
	case TakeProfit:
		return "TAKE_PROFIT"
	case TakeProfitLimit:
		return "TAKE_PROFIT_LIMIT"
	case TrailingStopMarket:
		return "TRAILING_STOP_MARKET"
	case LimitMaker:
		return "LIMIT_MAKER"
	default:
		return "UNKNOWN"
	}
}

// IsTriggered reports whether the type waits in the trigger index before
// entering the matching path.
func (t OrderType) IsTriggered() bool {
	switch t {
	case StopLoss, StopLossLimit, TakeProfit, TakeProfitLimit, TrailingStopMarket:
		return true
	}
	return false
}

// TimeInForce controls what happens to the unmatched remainder of an order.
type TimeInForce int8

const (
	GTC TimeInForce = iota // rest in the book
	IOC                    // cancel the remainder
	FOK                    // all-or-nothing, no book mutation on failure
)

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is the order lifecycle state machine.
//
//	NEW → PARTIALLY_FILLED → FILLED
//	NEW | PARTIALLY_FILLED → CANCELED | EXPIRED
//	admission failure → REJECTED
//	stop orders: PENDING_TRIGGER → NEW on trigger
//
// FILLED, CANCELED, EXPIRED and REJECTED are terminal and never regress.
type OrderStatus int8

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
	StatusPendingTrigger
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	case StatusPendingTrigger:
		return "PENDING_TRIGGER"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// MarketType distinguishes spot from leveraged instruments.
type MarketType int8

const (
	Spot MarketType = iota
	Futures
	Margin
)

func (mt MarketType) String() string {
	switch mt {
	case Spot:
		return "SPOT"
	case Futures:
		return "FUTURES"
	case Margin:
		return "MARGIN"
	default:
		return "UNKNOWN"
	}
}

// IsLeveraged reports whether trades on this market move positions rather
// than exchange the base asset.
func (mt MarketType) IsLeveraged() bool {
	return mt == Futures || mt == Margin
}

// WalletType segregates a user's balances by purpose. One wallet exists per
// (user, asset, walletType).
type WalletType int8

const (
	WalletSpot WalletType = iota
	WalletFutures
	WalletMargin
	WalletIsolatedMargin
)

func (wt WalletType) String() string {
	switch wt {
	case WalletSpot:
		return "SPOT"
	case WalletFutures:
		return "FUTURES"
	case WalletMargin:
		return "MARGIN"
	case WalletIsolatedMargin:
		return "ISOLATED_MARGIN"
	default:
		return "UNKNOWN"
	}
}

// WalletForMarket maps a market type to the wallet its orders draw on.
func WalletForMarket(mt MarketType) WalletType {
	switch mt {
	case Futures:
		return WalletFutures
	case Margin:
		return WalletMargin
	default:
		return WalletSpot
	}
}

// PositionSide keys a derivatives position. BOTH is the one-way-mode side.
type PositionSide int8

const (
	PositionBoth PositionSide = iota
	PositionLong
	PositionShort
)

func (ps PositionSide) String() string {
	switch ps {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	case PositionBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// PositionStatus is the position lifecycle.
type PositionStatus int8

const (
	PositionOpen PositionStatus = iota
	PositionClosed
	PositionLiquidated
)

func (ps PositionStatus) String() string {
	switch ps {
	case PositionOpen:
		return "OPEN"
	case PositionClosed:
		return "CLOSED"
	case PositionLiquidated:
		return "LIQUIDATED"
	default:
		return "UNKNOWN"
	}
}

// MarginType selects isolated or cross margining for a position.
type MarginType int8

const (
	Cross MarginType = iota
	Isolated
)

func (mt MarginType) String() string {
	switch mt {
	case Cross:
		return "CROSS"
	case Isolated:
		return "ISOLATED"
	default:
		return "UNKNOWN"
	}
}

// STPMode selects how a self-trade is resolved instead of matching.
type STPMode int8

const (
	STPNone        STPMode = iota
	STPExpireMaker         // cancel the resting order, keep matching
	STPExpireTaker         // cancel the incoming order
	STPExpireBoth          // cancel both
)

func (m STPMode) String() string {
	switch m {
	case STPNone:
		return "NONE"
	case STPExpireMaker:
		return "EXPIRE_MAKER"
	case STPExpireTaker:
		return "EXPIRE_TAKER"
	case STPExpireBoth:
		return "EXPIRE_BOTH"
	default:
		return "UNKNOWN"
	}
}
