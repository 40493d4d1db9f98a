// Package instrument holds trading-pair configuration and owns the
// conversion between external decimal prices/quantities and the integer
// tick/lot units the matching core works in.
package instrument

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/pkg/core"
)

// Instrument is one trading pair's configuration. Instances are immutable
// after construction; admin updates replace the whole value in the registry,
// so a pointer taken at the start of a match cycle stays consistent for that
// cycle.
type Instrument struct {
	Symbol     string          `json:"symbol"`
	BaseAsset  string          `json:"baseAsset"`
	QuoteAsset string          `json:"quoteAsset"`
	Market     core.MarketType `json:"marketType"`
	Active     bool            `json:"active"`

	// Grid. All prices must sit on the tick grid, all quantities on the lot
	// grid. Both strictly positive.
	TickSize decimal.Decimal `json:"tickSize"`
	StepSize decimal.Decimal `json:"stepSize"`

	MinPrice decimal.Decimal `json:"minPrice"`
	MaxPrice decimal.Decimal `json:"maxPrice"`
	MinQty   decimal.Decimal `json:"minQty"`
	MaxQty   decimal.Decimal `json:"maxQty"`

	// MinNotional is the minimum price × quantity in quote asset units.
	MinNotional decimal.Decimal `json:"minNotional"`

	PricePrecision    int32 `json:"pricePrecision"`
	QuantityPrecision int32 `json:"quantityPrecision"`

	AllowMarketOrders bool `json:"allowMarketOrders"`

	// Derivatives parameters (FUTURES/MARGIN only).
	MaxLeverage          int64 `json:"maxLeverage,omitempty"`
	InitialMarginBps     int64 `json:"initialMarginBps,omitempty"`
	MaintenanceMarginBps int64 `json:"maintenanceMarginBps,omitempty"`

	// Fees in basis points of notional. Maker can be negative (rebate).
	MakerFeeBps int64 `json:"makerFeeBps"`
	TakerFeeBps int64 `json:"takerFeeBps"`
}

// Validate checks configuration invariants.
func (in *Instrument) Validate() error {
	if in.Symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", core.ErrValidation)
	}
	if in.BaseAsset == "" || in.QuoteAsset == "" {
		return fmt.Errorf("%w: base and quote assets must be set", core.ErrValidation)
	}
	if !in.TickSize.IsPositive() {
		return fmt.Errorf("%w: tick size must be positive", core.ErrValidation)
	}
	if !in.StepSize.IsPositive() {
		return fmt.Errorf("%w: step size must be positive", core.ErrValidation)
	}
	if in.MinQty.GreaterThan(in.MaxQty) {
		return fmt.Errorf("%w: minQty %s exceeds maxQty %s", core.ErrValidation, in.MinQty, in.MaxQty)
	}
	if in.MinPrice.GreaterThan(in.MaxPrice) {
		return fmt.Errorf("%w: minPrice %s exceeds maxPrice %s", core.ErrValidation, in.MinPrice, in.MaxPrice)
	}
	if in.MinNotional.IsNegative() {
		return fmt.Errorf("%w: min notional cannot be negative", core.ErrValidation)
	}
	if in.Market.IsLeveraged() {
		if in.MaxLeverage <= 0 {
			return fmt.Errorf("%w: max leverage must be positive", core.ErrValidation)
		}
		if in.InitialMarginBps <= 0 {
			return fmt.Errorf("%w: initial margin must be positive", core.ErrValidation)
		}
		if in.MaintenanceMarginBps <= 0 || in.MaintenanceMarginBps > in.InitialMarginBps {
			return fmt.Errorf("%w: maintenance margin must be in (0, initial margin]", core.ErrValidation)
		}
	}
	if in.TakerFeeBps < 0 {
		return fmt.Errorf("%w: taker fee cannot be negative", core.ErrValidation)
	}
	return nil
}

// PriceToTicks converts a decimal price to integer ticks, rejecting prices
// off the tick grid or outside [MinPrice, MaxPrice].
func (in *Instrument) PriceToTicks(price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("%w: price must be positive", core.ErrValidation)
	}
	if price.LessThan(in.MinPrice) || price.GreaterThan(in.MaxPrice) {
		return 0, fmt.Errorf("%w: price %s outside [%s, %s]", core.ErrValidation, price, in.MinPrice, in.MaxPrice)
	}
	ticks := price.Div(in.TickSize)
	if !ticks.IsInteger() {
		return 0, fmt.Errorf("%w: price %s not a multiple of tick size %s", core.ErrValidation, price, in.TickSize)
	}
	return ticks.IntPart(), nil
}

// QtyToLots converts a decimal quantity to integer lots, rejecting
// quantities off the lot grid or outside [MinQty, MaxQty].
func (in *Instrument) QtyToLots(qty decimal.Decimal) (int64, error) {
	if !qty.IsPositive() {
		return 0, fmt.Errorf("%w: quantity must be positive", core.ErrValidation)
	}
	if qty.LessThan(in.MinQty) || qty.GreaterThan(in.MaxQty) {
		return 0, fmt.Errorf("%w: quantity %s outside [%s, %s]", core.ErrValidation, qty, in.MinQty, in.MaxQty)
	}
	lots := qty.Div(in.StepSize)
	if !lots.IsInteger() {
		return 0, fmt.Errorf("%w: quantity %s not a multiple of step size %s", core.ErrValidation, qty, in.StepSize)
	}
	return lots.IntPart(), nil
}

// TicksToPrice renders integer ticks as a decimal price at the instrument's
// price precision.
func (in *Instrument) TicksToPrice(ticks int64) decimal.Decimal {
	return decimal.NewFromInt(ticks).Mul(in.TickSize).Round(in.PricePrecision)
}

// LotsToQty renders integer lots as a decimal quantity at the instrument's
// quantity precision.
func (in *Instrument) LotsToQty(lots int64) decimal.Decimal {
	return decimal.NewFromInt(lots).Mul(in.StepSize).Round(in.QuantityPrecision)
}

// QuoteUnitsToAmount renders internal quote units (tick × lot products) as a
// decimal quote-asset amount.
func (in *Instrument) QuoteUnitsToAmount(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Mul(in.TickSize).Mul(in.StepSize)
}

// CheckNotional validates price × quantity against MinNotional in decimal
// space. MARKET orders have no limit price and skip this check.
func (in *Instrument) CheckNotional(price, qty decimal.Decimal) error {
	if price.Mul(qty).LessThan(in.MinNotional) {
		return fmt.Errorf("%w: notional %s below minimum %s", core.ErrValidation, price.Mul(qty), in.MinNotional)
	}
	return nil
}

// InitialMargin returns the margin required to open notional quote units of
// exposure at this instrument's initial margin rate.
func (in *Instrument) InitialMargin(priceTicks, qtyLots int64) int64 {
	notional := priceTicks * qtyLots
	return notional * in.InitialMarginBps / 10000
}

// RequiredMargin returns the margin to lock for opening notional quote
// units of exposure at the user's chosen leverage, floored by the
// instrument's initial margin rate.
func (in *Instrument) RequiredMargin(notional, leverage int64) int64 {
	if leverage < 1 {
		leverage = 1
	}
	margin := notional / leverage
	if floor := notional * in.InitialMarginBps / 10000; margin < floor {
		margin = floor
	}
	return margin
}

// MaintenanceMargin returns the margin below which a position is liquidated.
func (in *Instrument) MaintenanceMargin(priceTicks, qtyLots int64) int64 {
	notional := priceTicks * qtyLots
	return notional * in.MaintenanceMarginBps / 10000
}

// MakerFee and TakerFee compute commissions on a fill's quote units.
// A negative maker fee is a rebate.
func (in *Instrument) MakerFee(quoteUnits int64) int64 {
	return quoteUnits * in.MakerFeeBps / 10000
}

func (in *Instrument) TakerFee(quoteUnits int64) int64 {
	return quoteUnits * in.TakerFeeBps / 10000
}
