package instrument

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/pkg/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func btcUSDT() *Instrument {
	return &Instrument{
		Symbol:            "BTC-USDT",
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		Market:            core.Spot,
		Active:            true,
		TickSize:          dec("0.1"),
		StepSize:          dec("0.00001"),
		MinPrice:          dec("0.1"),
		MaxPrice:          dec("1000000"),
		MinQty:            dec("0.00001"),
		MaxQty:            dec("1000"),
		MinNotional:       dec("10"),
		PricePrecision:    1,
		QuantityPrecision: 5,
		AllowMarketOrders: true,
		MakerFeeBps:       10,
		TakerFeeBps:       20,
	}
}

// TestPriceToTicks checks grid alignment and range enforcement.
func TestPriceToTicks(t *testing.T) {
	in := btcUSDT()

	tests := []struct {
		price   string
		ticks   int64
		wantErr bool
	}{
		{price: "50000.0", ticks: 500000},
		{price: "0.1", ticks: 1},
		{price: "123.4", ticks: 1234},
		{price: "50000.05", wantErr: true}, // off grid
		{price: "0", wantErr: true},
		{price: "-5", wantErr: true},
		{price: "2000000", wantErr: true}, // above MaxPrice
	}

	for _, tt := range tests {
		got, err := in.PriceToTicks(dec(tt.price))
		if (err != nil) != tt.wantErr {
			t.Errorf("PriceToTicks(%s): wantErr=%v, got err=%v", tt.price, tt.wantErr, err)
			continue
		}
		if err == nil && got != tt.ticks {
			t.Errorf("PriceToTicks(%s) = %d, want %d", tt.price, got, tt.ticks)
		}
		if err != nil && !errors.Is(err, core.ErrValidation) {
			t.Errorf("PriceToTicks(%s): error %v is not ErrValidation", tt.price, err)
		}
	}
}

// TestQtyToLots checks the quantity grid.
func TestQtyToLots(t *testing.T) {
	in := btcUSDT()

	tests := []struct {
		qty     string
		lots    int64
		wantErr bool
	}{
		{qty: "1", lots: 100000},
		{qty: "0.00001", lots: 1},
		{qty: "0.5", lots: 50000},
		{qty: "0.000015", wantErr: true}, // off grid
		{qty: "0", wantErr: true},
		{qty: "5000", wantErr: true}, // above MaxQty
	}

	for _, tt := range tests {
		got, err := in.QtyToLots(dec(tt.qty))
		if (err != nil) != tt.wantErr {
			t.Errorf("QtyToLots(%s): wantErr=%v, got err=%v", tt.qty, tt.wantErr, err)
			continue
		}
		if err == nil && got != tt.lots {
			t.Errorf("QtyToLots(%s) = %d, want %d", tt.qty, got, tt.lots)
		}
	}
}

// TestRoundTripConversions verifies ticks→price and lots→qty render back to
// the original decimals.
func TestRoundTripConversions(t *testing.T) {
	in := btcUSDT()

	price := dec("50000.1")
	ticks, err := in.PriceToTicks(price)
	if err != nil {
		t.Fatalf("PriceToTicks: %v", err)
	}
	if back := in.TicksToPrice(ticks); !back.Equal(price) {
		t.Errorf("TicksToPrice(%d) = %s, want %s", ticks, back, price)
	}

	qty := dec("0.25")
	lots, err := in.QtyToLots(qty)
	if err != nil {
		t.Fatalf("QtyToLots: %v", err)
	}
	if back := in.LotsToQty(lots); !back.Equal(qty) {
		t.Errorf("LotsToQty(%d) = %s, want %s", lots, back, qty)
	}
}

// TestQuoteUnitsToAmount: quote units are tick×lot products, and one unit is
// tickSize×stepSize of the quote asset.
func TestQuoteUnitsToAmount(t *testing.T) {
	in := btcUSDT()

	// 50000.0 × 0.5 BTC = 25000 USDT = 500000 ticks × 50000 lots.
	units := int64(500000) * 50000
	if got, want := in.QuoteUnitsToAmount(units), dec("25000"); !got.Equal(want) {
		t.Errorf("QuoteUnitsToAmount(%d) = %s, want %s", units, got, want)
	}
}

func TestCheckNotional(t *testing.T) {
	in := btcUSDT()

	if err := in.CheckNotional(dec("50000"), dec("0.001")); err != nil {
		t.Errorf("notional 50 should pass: %v", err)
	}
	if err := in.CheckNotional(dec("50000"), dec("0.0001")); err == nil {
		t.Error("notional 5 below minimum 10 should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Instrument)
		wantErr bool
	}{
		{name: "valid spot", mutate: func(*Instrument) {}},
		{name: "empty symbol", mutate: func(in *Instrument) { in.Symbol = "" }, wantErr: true},
		{name: "zero tick", mutate: func(in *Instrument) { in.TickSize = decimal.Zero }, wantErr: true},
		{name: "negative step", mutate: func(in *Instrument) { in.StepSize = dec("-1") }, wantErr: true},
		{name: "min above max qty", mutate: func(in *Instrument) { in.MinQty = dec("2000") }, wantErr: true},
		{
			name: "leveraged without margin params",
			mutate: func(in *Instrument) {
				in.Market = core.Futures
				in.MaxLeverage = 20
			},
			wantErr: true,
		},
		{
			name: "valid futures",
			mutate: func(in *Instrument) {
				in.Market = core.Futures
				in.MaxLeverage = 20
				in.InitialMarginBps = 500
				in.MaintenanceMarginBps = 250
			},
		},
		{
			name: "maintenance above initial",
			mutate: func(in *Instrument) {
				in.Market = core.Futures
				in.MaxLeverage = 20
				in.InitialMarginBps = 200
				in.MaintenanceMarginBps = 500
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := btcUSDT()
			tt.mutate(in)
			if err := in.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got err=%v", tt.wantErr, err)
			}
		})
	}
}

// TestRequiredMargin: leverage divides the notional, floored by the
// instrument's initial margin rate.
func TestRequiredMargin(t *testing.T) {
	in := btcUSDT()
	in.InitialMarginBps = 500 // 5% floor, max effective leverage 20

	tests := []struct {
		notional, leverage, want int64
	}{
		{notional: 10000, leverage: 10, want: 1000},
		{notional: 10000, leverage: 20, want: 500},
		{notional: 10000, leverage: 50, want: 500}, // floored at 5%
		{notional: 10000, leverage: 0, want: 10000},
		{notional: 10000, leverage: 1, want: 10000},
	}

	for _, tt := range tests {
		if got := in.RequiredMargin(tt.notional, tt.leverage); got != tt.want {
			t.Errorf("RequiredMargin(%d, %d) = %d, want %d", tt.notional, tt.leverage, got, tt.want)
		}
	}
}

func TestFees(t *testing.T) {
	in := btcUSDT()

	if got := in.MakerFee(100000); got != 100 {
		t.Errorf("MakerFee(100000) = %d, want 100", got)
	}
	if got := in.TakerFee(100000); got != 200 {
		t.Errorf("TakerFee(100000) = %d, want 200", got)
	}

	in.MakerFeeBps = -5 // rebate
	if got := in.MakerFee(100000); got != -50 {
		t.Errorf("MakerFee rebate = %d, want -50", got)
	}
}
