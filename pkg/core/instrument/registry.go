package instrument

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openexch/excore/pkg/core"
)

// Registry is the thread-safe instrument lookup. Reads vastly outnumber
// writes; writes swap whole *Instrument values so that readers holding a
// pointer from Get see a stable snapshot for the duration of a match cycle.
//
// It also tracks per-asset unit sizes: the decimal value of one integer
// ledger unit. Every instrument sharing an asset must sit on a grid
// compatible with that unit, so wallet integers mean the same thing across
// instruments.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	assets      map[string]decimal.Decimal // asset → unit size
}

func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]*Instrument),
		assets:      make(map[string]decimal.Decimal),
	}
}

// RegisterAsset declares the internal unit size of an asset. Must be set
// before instruments using the asset are registered.
func (r *Registry) RegisterAsset(symbol string, unit decimal.Decimal) error {
	if symbol == "" || !unit.IsPositive() {
		return fmt.Errorf("%w: asset needs a symbol and a positive unit", core.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[symbol]; exists {
		return fmt.Errorf("%w: asset %s already registered", core.ErrValidation, symbol)
	}
	r.assets[symbol] = unit
	return nil
}

// AssetUnit returns the unit size for an asset.
func (r *Registry) AssetUnit(symbol string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.assets[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: asset %s", core.ErrNotFound, symbol)
	}
	return unit, nil
}

// AmountToUnits converts a decimal asset amount to integer ledger units,
// rejecting amounts off the asset's unit grid.
func (r *Registry) AmountToUnits(asset string, amount decimal.Decimal) (int64, error) {
	unit, err := r.AssetUnit(asset)
	if err != nil {
		return 0, err
	}
	q := amount.Div(unit)
	if !q.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s not a multiple of %s unit %s", core.ErrValidation, amount, asset, unit)
	}
	return q.IntPart(), nil
}

// UnitsToAmount converts integer ledger units back to a decimal amount.
func (r *Registry) UnitsToAmount(asset string, units int64) decimal.Decimal {
	unit, err := r.AssetUnit(asset)
	if err != nil {
		return decimal.Zero
	}
	return unit.Mul(decimal.NewFromInt(units))
}

// Register adds a new instrument. Symbols are globally unique, and the
// instrument's grids must agree with its assets' unit sizes: one lot is one
// base unit, one tick of one lot is one quote unit.
func (r *Registry) Register(in *Instrument) error {
	if in == nil {
		return fmt.Errorf("%w: nil instrument", core.ErrValidation)
	}
	if err := in.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[in.Symbol]; exists {
		return fmt.Errorf("%w: instrument %s already registered", core.ErrValidation, in.Symbol)
	}
	if base, ok := r.assets[in.BaseAsset]; ok && !in.StepSize.Equal(base) {
		return fmt.Errorf("%w: step size %s disagrees with %s unit %s", core.ErrValidation, in.StepSize, in.BaseAsset, base)
	}
	if quote, ok := r.assets[in.QuoteAsset]; ok && !in.TickSize.Mul(in.StepSize).Equal(quote) {
		return fmt.Errorf("%w: tick*step %s disagrees with %s unit %s",
			core.ErrValidation, in.TickSize.Mul(in.StepSize), in.QuoteAsset, quote)
	}
	r.instruments[in.Symbol] = in
	return nil
}

// Get returns the instrument for symbol.
func (r *Registry) Get(symbol string) (*Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.instruments[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: instrument %s", core.ErrNotFound, symbol)
	}
	return in, nil
}

// Update replaces an instrument's configuration. In-flight match cycles keep
// the snapshot they already read; the next cycle observes the update.
func (r *Registry) Update(in *Instrument) error {
	if err := in.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instruments[in.Symbol]; !ok {
		return fmt.Errorf("%w: instrument %s", core.ErrNotFound, in.Symbol)
	}
	r.instruments[in.Symbol] = in
	return nil
}

// SetActive flips trading on or off for a symbol.
func (r *Registry) SetActive(symbol string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.instruments[symbol]
	if !ok {
		return fmt.Errorf("%w: instrument %s", core.ErrNotFound, symbol)
	}
	cp := *in
	cp.Active = active
	r.instruments[symbol] = &cp
	return nil
}

// List returns all registered instruments.
func (r *Registry) List() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instrument, 0, len(r.instruments))
	for _, in := range r.instruments {
		out = append(out, in)
	}
	return out
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
