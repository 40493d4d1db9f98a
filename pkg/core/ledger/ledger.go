// Package ledger owns every balance mutation in the core. Balances are keyed
// by (user, asset, walletType); each key is serialized through a lock stripe,
// and multi-key operations acquire stripes in ascending order so concurrent
// settlements cannot deadlock.
package ledger

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
)

const stripeCount = 256

// FeeSinkUser is the designated system account commissions are credited to.
// Fees are redistributed into it, never created or destroyed.
const FeeSinkUser = "fee-sink"

// Movement describes the effect of one operation on one wallet. Apply treats
// a slice of movements as a single atomic unit.
type Movement struct {
	Key core.WalletKey

	DebitLocked int64 // consume locked funds (settlement debit leg)
	Unlock      int64 // locked → available (release of an unused reserve)
	Lock        int64 // available → locked (margin topped up mid-fill)
	Credit      int64 // add to available (settlement credit leg)
	Debit       int64 // remove from available (fees charged outside a lock)
}

// Ledger is the in-memory authoritative balance book. Durable snapshots of
// touched wallets are taken by settlement after each applied trade.
type Ledger struct {
	mu      sync.RWMutex // guards the wallets map shape
	wallets map[core.WalletKey]*core.Wallet

	stripes [stripeCount]sync.Mutex

	log *zap.Logger
}

func New(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		wallets: make(map[core.WalletKey]*core.Wallet),
		log:     log.Named("ledger"),
	}
}

func stripeFor(k core.WalletKey) int {
	h := fnv.New32a()
	h.Write([]byte(k.UserID))
	h.Write([]byte{0})
	h.Write([]byte(k.Asset))
	h.Write([]byte{0, byte(k.Type)})
	return int(h.Sum32() % stripeCount)
}

// lockKeys locks the stripes covering keys in ascending stripe order and
// returns the matching unlock function.
func (l *Ledger) lockKeys(keys ...core.WalletKey) func() {
	seen := make(map[int]struct{}, len(keys))
	order := make([]int, 0, len(keys))
	for _, k := range keys {
		s := stripeFor(k)
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			order = append(order, s)
		}
	}
	sort.Ints(order)
	for _, s := range order {
		l.stripes[s].Lock()
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			l.stripes[order[i]].Unlock()
		}
	}
}

// getOrCreate returns the wallet for key, creating a zero wallet on first
// touch. Caller must hold the key's stripe.
func (l *Ledger) getOrCreate(key core.WalletKey) *core.Wallet {
	l.mu.RLock()
	w, ok := l.wallets[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.wallets[key]; ok {
		return w
	}
	w = &core.Wallet{Key: key}
	l.wallets[key] = w
	return w
}

// Deposit credits available balance. Used by the external funding
// collaborator and by tests to seed accounts.
func (l *Ledger) Deposit(key core.WalletKey, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", core.ErrValidation)
	}
	unlock := l.lockKeys(key)
	defer unlock()

	w := l.getOrCreate(key)
	w.Available += amount
	w.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Withdraw debits available balance.
func (l *Ledger) Withdraw(key core.WalletKey, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", core.ErrValidation)
	}
	unlock := l.lockKeys(key)
	defer unlock()

	w := l.getOrCreate(key)
	if w.Available < amount {
		return fmt.Errorf("%w: have %d, need %d", core.ErrInsufficientBalance, w.Available, amount)
	}
	w.Available -= amount
	w.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Reserve moves amount from available to locked, failing with
// ErrInsufficientBalance if available < amount. Called at order admission.
func (l *Ledger) Reserve(key core.WalletKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: reserve amount cannot be negative", core.ErrValidation)
	}
	if amount == 0 {
		return nil
	}
	unlock := l.lockKeys(key)
	defer unlock()

	w := l.getOrCreate(key)
	if w.Available < amount {
		return fmt.Errorf("%w: have %d, need %d", core.ErrInsufficientBalance, w.Available, amount)
	}
	w.Available -= amount
	w.Locked += amount
	w.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Release moves amount from locked back to available (order canceled or
// expired, or over-reservation returned after a fill).
func (l *Ledger) Release(key core.WalletKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: release amount cannot be negative", core.ErrValidation)
	}
	if amount == 0 {
		return nil
	}
	unlock := l.lockKeys(key)
	defer unlock()

	w := l.getOrCreate(key)
	if w.Locked < amount {
		return fmt.Errorf("%w: cannot release %d, locked %d on %s", core.ErrSettlementFailure, amount, w.Locked, key)
	}
	w.Locked -= amount
	w.Available += amount
	w.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Apply executes a set of movements atomically: every leg is validated
// against the resulting balances before any wallet is touched, so a failed
// leg leaves no partial mutation visible. Stripes are acquired in ascending
// order across all keys.
func (l *Ledger) Apply(movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	keys := make([]core.WalletKey, len(movements))
	for i, m := range movements {
		keys[i] = m.Key
	}
	unlock := l.lockKeys(keys...)
	defer unlock()

	// Movements may repeat a key; accumulate the net effect per wallet.
	type delta struct{ available, locked int64 }
	net := make(map[core.WalletKey]*delta, len(movements))
	for _, m := range movements {
		d, ok := net[m.Key]
		if !ok {
			d = &delta{}
			net[m.Key] = d
		}
		d.locked += m.Lock - m.DebitLocked - m.Unlock
		d.available += m.Unlock + m.Credit - m.Debit - m.Lock
	}

	// Validate all legs first.
	for key, d := range net {
		w := l.getOrCreate(key)
		if w.Available+d.available < 0 {
			return fmt.Errorf("%w: wallet %s available %d + %d < 0", core.ErrSettlementFailure, key, w.Available, d.available)
		}
		if w.Locked+d.locked < 0 {
			return fmt.Errorf("%w: wallet %s locked %d + %d < 0", core.ErrSettlementFailure, key, w.Locked, d.locked)
		}
	}

	now := time.Now().UnixMilli()
	for key, d := range net {
		w := l.wallets[key]
		w.Available += d.available
		w.Locked += d.locked
		w.UpdatedAt = now
	}
	return nil
}

// Get returns a copy of the wallet for key, or ErrNotFound.
func (l *Ledger) Get(key core.WalletKey) (core.Wallet, error) {
	unlock := l.lockKeys(key)
	defer unlock()

	l.mu.RLock()
	w, ok := l.wallets[key]
	l.mu.RUnlock()
	if !ok {
		return core.Wallet{}, fmt.Errorf("%w: wallet %s", core.ErrNotFound, key)
	}
	return *w, nil
}

// UserWallets returns copies of all wallets belonging to userID.
func (l *Ledger) UserWallets(userID string) []core.Wallet {
	l.mu.RLock()
	keys := make([]core.WalletKey, 0, 4)
	for k := range l.wallets {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	out := make([]core.Wallet, 0, len(keys))
	for _, k := range keys {
		if w, err := l.Get(k); err == nil {
			out = append(out, w)
		}
	}
	return out
}

// Snapshot returns copies of the wallets for keys, for durable persistence
// after a settlement.
func (l *Ledger) Snapshot(keys []core.WalletKey) []core.Wallet {
	unlock := l.lockKeys(keys...)
	defer unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Wallet, 0, len(keys))
	seen := make(map[core.WalletKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if w, ok := l.wallets[k]; ok {
			out = append(out, *w)
		}
	}
	return out
}

// TotalByAsset sums available + locked across every wallet holding asset.
// Settlement conserves this total (fees flow to the fee sink, which is part
// of the sum).
func (l *Ledger) TotalByAsset(asset string) int64 {
	l.mu.RLock()
	keys := make([]core.WalletKey, 0)
	for k := range l.wallets {
		if k.Asset == asset {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	var total int64
	for _, k := range keys {
		if w, err := l.Get(k); err == nil {
			total += w.Available + w.Locked
		}
	}
	return total
}

// Restore installs a wallet loaded from durable storage. Only called during
// startup before the engine accepts orders.
func (l *Ledger) Restore(w core.Wallet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := w
	l.wallets[w.Key] = &cp
}
