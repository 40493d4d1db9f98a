// Package storage persists the core's durable records — wallets, orders,
// trades, positions and liquidations — in a Pebble database. Settlement
// commits the full effect of a trade (trade + both orders + touched wallets)
// as one atomic batch.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/openexch/excore/pkg/core"
)

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the Pebble database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20),
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key []byte, v any, sync bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	if err := s.db.Set(key, data, opt); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// SaveWallet persists one wallet snapshot.
func (s *Store) SaveWallet(w core.Wallet) error {
	return s.put(walletKey(w.Key), w, true)
}

// LoadWallets streams every persisted wallet into fn. Used to rebuild the
// ledger at startup.
func (s *Store) LoadWallets(fn func(core.Wallet)) error {
	return s.scan(walletPrefixAll(), func(val []byte) {
		var w core.Wallet
		if json.Unmarshal(val, &w) == nil {
			fn(w)
		}
	})
}

// SaveOrder persists an order record.
func (s *Store) SaveOrder(o *core.Order) error {
	return s.put(orderKey(o.UserID, o.ID), o, true)
}

// LoadUserOrders returns all persisted orders for a user, open filter
// optional.
func (s *Store) LoadUserOrders(userID string, openOnly bool) ([]*core.Order, error) {
	var orders []*core.Order
	err := s.scan(orderPrefix(userID), func(val []byte) {
		var o core.Order
		if json.Unmarshal(val, &o) != nil {
			return
		}
		if openOnly && o.IsClosed() {
			return
		}
		orders = append(orders, &o)
	})
	return orders, err
}

// SaveTrade persists a trade fact.
func (s *Store) SaveTrade(t *core.Trade) error {
	return s.put(tradeKey(t.Symbol, t.CreatedAt, t.ID), t, false)
}

// RecentTrades returns up to limit trades for symbol, newest first.
func (s *Store) RecentTrades(symbol string, limit int) ([]*core.Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	var trades []*core.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t core.Trade
		if json.Unmarshal(iter.Value(), &t) == nil {
			trades = append(trades, &t)
		}
	}
	return trades, nil
}

// SavePosition persists a position.
func (s *Store) SavePosition(p *core.Position) error {
	return s.put(positionKey(p.Key), p, true)
}

// LoadPositions streams every persisted position into fn.
func (s *Store) LoadPositions(fn func(core.Position)) error {
	return s.scan(positionPrefixAll(), func(val []byte) {
		var p core.Position
		if json.Unmarshal(val, &p) == nil {
			fn(p)
		}
	})
}

// SaveLiquidation persists a liquidation fact.
func (s *Store) SaveLiquidation(l *core.Liquidation) error {
	return s.put(liquidationKey(l.UserID, l.CreatedAt, l.ID), l, true)
}

// UserLiquidations returns all liquidation records for a user.
func (s *Store) UserLiquidations(userID string) ([]*core.Liquidation, error) {
	var out []*core.Liquidation
	err := s.scan(liquidationPrefix(userID), func(val []byte) {
		var l core.Liquidation
		if json.Unmarshal(val, &l) == nil {
			out = append(out, &l)
		}
	})
	return out, err
}

func (s *Store) scan(prefix []byte, fn func(val []byte)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		fn(iter.Value())
	}
	return nil
}

// Batch groups writes for one atomic commit. Settlement uses it so a trade
// and everything it touched become durable together or not at all.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) set(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return b.batch.Set(key, data, nil)
}

func (b *Batch) SaveWallet(w core.Wallet) error {
	return b.set(walletKey(w.Key), w)
}

func (b *Batch) SaveOrder(o *core.Order) error {
	return b.set(orderKey(o.UserID, o.ID), o)
}

func (b *Batch) SaveTrade(t *core.Trade) error {
	return b.set(tradeKey(t.Symbol, t.CreatedAt, t.ID), t)
}

func (b *Batch) SavePosition(p *core.Position) error {
	return b.set(positionKey(p.Key), p)
}

func (b *Batch) SaveLiquidation(l *core.Liquidation) error {
	return b.set(liquidationKey(l.UserID, l.CreatedAt, l.ID), l)
}

// Commit writes the batch atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
