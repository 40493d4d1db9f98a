package storage

import (
	"fmt"

	"github.com/openexch/excore/pkg/core"
)

// Pebble key schema.
//
//  1. Prefix-based for range scans (all orders of a user, all trades of a
//     symbol).
//  2. Zero-padded timestamps for lexicographic time ordering.
//  3. Owner (user or symbol) as the leading component.
const (
	prefixWallet      = "wal:"
	prefixOrder       = "ord:"
	prefixTrade       = "trade:"
	prefixPosition    = "pos:"
	prefixLiquidation = "liq:"
)

// walletKey: "wal:{user}:{asset}:{walletType}"
func walletKey(k core.WalletKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixWallet, k.UserID, k.Asset, k.Type))
}

func walletPrefixAll() []byte {
	return []byte(prefixWallet)
}

// orderKey: "ord:{user}:{orderID:020d}"
func orderKey(userID string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, userID, id))
}

func orderPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, userID))
}

// tradeKey: "trade:{symbol}:{createdAt:020d}:{id:020d}"
func tradeKey(symbol string, createdAt int64, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, symbol, createdAt, id))
}

func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

// positionKey: "pos:{user}:{symbol}:{side}"
func positionKey(k core.PositionKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixPosition, k.UserID, k.Symbol, k.Side))
}

func positionPrefixAll() []byte {
	return []byte(prefixPosition)
}

// liquidationKey: "liq:{user}:{createdAt:020d}:{id:020d}"
func liquidationKey(userID string, createdAt int64, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixLiquidation, userID, createdAt, id))
}

func liquidationPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixLiquidation, userID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
