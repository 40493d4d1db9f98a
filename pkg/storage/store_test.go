package storage

import (
	"testing"

	"github.com/openexch/excore/pkg/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWalletRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := core.Wallet{
		Key:       core.WalletKey{UserID: "alice", Asset: "USDT", Type: core.WalletSpot},
		Available: 1000,
		Locked:    250,
	}
	if err := s.SaveWallet(want); err != nil {
		t.Fatalf("SaveWallet: %v", err)
	}
	other := want
	other.Key.Type = core.WalletFutures
	other.Available = 42
	if err := s.SaveWallet(other); err != nil {
		t.Fatalf("SaveWallet: %v", err)
	}

	var got []core.Wallet
	if err := s.LoadWallets(func(w core.Wallet) { got = append(got, w) }); err != nil {
		t.Fatalf("LoadWallets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d wallets, want 2", len(got))
	}
	found := false
	for _, w := range got {
		if w.Key == want.Key {
			found = true
			if w.Available != 1000 || w.Locked != 250 {
				t.Errorf("wallet = %+v", w)
			}
		}
	}
	if !found {
		t.Error("spot wallet missing from scan")
	}
}

func TestOrderRoundTrip(t *testing.T) {
	s := openTestStore(t)

	open := &core.Order{ID: 1, UserID: "alice", Symbol: "BTC-USDT", Status: core.StatusNew, Quantity: 10}
	done := &core.Order{ID: 2, UserID: "alice", Symbol: "BTC-USDT", Status: core.StatusFilled, Quantity: 5, ExecutedQty: 5}
	foreign := &core.Order{ID: 3, UserID: "bob", Symbol: "BTC-USDT", Status: core.StatusNew, Quantity: 1}
	for _, o := range []*core.Order{open, done, foreign} {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder: %v", err)
		}
	}

	all, err := s.LoadUserOrders("alice", false)
	if err != nil {
		t.Fatalf("LoadUserOrders: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("alice orders = %d, want 2", len(all))
	}

	openOnly, err := s.LoadUserOrders("alice", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(openOnly) != 1 || openOnly[0].ID != 1 {
		t.Errorf("open orders = %v, want just order 1", openOnly)
	}
}

// TestRecentTrades: newest first, bounded by limit, isolated per symbol.
func TestRecentTrades(t *testing.T) {
	s := openTestStore(t)

	for i := int64(1); i <= 5; i++ {
		tr := &core.Trade{ID: uint64(i), Symbol: "BTC-USDT", Price: 100 + i, Quantity: 1, CreatedAt: 1000 + i}
		if err := s.SaveTrade(tr); err != nil {
			t.Fatalf("SaveTrade: %v", err)
		}
	}
	if err := s.SaveTrade(&core.Trade{ID: 99, Symbol: "ETH-USDT", Price: 7, Quantity: 1, CreatedAt: 2000}); err != nil {
		t.Fatal(err)
	}

	trades, err := s.RecentTrades("BTC-USDT", 3)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if trades[0].ID != 5 || trades[2].ID != 3 {
		t.Errorf("order = [%d %d %d], want newest first [5 4 3]",
			trades[0].ID, trades[1].ID, trades[2].ID)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	p := &core.Position{
		Key:        core.PositionKey{UserID: "alice", Symbol: "BTC-USDT-PERP", Side: core.PositionLong},
		Size:       10,
		EntryPrice: 50000,
		Status:     core.PositionOpen,
	}
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	var got []core.Position
	if err := s.LoadPositions(func(p core.Position) { got = append(got, p) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Size != 10 || got[0].Key != p.Key {
		t.Errorf("positions = %+v", got)
	}
}

func TestLiquidations(t *testing.T) {
	s := openTestStore(t)

	l := &core.Liquidation{ID: 7, UserID: "alice", Symbol: "BTC-USDT-PERP", Size: 10, Pnl: -600, CreatedAt: 123}
	if err := s.SaveLiquidation(l); err != nil {
		t.Fatalf("SaveLiquidation: %v", err)
	}

	got, err := s.UserLiquidations("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Pnl != -600 {
		t.Errorf("liquidations = %+v", got)
	}
	none, err := s.UserLiquidations("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("bob liquidations = %d, want 0", len(none))
	}
}

// TestBatchCommit: everything in a batch lands together; a closed batch
// lands nothing.
func TestBatchCommit(t *testing.T) {
	s := openTestStore(t)

	b := s.NewBatch()
	tr := &core.Trade{ID: 1, Symbol: "BTC-USDT", Price: 100, Quantity: 2, CreatedAt: 10}
	if err := b.SaveTrade(tr); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveWallet(core.Wallet{Key: core.WalletKey{UserID: "alice", Asset: "USDT", Type: core.WalletSpot}, Available: 5}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	trades, err := s.RecentTrades("BTC-USDT", 10)
	if err != nil || len(trades) != 1 {
		t.Fatalf("trades after commit = %v, %v", trades, err)
	}

	dropped := s.NewBatch()
	if err := dropped.SaveTrade(&core.Trade{ID: 2, Symbol: "BTC-USDT", CreatedAt: 11}); err != nil {
		t.Fatal(err)
	}
	if err := dropped.Close(); err != nil {
		t.Fatal(err)
	}
	trades, err = s.RecentTrades("BTC-USDT", 10)
	if err != nil || len(trades) != 1 {
		t.Fatalf("discarded batch leaked: %v, %v", trades, err)
	}
}
