package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/openexch/excore/pkg/core"
)

func key(user, asset string) core.WalletKey {
	return core.WalletKey{UserID: user, Asset: asset, Type: core.WalletSpot}
}

func mustBalance(t *testing.T, l *Ledger, k core.WalletKey, available, locked int64) {
	t.Helper()
	w, err := l.Get(k)
	if err != nil {
		t.Fatalf("Get(%s): %v", k, err)
	}
	if w.Available != available || w.Locked != locked {
		t.Fatalf("wallet %s = {avail %d, locked %d}, want {%d, %d}",
			k, w.Available, w.Locked, available, locked)
	}
}

func TestDepositWithdraw(t *testing.T) {
	l := New(nil)
	k := key("alice", "USDT")

	if err := l.Deposit(k, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	mustBalance(t, l, k, 1000, 0)

	if err := l.Withdraw(k, 400); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	mustBalance(t, l, k, 600, 0)

	if err := l.Withdraw(k, 601); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("overdraw: want ErrInsufficientBalance, got %v", err)
	}
	if err := l.Deposit(k, 0); !errors.Is(err, core.ErrValidation) {
		t.Errorf("zero deposit: want ErrValidation, got %v", err)
	}
	if err := l.Deposit(k, -5); !errors.Is(err, core.ErrValidation) {
		t.Errorf("negative deposit: want ErrValidation, got %v", err)
	}
}

func TestReserveRelease(t *testing.T) {
	l := New(nil)
	k := key("alice", "USDT")
	if err := l.Deposit(k, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := l.Reserve(k, 700); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	mustBalance(t, l, k, 300, 700)

	if err := l.Reserve(k, 301); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("over-reserve: want ErrInsufficientBalance, got %v", err)
	}
	mustBalance(t, l, k, 300, 700)

	if err := l.Release(k, 700); err != nil {
		t.Fatalf("Release: %v", err)
	}
	mustBalance(t, l, k, 1000, 0)

	if err := l.Release(k, 1); !errors.Is(err, core.ErrSettlementFailure) {
		t.Errorf("release beyond locked: want ErrSettlementFailure, got %v", err)
	}
}

// TestApplyAtomic: a movement set with one failing leg leaves every wallet
// untouched.
func TestApplyAtomic(t *testing.T) {
	l := New(nil)
	a := key("alice", "USDT")
	b := key("bob", "USDT")
	if err := l.Deposit(a, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	err := l.Apply([]Movement{
		{Key: a, Debit: 50},
		{Key: b, Debit: 10}, // bob has nothing
	})
	if !errors.Is(err, core.ErrSettlementFailure) {
		t.Fatalf("want ErrSettlementFailure, got %v", err)
	}
	mustBalance(t, l, a, 100, 0)
}

// TestApplyNetsRepeatedKeys: movements touching the same wallet twice are
// validated against their net effect, not leg by leg.
func TestApplyNetsRepeatedKeys(t *testing.T) {
	l := New(nil)
	a := key("alice", "USDT")
	if err := l.Deposit(a, 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// Debit 50 then credit 60: net +10, legal even though the debit alone
	// would overdraw.
	err := l.Apply([]Movement{
		{Key: a, Debit: 50},
		{Key: a, Credit: 60},
	})
	if err != nil {
		t.Fatalf("net-positive apply failed: %v", err)
	}
	mustBalance(t, l, a, 20, 0)
}

// TestApplySettlementShape walks the movement set of a spot trade and checks
// conservation per asset.
func TestApplySettlementShape(t *testing.T) {
	l := New(nil)
	buyQuote := key("buyer", "USDT")
	buyBase := key("buyer", "BTC")
	sellQuote := key("seller", "USDT")
	sellBase := key("seller", "BTC")
	sinkQuote := key(FeeSinkUser, "USDT")
	sinkBase := key(FeeSinkUser, "BTC")

	if err := l.Deposit(buyQuote, 10000); err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(sellBase, 100); err != nil {
		t.Fatal(err)
	}
	if err := l.Reserve(buyQuote, 5000); err != nil {
		t.Fatal(err)
	}
	if err := l.Reserve(sellBase, 50); err != nil {
		t.Fatal(err)
	}

	// 50 base for 5000 quote, buyer pays 1 base commission, seller 10 quote.
	err := l.Apply([]Movement{
		{Key: buyQuote, DebitLocked: 5000},
		{Key: sellBase, DebitLocked: 50},
		{Key: buyBase, Credit: 49},
		{Key: sellQuote, Credit: 4990},
		{Key: sinkBase, Credit: 1},
		{Key: sinkQuote, Credit: 10},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	mustBalance(t, l, buyQuote, 5000, 0)
	mustBalance(t, l, buyBase, 49, 0)
	mustBalance(t, l, sellQuote, 4990, 0)
	mustBalance(t, l, sellBase, 50, 0)

	if total := l.TotalByAsset("USDT"); total != 10000 {
		t.Errorf("USDT total = %d, want 10000", total)
	}
	if total := l.TotalByAsset("BTC"); total != 100 {
		t.Errorf("BTC total = %d, want 100", total)
	}
}

func TestUserWallets(t *testing.T) {
	l := New(nil)
	if err := l.Deposit(key("alice", "USDT"), 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(key("alice", "BTC"), 20); err != nil {
		t.Fatal(err)
	}
	if err := l.Deposit(key("bob", "USDT"), 30); err != nil {
		t.Fatal(err)
	}

	if got := len(l.UserWallets("alice")); got != 2 {
		t.Errorf("alice wallets = %d, want 2", got)
	}
	if got := len(l.UserWallets("carol")); got != 0 {
		t.Errorf("carol wallets = %d, want 0", got)
	}
}

func TestRestore(t *testing.T) {
	l := New(nil)
	w := core.Wallet{Key: key("alice", "USDT"), Available: 123, Locked: 45}
	l.Restore(w)
	mustBalance(t, l, w.Key, 123, 45)
}

// TestConcurrentTransfers hammers Apply from many goroutines; the total
// supply must be conserved and no balance may go negative.
func TestConcurrentTransfers(t *testing.T) {
	l := New(nil)
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		if err := l.Deposit(key(u, "USDT"), 1000); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				from := users[(worker+n)%len(users)]
				to := users[(worker+n+1)%len(users)]
				// Some transfers fail on balance; that is fine, they must
				// just fail atomically.
				_ = l.Apply([]Movement{
					{Key: key(from, "USDT"), Debit: 7},
					{Key: key(to, "USDT"), Credit: 7},
				})
			}
		}(i)
	}
	wg.Wait()

	if total := l.TotalByAsset("USDT"); total != 4000 {
		t.Fatalf("total = %d, want 4000", total)
	}
	for _, u := range users {
		w, err := l.Get(key(u, "USDT"))
		if err != nil {
			t.Fatal(err)
		}
		if w.Available < 0 || w.Locked < 0 {
			t.Fatalf("wallet %s went negative: %+v", u, w)
		}
	}
}
