package core

import "fmt"

// WalletKey identifies one balance bucket. One wallet exists per key.
type WalletKey struct {
	UserID string     `json:"userId"`
	Asset  string     `json:"asset"`
	Type   WalletType `json:"walletType"`
}

func (k WalletKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.Asset, k.Type)
}

// Wallet holds one (user, asset, walletType) balance. Available and Locked
// are both non-negative at all times; total only changes through deposits,
// withdrawals and settlement.
type Wallet struct {
	Key       WalletKey `json:"key"`
	Available int64     `json:"available"`
	Locked    int64     `json:"locked"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Total returns available + locked.
func (w *Wallet) Total() int64 {
	return w.Available + w.Locked
}

// Validate checks wallet invariants.
func (w *Wallet) Validate() error {
	if w.Available < 0 {
		return fmt.Errorf("wallet %s: negative available balance %d", w.Key, w.Available)
	}
	if w.Locked < 0 {
		return fmt.Errorf("wallet %s: negative locked balance %d", w.Key, w.Locked)
	}
	return nil
}
