package core

import "errors"

// Error taxonomy. Validation and balance errors are recoverable and reported
// synchronously to the caller; ErrSettlementFailure indicates an internal
// invariant violation and is never retried automatically.
var (
	// ErrValidation covers bad tick/lot alignment, notional below minimum,
	// size limits and inactive markets. Rejected before any reservation.
	ErrValidation = errors.New("order validation failed")

	// ErrInsufficientBalance means the reservation step failed. The order is
	// rejected with no book mutation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound covers unknown symbols, orders and wallets.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification means a cancel/amend carried a stale version.
	// The caller must retry with fresh state.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDuplicateClientOrderID means the clientOrderId was already used by
	// this user.
	ErrDuplicateClientOrderID = errors.New("duplicate client order id")

	// ErrSettlementFailure means a trade could not be applied atomically.
	// The match cycle that produced it is aborted and operator reconciliation
	// is required; silent retry risks double-settlement.
	ErrSettlementFailure = errors.New("settlement failure")

	// ErrWouldMatch means a LIMIT_MAKER order would have crossed the book.
	ErrWouldMatch = errors.New("post-only order would match")

	// ErrReduceOnly means a reduce-only order would grow the position.
	ErrReduceOnly = errors.New("reduce-only order would increase position")
)
