// Package engine is the matching core. One shard per instrument serializes
// matching for that symbol (single active writer); different symbols match
// in parallel. The engine validates against the instrument registry,
// reserves funds in the ledger, walks the book in price-time priority,
// hands each match to settlement, and feeds the position manager on
// leveraged markets. Fill notifications flow asynchronously through the
// event loop; submission itself is synchronous up to the accept/reject
// acknowledgment.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/core/ledger"
	"github.com/openexch/excore/pkg/core/orderbook"
	"github.com/openexch/excore/pkg/core/position"
	"github.com/openexch/excore/pkg/core/settle"
	"github.com/openexch/excore/pkg/idgen"
	"github.com/openexch/excore/pkg/util"
)

// Event types published to handlers.
const (
	EventOrder       = "ORDER"
	EventTrade       = "TRADE"
	EventLiquidation = "LIQUIDATION"
)

// Event is one engine occurrence, delivered asynchronously to handlers.
// Order and Trade are copies; handlers may retain them.
type Event struct {
	Type        string            `json:"type"`
	Symbol      string            `json:"symbol"`
	Order       *core.Order       `json:"order,omitempty"`
	Trade       *core.Trade       `json:"trade,omitempty"`
	Liquidation *core.Liquidation `json:"liquidation,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}

type EventHandler func(*Event)

// FeeSchedule resolves maker/taker commission rates for a user on an
// instrument. The default uses the instrument's flat rates; a tiered
// schedule from the fee collaborator can be plugged in.
type FeeSchedule interface {
	Fees(userID string, in *instrument.Instrument) (makerBps, takerBps int64)
}

type flatFees struct{}

func (flatFees) Fees(_ string, in *instrument.Instrument) (int64, int64) {
	return in.MakerFeeBps, in.TakerFeeBps
}

// IdentityChecker gates order submission on user identity/KYC status.
// Identity is an external collaborator; the default admits everyone.
type IdentityChecker func(userID string) error

// shard is one symbol's matching state. mu is the symbol's single-writer
// lock: matching, cancels and mark-price sweeps for the symbol all run
// under it, which makes cancel-vs-match linearizable.
type shard struct {
	mu       sync.Mutex
	book     *orderbook.Book
	expiring map[uint64]*core.Order // resting orders with ExpiresAt set
}

type Engine struct {
	registry  *instrument.Registry
	ledger    *ledger.Ledger
	settler   *settle.Settler
	positions *position.Manager
	ids       *idgen.Generator
	log       *zap.Logger

	shardsMu sync.RWMutex
	shards   map[string]*shard

	// Flat order table (arena-style: bracket linkage is by ID, not nested
	// ownership). clientIDs enforces clientOrderId uniqueness per user.
	ordersMu  sync.RWMutex
	orders    map[uint64]*core.Order
	clientIDs map[string]uint64
	children  map[uint64][]*core.Order // parentID → inert children

	fees       FeeSchedule
	identity   IdentityChecker
	defaultSTP core.STPMode
	clock      util.Clock

	eventCh  chan *Event
	handlers []EventHandler
	running  int32
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(reg *instrument.Registry, led *ledger.Ledger, settler *settle.Settler, positions *position.Manager, ids *idgen.Generator, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry:  reg,
		ledger:    led,
		settler:   settler,
		positions: positions,
		ids:       ids,
		log:       log.Named("engine"),
		shards:    make(map[string]*shard),
		orders:    make(map[uint64]*core.Order),
		clientIDs: make(map[string]uint64),
		children:  make(map[uint64][]*core.Order),
		fees:      flatFees{},
		identity:  func(string) error { return nil },
		clock:     util.RealClock{},
		eventCh:   make(chan *Event, 1<<16),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetFeeSchedule replaces the flat instrument fees with a tiered schedule.
func (e *Engine) SetFeeSchedule(fs FeeSchedule) {
	if fs != nil {
		e.fees = fs
	}
}

// SetIdentityChecker installs the KYC/identity gate.
func (e *Engine) SetIdentityChecker(ic IdentityChecker) {
	if ic != nil {
		e.identity = ic
	}
}

// SetDefaultSTP sets the self-trade prevention mode applied to orders that
// do not pick one.
func (e *Engine) SetDefaultSTP(mode core.STPMode) {
	e.defaultSTP = mode
}

// SetClock replaces the wall clock behind timestamps and order expiry.
// Tests use a manual clock to drive ExpiresAt sweeps.
func (e *Engine) SetClock(c util.Clock) {
	if c != nil {
		e.clock = c
	}
}

// RegisterHandler subscribes to engine events. Must be called before Start.
func (e *Engine) RegisterHandler(h EventHandler) {
	e.handlers = append(e.handlers, h)
}

// Start launches the event loop.
func (e *Engine) Start() {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return
	}
	e.wg.Add(1)
	go e.eventLoop()
}

// Stop drains and stops the event loop.
func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return
	}
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) eventLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case ev := <-e.eventCh:
					e.dispatch(ev)
				default:
					return
				}
			}
		case ev := <-e.eventCh:
			e.dispatch(ev)
		}
	}
}

func (e *Engine) dispatch(ev *Event) {
	for _, h := range e.handlers {
		h(ev)
	}
}

func (e *Engine) emit(ev *Event) {
	ev.Timestamp = e.clock.Now().UnixMilli()
	select {
	case e.eventCh <- ev:
	default:
		e.log.Warn("event channel full, dropping event", zap.String("type", ev.Type))
	}
}

func (e *Engine) emitOrder(o *core.Order) {
	cp := *o
	e.emit(&Event{Type: EventOrder, Symbol: o.Symbol, Order: &cp})
}

func (e *Engine) emitTrade(t *core.Trade) {
	e.emit(&Event{Type: EventTrade, Symbol: t.Symbol, Trade: t})
}

// shardFor returns the symbol's shard, creating it on first use.
func (e *Engine) shardFor(symbol string) *shard {
	e.shardsMu.RLock()
	sh, ok := e.shards[symbol]
	e.shardsMu.RUnlock()
	if ok {
		return sh
	}

	e.shardsMu.Lock()
	defer e.shardsMu.Unlock()
	if sh, ok = e.shards[symbol]; ok {
		return sh
	}
	sh = &shard{
		book:     orderbook.New(),
		expiring: make(map[uint64]*core.Order),
	}
	e.shards[symbol] = sh
	return sh
}

// SweepExpired expires overdue resting orders across all symbols. The
// per-shard sweep also runs at the head of every submission; this is the
// backstop for idle books.
func (e *Engine) SweepExpired() {
	now := e.clock.Now().UnixMilli()

	e.shardsMu.RLock()
	shards := make([]*shard, 0, len(e.shards))
	for _, sh := range e.shards {
		shards = append(shards, sh)
	}
	e.shardsMu.RUnlock()

	for _, sh := range shards {
		sh.mu.Lock()
		e.sweepExpiredLocked(sh, now)
		sh.mu.Unlock()
	}
}

// Book exposes a symbol's order book for read-side queries (depth, best
// bid/ask). The book is internally locked for such reads.
func (e *Engine) Book(symbol string) *orderbook.Book {
	return e.shardFor(symbol).book
}

// Order returns a copy of an order by ID.
func (e *Engine) Order(id uint64) (core.Order, error) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return core.Order{}, core.ErrNotFound
	}
	return *o, nil
}

// OpenOrders returns copies of every non-terminal order for userID.
func (e *Engine) OpenOrders(userID string) []core.Order {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	var out []core.Order
	for _, o := range e.orders {
		if o.UserID == userID && !o.Status.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out
}

func clientIDKey(userID, clientID string) string {
	return userID + "\x00" + clientID
}

// registerOrder indexes a new order, enforcing clientOrderId uniqueness.
func (e *Engine) registerOrder(o *core.Order) error {
	e.ordersMu.Lock()
	defer e.ordersMu.Unlock()
	if o.ClientOrderID != "" {
		key := clientIDKey(o.UserID, o.ClientOrderID)
		if prevID, dup := e.clientIDs[key]; dup {
			// A clientOrderId is reusable once the order it named is done.
			if prev, ok := e.orders[prevID]; ok && !prev.Status.IsTerminal() {
				return core.ErrDuplicateClientOrderID
			}
		}
		e.clientIDs[key] = o.ID
	}
	e.orders[o.ID] = o
	return nil
}

func (e *Engine) orderByClientID(userID, clientID string) (*core.Order, bool) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	id, ok := e.clientIDs[clientIDKey(userID, clientID)]
	if !ok {
		return nil, false
	}
	o, ok := e.orders[id]
	return o, ok
}

func (e *Engine) lookupOrder(id uint64) (*core.Order, bool) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	o, ok := e.orders[id]
	return o, ok
}
