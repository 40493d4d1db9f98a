// Package api is the HTTP/WebSocket surface over the matching core: REST
// for order flow and account queries, a websocket hub for market data
// fan-out, Prometheus metrics on /metrics.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/openexch/excore/pkg/core"
	"github.com/openexch/excore/pkg/core/engine"
	"github.com/openexch/excore/pkg/core/instrument"
	"github.com/openexch/excore/pkg/core/ledger"
	"github.com/openexch/excore/pkg/core/orderbook"
	"github.com/openexch/excore/pkg/core/position"
	"github.com/openexch/excore/pkg/storage"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	engine    *engine.Engine
	registry  *instrument.Registry
	ledger    *ledger.Ledger
	positions *position.Manager
	store     *storage.Store // nil disables history endpoints

	router *mux.Router
	hub    *Hub
}

// NewServer wires the REST and websocket surface over the core components.
func NewServer(eng *engine.Engine, reg *instrument.Registry, led *ledger.Ledger, pos *position.Manager, store *storage.Store) *Server {
	s := &Server{
		engine:    eng,
		registry:  reg,
		ledger:    led,
		positions: pos,
		store:     store,
		router:    mux.NewRouter(),
		hub:       NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{userId}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{userId}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/accounts/{userId}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/withdraw", s.handleWithdraw).Methods("POST")

	// Order flow
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/amend", s.handleAmendOrder).Methods("POST")
	api.HandleFunc("/orders/{orderId}", s.handleGetOrder).Methods("GET")

	// Admin
	api.HandleFunc("/admin/markets", s.handleRegisterMarket).Methods("POST")
	api.HandleFunc("/admin/markets/{symbol}/active", s.handleSetMarketActive).Methods("POST")
	api.HandleFunc("/admin/mark-price", s.handleMarkPrice).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start(addr string, allowedOrigins []string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Market handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.registry.List()
	response := make([]MarketInfo, len(markets))
	for i, in := range markets {
		response[i] = marketInfo(in)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	in, err := s.registry.Get(mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(in))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	in, err := s.registry.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	book := s.engine.Book(symbol)
	snap := OrderbookSnapshot{
		Symbol:    symbol,
		Bids:      levels(in, book.Levels(core.Buy, limit)),
		Asks:      levels(in, book.Levels(core.Sell, limit)),
		Timestamp: time.Now().UnixMilli(),
	}
	if last := book.LastPrice(); last > 0 {
		snap.LastPrice = in.TicksToPrice(last).String()
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	in, err := s.registry.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	if s.store == nil {
		respondJSON(w, []TradeInfo{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := s.store.RecentTrades(symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade lookup failed", err.Error())
		return
	}
	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = tradeInfo(in, t)
	}
	respondJSON(w, response)
}

// ==============================
// Account handlers
// ==============================

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	wallets := s.ledger.UserWallets(userID)
	response := make([]BalanceInfo, len(wallets))
	for i, wlt := range wallets {
		response[i] = BalanceInfo{
			Asset:      wlt.Key.Asset,
			WalletType: wlt.Key.Type.String(),
			Available:  s.registry.UnitsToAmount(wlt.Key.Asset, wlt.Available).String(),
			Locked:     s.registry.UnitsToAmount(wlt.Key.Asset, wlt.Locked).String(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	response := []PositionInfo{}
	for _, p := range s.positions.UserPositions(userID) {
		in, err := s.registry.Get(p.Key.Symbol)
		if err != nil {
			continue
		}
		response = append(response, positionInfo(in, &p))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	response := []OrderInfo{}
	for _, o := range s.engine.OpenOrders(userID) {
		in, err := s.registry.Get(o.Symbol)
		if err != nil {
			continue
		}
		response = append(response, orderInfo(in, &o))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["orderId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	o, err := s.engine.Order(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	in, err := s.registry.Get(o.Symbol)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "market lookup failed", err.Error())
		return
	}
	respondJSON(w, orderInfo(in, &o))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ledger.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, apply func(core.WalletKey, int64) error) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.UserID == "" || req.Asset == "" {
		respondError(w, http.StatusBadRequest, "userId and asset required", "")
		return
	}
	wt, err := parseWalletType(req.Wallet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid walletType", err.Error())
		return
	}
	amount, err := parseDecimal(req.Amount, "amount")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	units, err := s.registry.AmountToUnits(req.Asset, amount)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	key := core.WalletKey{UserID: req.UserID, Asset: req.Asset, Type: wt}
	if err := apply(key, units); err != nil {
		respondCoreError(w, err)
		return
	}

	wlt, _ := s.ledger.Get(key)
	respondJSON(w, BalanceInfo{
		Asset:      req.Asset,
		WalletType: wt.String(),
		Available:  s.registry.UnitsToAmount(req.Asset, wlt.Available).String(),
		Locked:     s.registry.UnitsToAmount(req.Asset, wlt.Locked).String(),
	})
}

// ==============================
// Order flow handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	oreq, err := s.toOrderRequest(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}

	o, err := s.engine.Submit(*oreq)
	if err != nil {
		if o != nil {
			// The order exists in a terminal state; report it alongside.
			in, regErr := s.registry.Get(o.Symbol)
			if regErr == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(statusFor(err))
				json.NewEncoder(w).Encode(orderInfo(in, o))
				return
			}
		}
		respondCoreError(w, err)
		return
	}

	in, err := s.registry.Get(o.Symbol)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "market lookup failed", err.Error())
		return
	}
	respondJSON(w, orderInfo(in, o))
}

func (s *Server) toOrderRequest(req *SubmitOrderRequest) (*engine.OrderRequest, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	otype, err := parseOrderType(req.Type)
	if err != nil {
		return nil, err
	}
	tif, err := parseTIF(req.TimeInForce)
	if err != nil {
		return nil, err
	}
	ps, err := parsePositionSide(req.PositionSide)
	if err != nil {
		return nil, err
	}
	mt, err := parseMarginType(req.MarginType)
	if err != nil {
		return nil, err
	}
	stp, err := parseSTPMode(req.STPMode)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal(req.Quantity, "quantity")
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal(req.Price, "price")
	if err != nil {
		return nil, err
	}
	stopPrice, err := parseDecimal(req.StopPrice, "stopPrice")
	if err != nil {
		return nil, err
	}
	activation, err := parseDecimal(req.ActivationPrice, "activationPrice")
	if err != nil {
		return nil, err
	}

	return &engine.OrderRequest{
		UserID:          req.UserID,
		Symbol:          req.Symbol,
		ClientOrderID:   req.ClientOrderID,
		Side:            side,
		Type:            otype,
		TimeInForce:     tif,
		Quantity:        qty,
		Price:           price,
		StopPrice:       stopPrice,
		ActivationPrice: activation,
		CallbackRate:    req.CallbackRate,
		PositionSide:    ps,
		Leverage:        req.Leverage,
		MarginType:      mt,
		ReduceOnly:      req.ReduceOnly,
		STPMode:         stp,
		ParentID:        req.ParentID,
		ExpiresAt:       req.ExpiresAt,
	}, nil
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "userId required", "")
		return
	}

	var o *core.Order
	var err error
	switch {
	case req.OrderID != 0:
		o, err = s.engine.Cancel(req.UserID, req.OrderID, req.Version)
	case req.ClientOrderID != "":
		o, err = s.engine.CancelByClientID(req.UserID, req.ClientOrderID, req.Version)
	default:
		respondError(w, http.StatusBadRequest, "orderId or clientOrderId required", "")
		return
	}
	s.respondOrderResult(w, o, err)
}

func (s *Server) handleAmendOrder(w http.ResponseWriter, r *http.Request) {
	var req AmendOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, err := s.engine.Order(req.OrderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	in, err := s.registry.Get(o.Symbol)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "market lookup failed", err.Error())
		return
	}

	var priceTicks, qtyLots int64
	if req.Price != "" {
		price, err := parseDecimal(req.Price, "price")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid price", err.Error())
			return
		}
		if priceTicks, err = in.PriceToTicks(price); err != nil {
			respondCoreError(w, err)
			return
		}
	}
	if req.Quantity != "" {
		qty, err := parseDecimal(req.Quantity, "quantity")
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid quantity", err.Error())
			return
		}
		if qtyLots, err = in.QtyToLots(qty); err != nil {
			respondCoreError(w, err)
			return
		}
	}

	amended, err := s.engine.Amend(req.UserID, req.OrderID, req.Version, priceTicks, qtyLots)
	s.respondOrderResult(w, amended, err)
}

func (s *Server) respondOrderResult(w http.ResponseWriter, o *core.Order, err error) {
	if err != nil {
		if o != nil {
			in, regErr := s.registry.Get(o.Symbol)
			if regErr == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(statusFor(err))
				json.NewEncoder(w).Encode(orderInfo(in, o))
				return
			}
		}
		respondCoreError(w, err)
		return
	}
	in, regErr := s.registry.Get(o.Symbol)
	if regErr != nil {
		respondError(w, http.StatusInternalServerError, "market lookup failed", regErr.Error())
		return
	}
	respondJSON(w, orderInfo(in, o))
}

// ==============================
// Admin handlers
// ==============================

func (s *Server) handleRegisterMarket(w http.ResponseWriter, r *http.Request) {
	var in instrument.Instrument
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.registry.Register(&in); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, marketInfo(&in))
}

func (s *Server) handleSetMarketActive(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.registry.SetActive(symbol, req.Active); err != nil {
		respondCoreError(w, err)
		return
	}
	in, _ := s.registry.Get(symbol)
	respondJSON(w, marketInfo(in))
}

func (s *Server) handleMarkPrice(w http.ResponseWriter, r *http.Request) {
	var req MarkPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	price, err := parseDecimal(req.Price, "price")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	if err := s.engine.UpdateMarkPrice(req.Symbol, price); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Event fan-out
// ==============================

// HandleEvent is an engine.EventHandler that forwards engine events to
// websocket subscribers. Register it before the engine starts.
func (s *Server) HandleEvent(ev *engine.Event) {
	in, err := s.registry.Get(ev.Symbol)
	if err != nil {
		return
	}
	switch ev.Type {
	case engine.EventTrade:
		s.hub.BroadcastToChannel("trades:"+ev.Symbol, map[string]interface{}{
			"type":  "trade",
			"trade": tradeInfo(in, ev.Trade),
		})
	case engine.EventOrder:
		s.hub.BroadcastToChannel("orders:"+ev.Order.UserID, map[string]interface{}{
			"type":  "order",
			"order": orderInfo(in, ev.Order),
		})
	case engine.EventLiquidation:
		s.hub.BroadcastToChannel("liquidations:"+ev.Symbol, map[string]interface{}{
			"type":        "liquidation",
			"liquidation": ev.Liquidation,
		})
	}
}

// ==============================
// Helper Functions
// ==============================

func levels(in *instrument.Instrument, src []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(src))
	for i, lvl := range src {
		out[i] = PriceLevel{
			Price: in.TicksToPrice(lvl.Price).String(),
			Qty:   in.LotsToQty(lvl.Qty).String(),
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondCoreError maps the core error taxonomy to HTTP statuses.
func respondCoreError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), errorCode(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrWouldMatch),
		errors.Is(err, core.ErrReduceOnly),
		errors.Is(err, core.ErrDuplicateClientOrderID):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, core.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, core.ErrWouldMatch):
		return "WOULD_MATCH"
	case errors.Is(err, core.ErrReduceOnly):
		return "REDUCE_ONLY_REJECT"
	case errors.Is(err, core.ErrDuplicateClientOrderID):
		return "DUPLICATE_CLIENT_ORDER_ID"
	case errors.Is(err, core.ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, core.ErrValidation):
		return "VALIDATION"
	case errors.Is(err, core.ErrSettlementFailure):
		return "SETTLEMENT_FAILURE"
	default:
		return "INTERNAL"
	}
}
