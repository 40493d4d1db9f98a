// Package metrics exposes the core's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_accepted_total",
		Help: "Orders that passed validation and reservation.",
	}, []string{"symbol"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_rejected_total",
		Help: "Orders rejected at admission.",
	}, []string{"symbol", "reason"})

	OrdersCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_canceled_total",
		Help: "Orders canceled (user cancels, IOC remainders, STP expiries).",
	}, []string{"symbol"})

	TradesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_trades_total",
		Help: "Trades emitted by the matching engine.",
	}, []string{"symbol"})

	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_trade_volume_quote_units",
		Help: "Cumulative matched notional in internal quote units.",
	}, []string{"symbol"})

	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_settlement_failures_total",
		Help: "Trades that could not be applied to the ledger. Requires operator reconciliation.",
	})

	Liquidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_liquidations_total",
		Help: "Forced position closes.",
	}, []string{"symbol"})
)
