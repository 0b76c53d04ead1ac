package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_deposits_total",
		Help: "The total number of deposit operations processed",
	}, []string{"status"})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_withdrawals_total",
		Help: "The total number of withdrawal operations processed",
	}, []string{"status"})

	LedgerRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_ledger_rejects_total",
		Help: "Total ledger rejections by reason",
	}, []string{"reason"})

	RebalanceOrdersExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundgate_rebalance_orders_executed_total",
		Help: "Total rebalance orders handed to the trade executor",
	})

	RebalanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_rebalance_runs_total",
		Help: "Rebalance invocations by outcome",
	}, []string{"outcome"})

	TotalLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fundgate_total_locked",
		Help: "Current total value locked in the fund (settlement asset units)",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	OraclePriceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundgate_oracle_price_updates_total",
		Help: "Price feed updates applied to the oracle cache",
	}, []string{"asset", "source"})
)
