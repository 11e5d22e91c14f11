package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChainHeight tracks the latest block height of the chain
	ChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_chain_height",
			Help: "Latest block height of the chain",
		},
	)

	// ScannerLastBlock tracks the scan watermark
	ScannerLastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_scanner_last_block",
			Help: "Last block scanned for deposits",
		},
	)

	// ScanWindowsTotal tracks scanned windows by result
	ScanWindowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_scan_windows_total",
			Help: "Total number of block windows scanned",
		},
		[]string{"result"}, // ok, empty, error
	)

	// DepositsRecorded tracks newly recorded deposits
	DepositsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_deposits_recorded_total",
			Help: "Total number of deposits recorded",
		},
	)

	// DepositsBelowMinimum tracks transfers dropped by the minimum amount filter
	DepositsBelowMinimum = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_deposits_below_minimum_total",
			Help: "Total number of transfers ignored for being below the minimum deposit",
		},
	)

	// DepositsConfirmed tracks credited deposits
	DepositsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_deposits_confirmed_total",
			Help: "Total number of deposits confirmed and credited",
		},
	)

	// DepositsPending tracks deposits awaiting confirmation
	DepositsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_deposits_pending",
			Help: "Number of deposits awaiting confirmation",
		},
	)

	// SweepsTotal tracks sweep attempts by result
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_sweeps_total",
			Help: "Total number of sweep attempts",
		},
		[]string{"result"}, // swept, settled, skipped, failed
	)

	// GasFundingTotal tracks gas top-ups sent from the hot wallet
	GasFundingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_gas_funding_total",
			Help: "Total number of gas top-ups from the hot wallet",
		},
		[]string{"result"}, // funded, insufficient, timeout, error
	)

	// WithdrawalsTotal tracks hot wallet withdrawals by status
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_withdrawals_total",
			Help: "Total number of hot wallet withdrawals",
		},
		[]string{"status"},
	)

	// GatewayCallsTotal tracks ledger calls
	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_gateway_calls_total",
			Help: "Total number of ledger gateway calls",
		},
		[]string{"method"},
	)

	// GatewayErrorsTotal tracks failed ledger calls
	GatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_gateway_errors_total",
			Help: "Total number of ledger gateway errors",
		},
		[]string{"method"},
	)

	// GatewayLatency tracks ledger call latency
	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custody_gateway_latency_seconds",
			Help:    "Ledger gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// CycleDuration tracks the duration of one scan/track/sweep cycle
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custody_cycle_duration_seconds",
			Help:    "Duration of an engine cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// StoreFailures tracks consecutive failed store pings
	StoreFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_store_consecutive_failures",
			Help: "Consecutive cycles skipped because the store was unreachable",
		},
	)

	// DBConnectionPoolUsage tracks the share of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custody_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool limit",
		},
	)
)
