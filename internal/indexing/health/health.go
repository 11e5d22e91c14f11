// Package health provides engine health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the engine.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the engine health snapshot.
type Report struct {
	Status           SystemStatus `json:"status"`
	ChainHeight      uint64       `json:"chain_height"`
	ScannerLastBlock uint64       `json:"scanner_last_block"`
	// BlockLag is how far the scanner trails the confirmable tip.
	BlockLag        uint64   `json:"block_lag"`
	BlocksPerSecond float64  `json:"blocks_per_second"`
	PendingDeposits int      `json:"pending_deposits"`
	UnsweptDeposits int      `json:"unswept_deposits"`
	StoreReachable  bool     `json:"store_reachable"`
	Errors          []string `json:"errors,omitempty"`
}
