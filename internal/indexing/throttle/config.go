package throttle

import "time"

// Config holds the adaptive polling settings.
type Config struct {
	// Enabled controls whether the interval adapts to the scan backlog
	Enabled bool

	// Interval bounds
	BaseInterval time.Duration // Interval when caught up (engine.poll_interval)
	MinInterval  time.Duration // Fastest polling rate (default: 1s)

	// Head caching
	HeadCacheTTL time.Duration // How long to cache CurrentHeight (default: 3s)

	// Backlog thresholds, in blocks
	BacklogNormalThreshold uint64 // Below this = half the base interval (default: 5)
	BacklogBurstThreshold  uint64 // At or above this = max speed (default: 100)
}

// DefaultConfig returns sensible defaults for adaptive polling.
func DefaultConfig(base time.Duration) Config {
	return Config{
		Enabled:                true,
		BaseInterval:           base,
		MinInterval:            time.Second,
		HeadCacheTTL:           3 * time.Second,
		BacklogNormalThreshold: 5,
		BacklogBurstThreshold:  100,
	}
}
