package throttle

import (
	"sync"
	"time"
)

// Controller computes the delay before the next engine cycle from the
// number of deep-enough blocks the scanner has not reached yet.
type Controller struct {
	config Config

	mu              sync.Mutex
	currentInterval time.Duration
}

// NewController creates a new adaptive controller.
func NewController(config Config) *Controller {
	if config.MinInterval <= 0 || config.MinInterval > config.BaseInterval {
		config.MinInterval = config.BaseInterval
	}
	return &Controller{
		config:          config,
		currentInterval: config.BaseInterval,
	}
}

// ComputeInterval calculates the next cycle delay.
//
//   - backlog = 0: base interval (caught up, save API calls)
//   - backlog < normal: base interval / 2
//   - backlog < burst: min interval × 2
//   - backlog ≥ burst: min interval
func (c *Controller) ComputeInterval(backlog uint64) time.Duration {
	if !c.config.Enabled {
		return c.config.BaseInterval
	}

	var interval time.Duration

	switch {
	case backlog == 0:
		interval = c.config.BaseInterval
	case backlog < c.config.BacklogNormalThreshold:
		interval = c.config.BaseInterval / 2
	case backlog < c.config.BacklogBurstThreshold:
		interval = c.config.MinInterval * 2
	default:
		interval = c.config.MinInterval
	}

	interval = max(interval, c.config.MinInterval)
	interval = min(interval, c.config.BaseInterval)

	c.mu.Lock()
	c.currentInterval = interval
	c.mu.Unlock()
	return interval
}

// CurrentInterval returns the last computed interval.
func (c *Controller) CurrentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentInterval
}
