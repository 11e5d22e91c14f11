package throttle

import (
	"testing"
	"time"
)

func TestComputeInterval(t *testing.T) {
	config := DefaultConfig(12 * time.Second)
	config.MinInterval = 500 * time.Millisecond
	config.BacklogNormalThreshold = 5
	config.BacklogBurstThreshold = 50

	controller := NewController(config)

	tests := []struct {
		name     string
		backlog  uint64
		expected time.Duration
	}{
		{
			name:     "caught up (backlog=0)",
			backlog:  0,
			expected: 12 * time.Second, // base interval
		},
		{
			name:     "slightly behind (backlog=3)",
			backlog:  3,
			expected: 6 * time.Second, // base / 2
		},
		{
			name:     "catching up (backlog=20)",
			backlog:  20,
			expected: 1 * time.Second, // min * 2
		},
		{
			name:     "far behind (backlog=100)",
			backlog:  100,
			expected: 500 * time.Millisecond, // min interval
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := controller.ComputeInterval(tt.backlog)
			if result != tt.expected {
				t.Errorf("ComputeInterval(%d) = %v, want %v", tt.backlog, result, tt.expected)
			}
			if controller.CurrentInterval() != result {
				t.Errorf("CurrentInterval() = %v, want %v", controller.CurrentInterval(), result)
			}
		})
	}
}

func TestComputeInterval_Disabled(t *testing.T) {
	config := DefaultConfig(12 * time.Second)
	config.Enabled = false
	controller := NewController(config)

	if got := controller.ComputeInterval(1000); got != 12*time.Second {
		t.Errorf("expected base interval when disabled, got %v", got)
	}
}

func TestComputeInterval_NeverAboveBase(t *testing.T) {
	// base faster than the configured minimum
	config := DefaultConfig(200 * time.Millisecond)
	controller := NewController(config)

	for _, backlog := range []uint64{0, 3, 20, 1000} {
		if got := controller.ComputeInterval(backlog); got != 200*time.Millisecond {
			t.Errorf("ComputeInterval(%d) = %v, want 200ms", backlog, got)
		}
	}
}
