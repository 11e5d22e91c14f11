package evm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/custody/internal/core/domain"
)

// RetryConfig bounds retries of read-only RPC calls. Sends are never retried.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// errorAction determines how to handle an error.
type errorAction int

const (
	actionRetry errorAction = iota
	actionFatal
)

// classifyError decides whether a failed read is worth repeating.
func classifyError(err error) errorAction {
	if errors.Is(err, ethereum.NotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return actionFatal
	}

	s := err.Error()
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") ||
		strings.Contains(strings.ToLower(s), "execution reverted") {
		return actionFatal
	}

	// Network, 5xx and rate limits
	return actionRetry
}

func (g *Gateway) backoff() retry.Backoff {
	b := retry.NewExponential(g.cfg.Retry.InitialDelay)
	b = retry.WithCappedDuration(g.cfg.Retry.MaxDelay, b)
	return retry.WithMaxRetries(uint64(g.cfg.Retry.MaxAttempts-1), b)
}

// read runs an idempotent RPC call with backoff. Every attempt is measured;
// the final error comes back as a *domain.TransientGatewayError.
func read[T any](ctx context.Context, g *Gateway, method string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		start := time.Now()
		v, err := fn(ctx)
		g.record(method, start, err)
		if err == nil {
			out = v
			return nil
		}
		if classifyError(err) == actionRetry {
			g.log.Debug("rpc call failed, retrying", "method", method, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return out, &domain.TransientGatewayError{Op: method, Err: err}
	}
	return out, nil
}
