package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/indexing/metrics"
)

var errNotFunded = errors.New("gas not arrived yet")

// fundGas tops up address from the hot wallet and waits until it can pay
// cost. A top-up already in flight from another driver is waited on, not
// repeated.
func (c *Coordinator) fundGas(ctx context.Context, hot *hotWallet, address domain.Address, cost decimal.Decimal) error {
	send := true
	if c.deps.Guard != nil {
		token, err := c.deps.Guard.Acquire(ctx, address, c.guardTTL())
		switch {
		case err != nil:
			c.log.Warn("funding guard unavailable", "address", address, "error", err)
		case token == "":
			c.log.Info("gas top-up already in flight", "address", address)
			send = false
		default:
			defer func() {
				if err := c.deps.Guard.Release(context.WithoutCancel(ctx), address, token); err != nil {
					c.log.Warn("failed to release funding guard", "address", address, "error", err)
				}
			}()
		}
	}

	if send {
		topUp := cost.Mul(c.cfg.TopUpMultiplier)

		hotNative, err := c.deps.Gateway.NativeBalance(ctx, hot.Address)
		if err != nil {
			return err
		}
		if hotNative.LessThan(topUp) {
			metrics.GasFundingTotal.WithLabelValues("insufficient").Inc()
			return &domain.InsufficientGasError{Address: hot.Address, Have: hotNative, Need: topUp}
		}

		hash, err := c.deps.Gateway.SendNativeTransfer(context.WithoutCancel(ctx), hot.secret, address, topUp)
		switch {
		case inFlight(hash, err):
			c.log.Warn("gas top-up broadcast but not confirmed", "address", address, "tx", hash, "error", err)
		case err != nil:
			metrics.GasFundingTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("gas top-up: %w", err)
		default:
			c.log.Info("gas top-up sent", "address", address, "amount", topUp.String(), "tx", hash)
		}
	}

	have, err := c.waitFunded(ctx, address, cost)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.GasFundingTotal.WithLabelValues("timeout").Inc()
		return &domain.InsufficientGasError{Address: address, Have: have, Need: cost}
	}

	metrics.GasFundingTotal.WithLabelValues("funded").Inc()
	return nil
}

// guardTTL covers the top-up send and the wait that follows it.
func (c *Coordinator) guardTTL() time.Duration {
	return c.cfg.ReceiptTimeout + c.cfg.FundingTimeout
}

// waitFunded polls the native balance until it covers cost or the funding
// timeout passes. Returns the last balance seen.
func (c *Coordinator) waitFunded(ctx context.Context, address domain.Address, cost decimal.Decimal) (decimal.Decimal, error) {
	last := decimal.Zero
	backoff := retry.WithMaxDuration(c.cfg.FundingTimeout, retry.NewConstant(c.cfg.FundingPoll))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		bal, err := c.deps.Gateway.NativeBalance(ctx, address)
		if err != nil {
			return retry.RetryableError(err)
		}
		last = bal
		if bal.LessThan(cost) {
			return retry.RetryableError(errNotFunded)
		}
		return nil
	})
	return last, err
}
