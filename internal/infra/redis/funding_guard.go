package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/custody/internal/core/domain"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// FundingGuard marks an address as having a gas top-up in flight, so two
// drivers do not fund the same address twice.
type FundingGuard struct {
	rdb    *redis.Client
	prefix string
}

// NewFundingGuard creates a Redis-backed funding guard.
func NewFundingGuard(client *Client) *FundingGuard {
	return &FundingGuard{rdb: client.rdb, prefix: client.prefix}
}

// Acquire marks address as being funded and returns the holder token.
// Returns "" when another holder already has it.
func (g *FundingGuard) Acquire(ctx context.Context, address domain.Address, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, fundingKey(g.prefix, address.Key()), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release clears the mark if token still owns it. A mark that expired and
// was taken by another holder is left alone.
func (g *FundingGuard) Release(ctx context.Context, address domain.Address, token string) error {
	if err := releaseScript.Run(ctx, g.rdb, []string{fundingKey(g.prefix, address.Key())}, token).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}
