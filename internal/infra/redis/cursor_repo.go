package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/custody/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository with a Redis hash per cursor.
type CursorRepo struct {
	rdb    *redis.Client
	prefix string
}

// NewCursorRepo creates a new Redis-backed cursor repository.
func NewCursorRepo(client *Client) *CursorRepo {
	return &CursorRepo{rdb: client.rdb, prefix: client.prefix}
}

// Get retrieves a cursor by name (nil if missing).
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	vals, err := r.rdb.HGetAll(ctx, cursorKey(r.prefix, name)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	return parseCursor(name, vals)
}

// Save overwrites a cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	err := r.rdb.HSet(ctx, cursorKey(r.prefix, cursor.Name),
		"block", strconv.FormatUint(cursor.LastProcessedBlock, 10),
		"updated_at", strconv.FormatInt(cursor.UpdatedAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

func parseCursor(name string, vals map[string]string) (*domain.Cursor, error) {
	block, err := strconv.ParseUint(vals["block"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor block %q: %w", vals["block"], err)
	}
	c := &domain.Cursor{Name: name, LastProcessedBlock: block}
	if ts, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		c.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return c, nil
}
