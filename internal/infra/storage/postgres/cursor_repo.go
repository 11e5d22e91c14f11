package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Save upserts a cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_cursors (name, last_processed_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = EXCLUDED.updated_at`,
		cursor.Name, int64(cursor.LastProcessedBlock), cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor by name.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	var row struct {
		Name      string    `db:"name"`
		Block     int64     `db:"last_processed_block"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT name, last_processed_block, updated_at FROM scan_cursors WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.Cursor{
		Name:               row.Name,
		LastProcessedBlock: uint64(row.Block),
		UpdatedAt:          row.UpdatedAt,
	}, nil
}
