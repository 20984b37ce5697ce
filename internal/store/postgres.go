package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore stores cells in a single table keyed by (sheet_id, row, col).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the backing table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	sheet_id INTEGER NOT NULL,
	row      INTEGER NOT NULL,
	col      INTEGER NOT NULL,
	raw      TEXT NOT NULL,
	PRIMARY KEY (sheet_id, row, col)
)`
	_, err := s.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sheetID int) ([]RawCell, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row, col, raw FROM sheet_cells WHERE sheet_id = $1 AND raw <> ''`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("store: load sheet %d: %w", sheetID, err)
	}
	defer rows.Close()

	var cells []RawCell
	for rows.Next() {
		var c RawCell
		if err := rows.Scan(&c.Row, &c.Col, &c.Raw); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, sheetID, row, col int, raw string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sheet_cells (sheet_id, row, col, raw) VALUES ($1, $2, $3, $4)
ON CONFLICT (sheet_id, row, col) DO UPDATE SET raw = EXCLUDED.raw`,
		sheetID, row, col, raw)
	if err != nil {
		return fmt.Errorf("store: save (%d,%d,%d): %w", sheetID, row, col, err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
