// Package history persists executed swaps to a local sqlite database so
// the CLI can list past orders and resume status checks across runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

// Record is one persisted swap. Amounts are stored as TEXT in smallest
// units for exact precision.
type Record struct {
	OrderID        string
	Status         types.OrderStatus
	SrcChainID     string
	DstChainID     string
	SrcToken       string
	DstToken       string
	SrcSymbol      string
	DstSymbol      string
	AmountIn       string
	AmountOut      string
	FeeTokenAmount string
	GasLamports    uint64
	DepositAddress string
	SrcTxHash      string
	DstTxHash      string
	Recipient      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store wraps the sqlite connection.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the database at path. ":memory:" works for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps reads from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, logger: logger.With(zap.String("module", "history"))}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	table := `
	CREATE TABLE IF NOT EXISTS swap_orders (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		src_chain_id TEXT NOT NULL,
		dst_chain_id TEXT NOT NULL,
		src_token TEXT NOT NULL,
		dst_token TEXT NOT NULL,
		src_symbol TEXT,
		dst_symbol TEXT,

		-- amounts kept as TEXT for exact integer precision
		amount_in TEXT NOT NULL DEFAULT '0',
		amount_out TEXT NOT NULL DEFAULT '0',
		fee_token_amount TEXT DEFAULT '0',
		gas_lamports INTEGER DEFAULT 0,

		deposit_address TEXT,
		src_tx_hash TEXT,
		dst_tx_hash TEXT,
		recipient TEXT,

		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_swap_orders_status ON swap_orders(status);`,
		`CREATE INDEX IF NOT EXISTS idx_swap_orders_created ON swap_orders(created_at);`,
	}

	if _, err := s.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create swap_orders table: %w", err)
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Upsert inserts or refreshes a swap record. The original created_at and
// any already-known transaction hashes survive later updates.
func (s *Store) Upsert(ctx context.Context, r *Record) error {
	query := `
	INSERT INTO swap_orders (
		order_id, status, src_chain_id, dst_chain_id,
		src_token, dst_token, src_symbol, dst_symbol,
		amount_in, amount_out, fee_token_amount, gas_lamports,
		deposit_address, src_tx_hash, dst_tx_hash, recipient,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET
		status = excluded.status,
		amount_out = excluded.amount_out,
		fee_token_amount = excluded.fee_token_amount,
		gas_lamports = excluded.gas_lamports,
		src_tx_hash = COALESCE(NULLIF(excluded.src_tx_hash, ''), swap_orders.src_tx_hash),
		dst_tx_hash = COALESCE(NULLIF(excluded.dst_tx_hash, ''), swap_orders.dst_tx_hash),
		updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.OrderID, string(r.Status), r.SrcChainID, r.DstChainID,
		r.SrcToken, r.DstToken, r.SrcSymbol, r.DstSymbol,
		r.AmountIn, r.AmountOut, r.FeeTokenAmount, r.GasLamports,
		r.DepositAddress, r.SrcTxHash, r.DstTxHash, r.Recipient,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert swap order: %w", err)
	}
	return nil
}

// UpdateStatus records a status transition observed during tracking.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus, dstTxHash string) error {
	query := `
	UPDATE swap_orders SET
		status = ?,
		dst_tx_hash = COALESCE(NULLIF(?, ''), dst_tx_hash),
		updated_at = ?
	WHERE order_id = ?
	`
	_, err := s.db.ExecContext(ctx, query, string(status), dstTxHash, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update swap order status: %w", err)
	}
	return nil
}

// Get returns one swap, or nil when unknown.
func (s *Store) Get(ctx context.Context, orderID string) (*Record, error) {
	query := selectColumns + ` WHERE order_id = ?`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap order: %w", err)
	}
	return r, nil
}

// List returns the most recent swaps, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectColumns + ` ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list swap orders: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap order: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swap orders: %w", err)
	}
	return out, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Debug("closing history database")
		return s.db.Close()
	}
	return nil
}

const selectColumns = `
	SELECT
		order_id, status, src_chain_id, dst_chain_id,
		src_token, dst_token, src_symbol, dst_symbol,
		amount_in, amount_out, fee_token_amount, gas_lamports,
		deposit_address, src_tx_hash, dst_tx_hash, recipient,
		created_at, updated_at
	FROM swap_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var status string
	err := row.Scan(
		&r.OrderID, &status, &r.SrcChainID, &r.DstChainID,
		&r.SrcToken, &r.DstToken, &r.SrcSymbol, &r.DstSymbol,
		&r.AmountIn, &r.AmountOut, &r.FeeTokenAmount, &r.GasLamports,
		&r.DepositAddress, &r.SrcTxHash, &r.DstTxHash, &r.Recipient,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = types.OrderStatus(status)
	return &r, nil
}
