// Package ledger is the exchange-side audit log for the peg accounting
// engine: every balance-cycle rollover, withdraw request, and interval
// vote tally is recorded here for reconciliation, backed by a plain
// pgxpool store.
package ledger

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the exchange audit log's Postgres connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the connection pool and verifies connectivity.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("ledger: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	log.Println("ledger: connected to Postgres")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, creating the ledger's tables
// if they don't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/ledger/schema.sql")
	if err != nil {
		return fmt.Errorf("ledger: read schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("ledger: apply schema: %w", err)
	}
	log.Println("ledger: schema initialized")
	return nil
}

// BalanceUpdate is a single recorded cycle rollover for one account.
type BalanceUpdate struct {
	Account       string
	CycleOld      int
	CycleNew      int
	ReserveBefore int64
	LiquidBefore  int64
	ReserveAfter  int64
	LiquidAfter   int64
}

// RecordBalanceUpdate appends a balance cycle-rollover entry.
func (s *Store) RecordBalanceUpdate(ctx context.Context, u BalanceUpdate) error {
	const sql = `
		INSERT INTO balance_updates
			(account, cycle_old, cycle_new, reserve_before, liquid_before, reserve_after, liquid_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, sql, u.Account, u.CycleOld, u.CycleNew, u.ReserveBefore, u.LiquidBefore, u.ReserveAfter, u.LiquidAfter)
	if err != nil {
		return fmt.Errorf("ledger: record balance update: %w", err)
	}
	return nil
}

// WithdrawRequest is a single recorded withdraw plan, keyed by the
// ProvidedCoin-style request ID the withdraw planner issued.
type WithdrawRequest struct {
	RequestID      string
	Account        string
	Kind           string // "liquid" or "reserve"
	AmountWithFee  int64
	TxHash         string
	ConsumedInputs string
	ProvidedOutputs string
}

// RecordWithdrawRequest appends a withdraw request, upserting on request
// ID so a retried planning call doesn't duplicate the audit row.
func (s *Store) RecordWithdrawRequest(ctx context.Context, r WithdrawRequest) error {
	const sql = `
		INSERT INTO withdraw_requests
			(request_id, account, kind, amount_with_fee, txhash, consumed_inputs, provided_outputs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE
		SET txhash = EXCLUDED.txhash,
		    consumed_inputs = EXCLUDED.consumed_inputs,
		    provided_outputs = EXCLUDED.provided_outputs
	`
	_, err := s.pool.Exec(ctx, sql, r.RequestID, r.Account, r.Kind, r.AmountWithFee, r.TxHash, r.ConsumedInputs, r.ProvidedOutputs)
	if err != nil {
		return fmt.Errorf("ledger: record withdraw request: %w", err)
	}
	return nil
}

// VoteTallyRecord is a single interval boundary's recorded vote outcome.
type VoteTallyRecord struct {
	IntervalHeight    int64
	InflateWeight     int64
	DeflateWeight     int64
	NochangeWeight    int64
	SupplyIndexBefore int
	SupplyIndexAfter  int
}

// RecordVoteTally appends an interval's vote outcome, upserting on
// interval height so a re-processed block doesn't duplicate the row.
func (s *Store) RecordVoteTally(ctx context.Context, v VoteTallyRecord) error {
	const sql = `
		INSERT INTO vote_tallies
			(interval_height, inflate_weight, deflate_weight, nochange_weight, supply_index_before, supply_index_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (interval_height) DO UPDATE
		SET inflate_weight = EXCLUDED.inflate_weight,
		    deflate_weight = EXCLUDED.deflate_weight,
		    nochange_weight = EXCLUDED.nochange_weight,
		    supply_index_after = EXCLUDED.supply_index_after
	`
	_, err := s.pool.Exec(ctx, sql, v.IntervalHeight, v.InflateWeight, v.DeflateWeight, v.NochangeWeight, v.SupplyIndexBefore, v.SupplyIndexAfter)
	if err != nil {
		return fmt.Errorf("ledger: record vote tally: %w", err)
	}
	return nil
}

// RecentBalanceUpdates returns an account's most recent cycle rollovers,
// newest first.
func (s *Store) RecentBalanceUpdates(ctx context.Context, account string, limit int) ([]BalanceUpdate, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const sql = `
		SELECT account, cycle_old, cycle_new, reserve_before, liquid_before, reserve_after, liquid_after
		FROM balance_updates
		WHERE account = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, account, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query balance updates: %w", err)
	}
	defer rows.Close()

	var out []BalanceUpdate
	for rows.Next() {
		var u BalanceUpdate
		if err := rows.Scan(&u.Account, &u.CycleOld, &u.CycleNew, &u.ReserveBefore, &u.LiquidBefore, &u.ReserveAfter, &u.LiquidAfter); err != nil {
			return nil, fmt.Errorf("ledger: scan balance update: %w", err)
		}
		out = append(out, u)
	}
	if out == nil {
		out = []BalanceUpdate{}
	}
	return out, nil
}

// Pool exposes the underlying connection pool for subsystems that need
// to run their own queries (e.g. a reconciliation job).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
