package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/num"
)

// Schema creates the journal tables. Amounts are NUMERIC(78,0): wide enough
// for any 256-bit token amount, exact, and never rounded.
const Schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	account     TEXT NOT NULL,
	asset_in    TEXT NOT NULL DEFAULT '',
	amount_in   NUMERIC(78,0) NOT NULL DEFAULT 0,
	asset_out   TEXT NOT NULL DEFAULT '',
	amount_out  NUMERIC(78,0) NOT NULL DEFAULT 0,
	shares      NUMERIC(78,0) NOT NULL DEFAULT 0,
	receipts    BIGINT[] NOT NULL DEFAULT '{}',
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_entries_account_idx ON journal_entries (account, timestamp);

CREATE TABLE IF NOT EXISTS stranded_funds (
	id          UUID PRIMARY KEY,
	operation   TEXT NOT NULL,
	reason      TEXT NOT NULL,
	account     TEXT NOT NULL,
	asset       TEXT NOT NULL,
	amount      NUMERIC(78,0) NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ,
	receipt     BIGINT NOT NULL DEFAULT 0
);`

// PostgresStore implements Store using PostgreSQL.
// All amounts are stored as NUMERIC for exact integer precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema applies Schema idempotently.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertEntry(ctx context.Context, e *model.Entry) error {
	receipts := make([]int64, len(e.Receipts))
	for i, r := range e.Receipts {
		receipts[i] = int64(r)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, kind, account, asset_in, amount_in, asset_out, amount_out, shares, receipts, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		e.ID, e.Kind, e.Account.String(),
		string(e.AssetIn), e.AmountIn.Decimal(),
		string(e.AssetOut), e.AmountOut.Decimal(),
		e.Shares.Decimal(), receipts, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetEntriesByAccount(ctx context.Context, acct model.Account) ([]model.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, account, asset_in, amount_in::TEXT, asset_out, amount_out::TEXT,
		        shares::TEXT, receipts, timestamp
		 FROM journal_entries WHERE account = $1 ORDER BY timestamp`, acct.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) ListRecentEntries(ctx context.Context, limit int) ([]model.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, account, asset_in, amount_in::TEXT, asset_out, amount_out::TEXT,
		        shares::TEXT, receipts, timestamp
		 FROM journal_entries ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) SaveStranded(ctx context.Context, sf *model.StrandedFunds) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stranded_funds (id, operation, reason, account, asset, amount, detail, created_at, resolved_at, receipt)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE
		 SET resolved_at = EXCLUDED.resolved_at, receipt = EXCLUDED.receipt, detail = EXCLUDED.detail`,
		sf.ID, sf.Operation, sf.Reason, sf.Account.String(), string(sf.Asset),
		sf.Amount.Decimal(), sf.Detail, sf.CreatedAt, sf.ResolvedAt, int64(sf.Receipt),
	)
	if err != nil {
		return fmt.Errorf("save stranded %s: %w", sf.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListStranded(ctx context.Context) ([]model.StrandedFunds, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, operation, reason, account, asset, amount::TEXT, detail,
		        created_at, resolved_at, receipt
		 FROM stranded_funds ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.StrandedFunds
	for rows.Next() {
		var sf model.StrandedFunds
		var account, asset, amount string
		var resolved *time.Time
		var receipt int64

		if err := rows.Scan(&sf.ID, &sf.Operation, &sf.Reason, &account, &asset, &amount,
			&sf.Detail, &sf.CreatedAt, &resolved, &receipt); err != nil {
			return nil, err
		}
		if sf.Account, err = model.ParseAccount(account); err != nil {
			return nil, err
		}
		if sf.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		sf.Asset = model.Asset(asset)
		sf.ResolvedAt = resolved
		sf.Receipt = model.BlockIndex(receipt)
		result = append(result, sf)
	}
	return result, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		var account, assetIn, amountIn, assetOut, amountOut, shares string
		var receipts []int64

		if err := rows.Scan(&e.ID, &e.Kind, &account, &assetIn, &amountIn, &assetOut, &amountOut,
			&shares, &receipts, &e.Timestamp); err != nil {
			return nil, err
		}

		var err error
		if e.Account, err = model.ParseAccount(account); err != nil {
			return nil, err
		}
		if e.AmountIn, err = parseAmount(amountIn); err != nil {
			return nil, err
		}
		if e.AmountOut, err = parseAmount(amountOut); err != nil {
			return nil, err
		}
		if e.Shares, err = parseAmount(shares); err != nil {
			return nil, err
		}
		e.AssetIn = model.Asset(assetIn)
		e.AssetOut = model.Asset(assetOut)
		for _, r := range receipts {
			e.Receipts = append(e.Receipts, model.BlockIndex(r))
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// parseAmount reads a NUMERIC(78,0) column selected as text.
func parseAmount(s string) (num.Nat, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return num.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return num.FromDecimal(d)
}
