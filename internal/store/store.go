// Package store defines the activity journal for the vault engine.
// Implementations include PostgreSQL (durable audit trail), Redis (read-through
// cache), and in-memory (for testing).
//
// The journal records what happened; it is never read back to rebuild
// balances or reserves, which live in the engine for the process lifetime.
package store

import (
	"context"

	"github.com/atmx/vault-engine/internal/model"
)

// Store is the journal interface.
type Store interface {
	// --- Immutable activity journal ---

	// InsertEntry appends an immutable operation record.
	InsertEntry(ctx context.Context, entry *model.Entry) error

	// GetEntriesByAccount returns all records for an account, oldest first.
	GetEntriesByAccount(ctx context.Context, acct model.Account) ([]model.Entry, error)

	// ListRecentEntries returns up to limit records, newest first.
	ListRecentEntries(ctx context.Context, limit int) ([]model.Entry, error)

	// --- Stranded funds ---

	// SaveStranded inserts or updates a stranded-funds record.
	SaveStranded(ctx context.Context, s *model.StrandedFunds) error

	// ListStranded returns all stranded-funds records, oldest first.
	ListStranded(ctx context.Context) ([]model.StrandedFunds, error)
}
