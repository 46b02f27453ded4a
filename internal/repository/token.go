package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
)

// TokenStore runs fn as one atomic, serializable unit. If fn returns an error
// every write made through tx is discarded; otherwise all of them commit.
type TokenStore interface {
	InTx(ctx context.Context, fn func(tx TokenTx) error) error
}

// TokenTx is the view of the store available inside a unit. Implementations
// must not cache anything across units.
type TokenTx interface {
	// GetTransaction returns domain.ErrTransactionNotFound when (userID, key) was never recorded.
	GetTransaction(ctx context.Context, userID int64, key string) (*domain.Transaction, error)
	// InsertTransaction returns domain.ErrTransactionConflict on a duplicate (userID, key).
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	IncrementTokenCount(ctx context.Context, userID int64) error

	GetToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error)
	InsertToken(ctx context.Context, token *domain.Token) error
	// DecrementToken subtracts one use if and only if the token still has a use
	// left and has not expired at now. Returns the number of rows changed.
	DecrementToken(ctx context.Context, userID int64, tokenID string, now time.Time) (int64, error)

	// InsertErrorEvent appends the event and bumps the user's error summary.
	InsertErrorEvent(ctx context.Context, ev *domain.ErrorEvent) error
	// ErrorCount reads the user's error summary; zero when the user has none.
	ErrorCount(ctx context.Context, userID int64) (int64, error)
}

// TokenReader serves read-only lookups outside the dedup contract.
type TokenReader interface {
	FindToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error)
}

// UserLoader bulk-creates users. Existing ids are left untouched.
type UserLoader interface {
	CreateUsers(ctx context.Context, ids []int64) (int, error)
}

// MaintenanceStore is used by the janitor.
type MaintenanceStore interface {
	// PruneTransactions deletes transaction records older than cutoff, at most limit rows.
	PruneTransactions(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
