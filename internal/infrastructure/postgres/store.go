package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenStore runs every unit at SERIALIZABLE isolation.
type TokenStore struct {
	pool *pgxpool.Pool
}

func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

func (s *TokenStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *TokenStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *TokenStore) InTx(ctx context.Context, fn func(tx repository.TokenTx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&tokenTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

func (s *TokenStore) FindToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error) {
	return scanToken(s.pool.QueryRow(ctx, selectToken, userID, tokenID))
}

func (s *TokenStore) CreateUsers(ctx context.Context, ids []int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, token_count)
		SELECT id, 0 FROM unnest($1::bigint[]) AS id
		ON CONFLICT (user_id) DO NOTHING`, ids)
	if err != nil {
		return 0, fmt.Errorf("insert users: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *TokenStore) PruneTransactions(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM recent_transactions
		WHERE (user_id, txn_key) IN (
			SELECT user_id, txn_key FROM recent_transactions
			WHERE  txn_time < $1
			ORDER BY txn_time ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// mapErr reports aborts caused by isolation as domain.ErrSerialization.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
		}
	}
	return err
}

var (
	_ repository.TokenStore       = (*TokenStore)(nil)
	_ repository.TokenReader      = (*TokenStore)(nil)
	_ repository.UserLoader       = (*TokenStore)(nil)
	_ repository.MaintenanceStore = (*TokenStore)(nil)
)
