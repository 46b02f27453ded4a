package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const selectToken = `
	SELECT user_id, token_id, remaining_usages, expiry_date, create_date
	FROM tokens
	WHERE user_id = $1 AND token_id = $2`

type tokenTx struct {
	tx pgx.Tx
}

func (t *tokenTx) GetTransaction(ctx context.Context, userID int64, key string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, txn_key, txn_time, purpose
		FROM recent_transactions
		WHERE user_id = $1 AND txn_key = $2`, userID, key,
	).Scan(&txn.UserID, &txn.Key, &txn.TxnTime, &txn.Purpose)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	txn.TxnTime = txn.TxnTime.UTC()
	return &txn, nil
}

func (t *tokenTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO recent_transactions (user_id, txn_key, txn_time, purpose)
		VALUES ($1, $2, $3, $4)`,
		txn.UserID, txn.Key, txn.TxnTime, txn.Purpose)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrTransactionConflict
		}
		return mapErr(err)
	}
	return nil
}

func (t *tokenTx) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, token_count FROM users WHERE user_id = $1`, userID,
	).Scan(&u.ID, &u.TokenCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (t *tokenTx) IncrementTokenCount(ctx context.Context, userID int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET token_count = token_count + 1 WHERE user_id = $1`, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *tokenTx) GetToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error) {
	return scanToken(t.tx.QueryRow(ctx, selectToken, userID, tokenID))
}

func (t *tokenTx) InsertToken(ctx context.Context, token *domain.Token) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tokens (user_id, token_id, remaining_usages, expiry_date, create_date)
		VALUES ($1, $2, $3, $4, $5)`,
		token.UserID, token.TokenID, token.RemainingUsages, token.ExpiryDate, token.CreateDate)
	if err != nil {
		return fmt.Errorf("insert token: %w", mapErr(err))
	}
	return nil
}

// DecrementToken re-checks usability in the same statement that writes.
func (t *tokenTx) DecrementToken(ctx context.Context, userID int64, tokenID string, now time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tokens
		SET    remaining_usages = remaining_usages - 1
		WHERE  user_id = $1 AND token_id = $2
		  AND  remaining_usages >= 1
		  AND  expiry_date > $3`,
		userID, tokenID, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *tokenTx) InsertErrorEvent(ctx context.Context, ev *domain.ErrorEvent) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO user_error_events (user_id, txn_key, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.UserID, ev.Key, int16(ev.Status), ev.Message, ev.CreatedAt); err != nil {
		return fmt.Errorf("insert error event: %w", mapErr(err))
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO user_error_summary (user_id, how_many) VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE SET how_many = user_error_summary.how_many + 1`, ev.UserID); err != nil {
		return fmt.Errorf("update error summary: %w", mapErr(err))
	}
	return nil
}

func (t *tokenTx) ErrorCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT how_many FROM user_error_summary WHERE user_id = $1`, userID,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var tok domain.Token
	err := row.Scan(&tok.UserID, &tok.TokenID, &tok.RemainingUsages, &tok.ExpiryDate, &tok.CreateDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	tok.ExpiryDate = tok.ExpiryDate.UTC()
	tok.CreateDate = tok.CreateDate.UTC()
	return &tok, nil
}
