package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
)

const selectToken = `
	SELECT user_id, token_id, remaining_usages, expiry_date, create_date
	FROM tokens
	WHERE user_id = ? AND token_id = ?`

type tokenTx struct {
	tx *sql.Tx
}

func (t *tokenTx) GetTransaction(ctx context.Context, userID int64, key string) (*domain.Transaction, error) {
	var (
		txn     domain.Transaction
		txnTime int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT user_id, txn_key, txn_time, purpose
		FROM recent_transactions
		WHERE user_id = ? AND txn_key = ?`, userID, key,
	).Scan(&txn.UserID, &txn.Key, &txnTime, &txn.Purpose)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	txn.TxnTime = fromMicros(txnTime)
	return &txn, nil
}

func (t *tokenTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO recent_transactions (user_id, txn_key, txn_time, purpose)
		VALUES (?, ?, ?, ?)`,
		txn.UserID, txn.Key, txn.TxnTime.UnixMicro(), txn.Purpose)
	if isUniqueViolation(err) {
		return domain.ErrTransactionConflict
	}
	return mapErr(err)
}

func (t *tokenTx) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	err := t.tx.QueryRowContext(ctx,
		`SELECT user_id, token_count FROM users WHERE user_id = ?`, userID,
	).Scan(&u.ID, &u.TokenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (t *tokenTx) IncrementTokenCount(ctx context.Context, userID int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE users SET token_count = token_count + 1 WHERE user_id = ?`, userID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *tokenTx) GetToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error) {
	return scanToken(t.tx.QueryRowContext(ctx, selectToken, userID, tokenID))
}

func (t *tokenTx) InsertToken(ctx context.Context, token *domain.Token) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tokens (user_id, token_id, remaining_usages, expiry_date, create_date)
		VALUES (?, ?, ?, ?, ?)`,
		token.UserID, token.TokenID, token.RemainingUsages,
		token.ExpiryDate.UnixMicro(), token.CreateDate.UnixMicro())
	if err != nil {
		return fmt.Errorf("insert token: %w", mapErr(err))
	}
	return nil
}

// DecrementToken re-checks usability in the same statement that writes.
func (t *tokenTx) DecrementToken(ctx context.Context, userID int64, tokenID string, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE tokens
		SET    remaining_usages = remaining_usages - 1
		WHERE  user_id = ? AND token_id = ?
		  AND  remaining_usages >= 1
		  AND  expiry_date > ?`,
		userID, tokenID, now.UnixMicro())
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

func (t *tokenTx) InsertErrorEvent(ctx context.Context, ev *domain.ErrorEvent) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_error_events (user_id, txn_key, status, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.UserID, ev.Key, int(ev.Status), ev.Message, ev.CreatedAt.UnixMicro()); err != nil {
		return fmt.Errorf("insert error event: %w", mapErr(err))
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_error_summary (user_id, how_many) VALUES (?, 1)
		ON CONFLICT (user_id) DO UPDATE SET how_many = how_many + 1`, ev.UserID); err != nil {
		return fmt.Errorf("update error summary: %w", mapErr(err))
	}
	return nil
}

func (t *tokenTx) ErrorCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT how_many FROM user_error_summary WHERE user_id = ?`, userID,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, mapErr(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var (
		tok                domain.Token
		expiry, createDate int64
	)
	err := row.Scan(&tok.UserID, &tok.TokenID, &tok.RemainingUsages, &expiry, &createDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	tok.ExpiryDate = fromMicros(expiry)
	tok.CreateDate = fromMicros(createDate)
	return &tok, nil
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
