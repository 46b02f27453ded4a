package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 123456000, time.UTC)

func seedToken(t *testing.T, s *Store, tok *domain.Token) {
	t.Helper()
	_, err := s.CreateUsers(context.Background(), []int64{tok.UserID})
	require.NoError(t, err)
	require.NoError(t, s.InTx(context.Background(), func(tx repository.TokenTx) error {
		return tx.InsertToken(context.Background(), tok)
	}))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Ping(context.Background()))
		require.NoError(t, s.Close())
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/a.db?_txlock=immediate", dsn("/tmp/a.db"))
	assert.Equal(t, "file:/tmp/a.db?cache=shared&_txlock=immediate", dsn("file:/tmp/a.db?cache=shared"))
	assert.Equal(t, "file::memory:?_txlock=immediate", dsn(":memory:"))
}

func TestCreateUsers_SkipsExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n, err := s.CreateUsers(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CreateUsers(ctx, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		u, err := tx.GetUser(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(0), u.TokenCount)

		_, err = tx.GetUser(ctx, 5)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		return nil
	}))
}

func TestInsertTransaction_DuplicateKeyConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	txn := &domain.Transaction{UserID: 1, Key: "TXN1", TxnTime: t0, Purpose: domain.PurposeUseToken}

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		return tx.InsertTransaction(ctx, txn)
	}))

	err := s.InTx(ctx, func(tx repository.TokenTx) error {
		return tx.InsertTransaction(ctx, txn)
	})
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		got, err := tx.GetTransaction(ctx, 1, "TXN1")
		require.NoError(t, err)
		assert.True(t, got.TxnTime.Equal(t0), "txn time %v", got.TxnTime)
		assert.Equal(t, domain.PurposeUseToken, got.Purpose)

		_, err = tx.GetTransaction(ctx, 2, "TXN1")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
		return nil
	}))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.TokenTx) error {
		require.NoError(t, tx.InsertTransaction(ctx, &domain.Transaction{UserID: 1, Key: "K", TxnTime: t0, Purpose: domain.PurposeUseToken}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		_, err := tx.GetTransaction(ctx, 1, "K")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
		return nil
	}))
}

func TestDecrementToken_Guards(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedToken(t, s, &domain.Token{UserID: 1, TokenID: "live", RemainingUsages: 1, ExpiryDate: t0.Add(time.Minute), CreateDate: t0})
	seedToken(t, s, &domain.Token{UserID: 1, TokenID: "expired", RemainingUsages: 3, ExpiryDate: t0, CreateDate: t0})

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		n, err := tx.DecrementToken(ctx, 1, "live", t0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = tx.DecrementToken(ctx, 1, "live", t0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "exhausted token must not decrement")

		n, err = tx.DecrementToken(ctx, 1, "expired", t0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "token at its expiry instant must not decrement")

		n, err = tx.DecrementToken(ctx, 1, "missing", t0)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		return nil
	}))

	tok, err := s.FindToken(ctx, 1, "live")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tok.RemainingUsages)
	assert.True(t, tok.ExpiryDate.Equal(t0.Add(time.Minute)))

	_, err = s.FindToken(ctx, 1, "missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestIncrementTokenCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateUsers(ctx, []int64{9})
	require.NoError(t, err)

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		require.NoError(t, tx.IncrementTokenCount(ctx, 9))
		require.NoError(t, tx.IncrementTokenCount(ctx, 9))
		assert.ErrorIs(t, tx.IncrementTokenCount(ctx, 10), domain.ErrUserNotFound)

		u, err := tx.GetUser(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, int64(2), u.TokenCount)
		return nil
	}))
}

func TestErrorEvents_MaintainSummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		n, err := tx.ErrorCount(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		for i := 0; i < 3; i++ {
			require.NoError(t, tx.InsertErrorEvent(ctx, &domain.ErrorEvent{
				UserID: 5, Key: "K", Status: domain.StatusTokenUsed, Message: "Token x used", CreatedAt: t0,
			}))
		}
		require.NoError(t, tx.InsertErrorEvent(ctx, &domain.ErrorEvent{
			UserID: 6, Key: "K", Status: domain.StatusUserDoesNotExist, Message: "No such user", CreatedAt: t0,
		}))

		n, err = tx.ErrorCount(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		return nil
	}))

	var events int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM user_error_events WHERE user_id = 5`).Scan(&events))
	assert.Equal(t, 3, events)
}

func TestPruneTransactions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx repository.TokenTx) error {
		for i := 0; i < 5; i++ {
			if err := tx.InsertTransaction(ctx, &domain.Transaction{
				UserID:  1,
				Key:     "K" + string(rune('a'+i)),
				TxnTime: t0.Add(time.Duration(i) * time.Hour),
				Purpose: domain.PurposeUseToken,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	// records at t0, t0+1h, t0+2h are older than the cutoff
	n, err := s.PruneTransactions(ctx, t0.Add(150*time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.PruneTransactions(ctx, t0.Add(150*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var left int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM recent_transactions`).Scan(&left))
	assert.Equal(t, 2, left)
}
