package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the single-node token store. Every unit runs as BEGIN IMMEDIATE on
// the only connection, so units are serialized by the database write lock.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_txlock=immediate"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + "_txlock=immediate"
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn in one database transaction. fn's error rolls the unit back and
// is returned unchanged; commit failures are mapped to domain errors.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.TokenTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&tokenTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

func (s *Store) FindToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error) {
	row := s.db.QueryRowContext(ctx, selectToken, userID, tokenID)
	return scanToken(row)
}

// CreateUsers inserts users with a zero token count. Existing ids are skipped.
func (s *Store) CreateUsers(ctx context.Context, ids []int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", mapErr(err))
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO users (user_id, token_count) VALUES (?, 0) ON CONFLICT (user_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert user: %w", err)
	}
	defer stmt.Close()

	created := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("insert user %d: %w", id, mapErr(err))
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", mapErr(err))
	}
	return created, nil
}

// PruneTransactions deletes up to limit transaction records older than cutoff.
func (s *Store) PruneTransactions(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM recent_transactions
		WHERE rowid IN (
			SELECT rowid FROM recent_transactions
			WHERE  txn_time < ?
			ORDER BY txn_time ASC
			LIMIT ?
		)`, cutoff.UnixMicro(), limit)
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// mapErr turns lock contention into domain.ErrSerialization so the unit is retried.
func mapErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var (
	_ repository.TokenStore       = (*Store)(nil)
	_ repository.TokenReader      = (*Store)(nil)
	_ repository.UserLoader       = (*Store)(nil)
	_ repository.MaintenanceStore = (*Store)(nil)
)
