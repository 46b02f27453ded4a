package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/metrics"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
)

const (
	defaultErrorThreshold = 2
	defaultMaxAttempts    = 5
)

// Clock is the source of transaction time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Stores keep microseconds.
func (systemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// IDGenerator produces token ids for a user.
type IDGenerator interface {
	Next(userID int64) (string, error)
}

// OutcomeRecorder receives every finished operation. Errors are logged, never returned.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, ev domain.OutcomeEvent) error
}

type TokenUsecase struct {
	store          repository.TokenStore
	reader         repository.TokenReader
	ids            IDGenerator
	clock          Clock
	recorder       OutcomeRecorder
	logger         *slog.Logger
	errorThreshold int64
	maxAttempts    int
}

type Option func(*TokenUsecase)

func WithClock(c Clock) Option {
	return func(u *TokenUsecase) { u.clock = c }
}

// WithErrorThreshold sets how many error events a user may accumulate before
// the lockout compares them against created tokens.
func WithErrorThreshold(n int64) Option {
	return func(u *TokenUsecase) { u.errorThreshold = n }
}

// WithMaxAttempts bounds how often a unit is re-run after a conflict.
func WithMaxAttempts(n int) Option {
	return func(u *TokenUsecase) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

func WithRecorder(r OutcomeRecorder) Option {
	return func(u *TokenUsecase) { u.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(u *TokenUsecase) { u.logger = l.With("component", "token_usecase") }
}

func WithReader(r repository.TokenReader) Option {
	return func(u *TokenUsecase) { u.reader = r }
}

func NewTokenUsecase(store repository.TokenStore, ids IDGenerator, opts ...Option) *TokenUsecase {
	u := &TokenUsecase{
		store:          store,
		ids:            ids,
		clock:          systemClock{},
		logger:         slog.Default().With("component", "token_usecase"),
		errorThreshold: defaultErrorThreshold,
		maxAttempts:    defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type CreateTokenInput struct {
	UserID     int64
	ExpiryDate time.Time
	TxnKey     string
	UsageCount int
}

// CreateToken issues a token allowing UsageCount redemptions until ExpiryDate.
// The expiry is trusted as given.
func (u *TokenUsecase) CreateToken(ctx context.Context, input CreateTokenInput) (domain.Result, error) {
	start := time.Now()
	res, err := u.runUnit(ctx, domain.OperationCreateToken, func(tx repository.TokenTx, now time.Time) (domain.Result, error) {
		g := &guard{tx: tx, userID: input.UserID, key: input.TxnKey, now: now}
		if res, done, err := g.admit(ctx); done {
			return res, err
		}

		user, err := tx.GetUser(ctx, input.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			return g.reject(ctx, domain.OutcomeUserDoesNotExist, "No such user")
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("get user: %w", err)
		}

		tokenID, err := u.ids.Next(user.ID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("generate token id: %w", err)
		}

		if err := tx.InsertToken(ctx, &domain.Token{
			UserID:          user.ID,
			TokenID:         tokenID,
			RemainingUsages: int64(input.UsageCount),
			ExpiryDate:      input.ExpiryDate,
			CreateDate:      now,
		}); err != nil {
			return domain.Result{}, fmt.Errorf("insert token: %w", err)
		}
		if err := tx.IncrementTokenCount(ctx, user.ID); err != nil {
			return domain.Result{}, fmt.Errorf("increment token count: %w", err)
		}

		created, err := tx.GetToken(ctx, user.ID, tokenID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("read created token: %w", err)
		}
		return domain.Result{
			Status:  domain.StatusOK,
			Outcome: domain.OutcomeOK,
			Message: "Created token",
			Token:   created,
		}, nil
	})
	u.observe(ctx, domain.OperationCreateToken, input.UserID, start, res, err)
	return res, err
}

type UseTokenInput struct {
	UserID  int64
	TokenID string
	TxnKey  string
}

// UseToken redeems one use of a token. Checks run in a fixed order and the
// first failing one decides the outcome.
func (u *TokenUsecase) UseToken(ctx context.Context, input UseTokenInput) (domain.Result, error) {
	start := time.Now()
	res, err := u.runUnit(ctx, domain.OperationUseToken, func(tx repository.TokenTx, now time.Time) (domain.Result, error) {
		g := &guard{tx: tx, userID: input.UserID, key: input.TxnKey, now: now}
		if res, done, err := g.admit(ctx); done {
			return res, err
		}

		user, err := tx.GetUser(ctx, input.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			return g.reject(ctx, domain.OutcomeUserDoesNotExist, "No such user")
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("get user: %w", err)
		}

		token, err := tx.GetToken(ctx, input.UserID, input.TokenID)
		if errors.Is(err, domain.ErrTokenNotFound) {
			return g.reject(ctx, domain.OutcomeTokenDoesNotExist, "Token "+input.TokenID+" does not exist")
		}
		if err != nil {
			return domain.Result{}, fmt.Errorf("get token: %w", err)
		}

		errCount, err := tx.ErrorCount(ctx, input.UserID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("error count: %w", err)
		}
		if errCount > u.errorThreshold && errCount > user.TokenCount {
			return g.reject(ctx, domain.OutcomeUserHasTooManyErrors,
				fmt.Sprintf("User %d has %d errors and only %d successes", input.UserID, errCount, user.TokenCount))
		}

		if token.RemainingUsages < 1 {
			return g.reject(ctx, domain.OutcomeTokenUsed, "Token "+input.TokenID+" used")
		}
		if token.Expired(now) {
			return g.reject(ctx, domain.OutcomeTokenExpired,
				"Token "+input.TokenID+" expired at "+token.ExpiryDate.UTC().Format(txnTimeLayout))
		}

		n, err := tx.DecrementToken(ctx, input.UserID, input.TokenID, now)
		if err != nil {
			return domain.Result{}, fmt.Errorf("decrement token: %w", err)
		}
		if n != 1 {
			return domain.Result{}, fmt.Errorf("decrement token %s changed %d rows: %w", input.TokenID, n, domain.ErrInvariantViolated)
		}

		updated, err := tx.GetToken(ctx, input.UserID, input.TokenID)
		if err != nil {
			return domain.Result{}, fmt.Errorf("read updated token: %w", err)
		}
		return domain.Result{
			Status:  domain.StatusOK,
			Outcome: domain.OutcomeOK,
			Message: "subtracted one from token",
			Token:   updated,
		}, nil
	})
	u.observe(ctx, domain.OperationUseToken, input.UserID, start, res, err)
	return res, err
}

// GetToken is a plain read, outside the dedup contract.
func (u *TokenUsecase) GetToken(ctx context.Context, userID int64, tokenID string) (*domain.Token, error) {
	if u.reader == nil {
		return nil, errors.New("token reader not configured")
	}
	t, err := u.reader.FindToken(ctx, userID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

type unitFunc func(tx repository.TokenTx, now time.Time) (domain.Result, error)

// runUnit executes fn in its own store transaction, re-running the whole unit
// when the store reports a serialization failure or a racing transaction key.
// Each attempt gets a fresh transaction time.
func (u *TokenUsecase) runUnit(ctx context.Context, op string, fn unitFunc) (domain.Result, error) {
	for attempt := 1; ; attempt++ {
		now := u.clock.Now()

		var res domain.Result
		err := u.store.InTx(ctx, func(tx repository.TokenTx) error {
			var fnErr error
			res, fnErr = fn(tx, now)
			return fnErr
		})
		if err == nil {
			return res, nil
		}

		conflict := errors.Is(err, domain.ErrTransactionConflict)
		if !conflict && !errors.Is(err, domain.ErrSerialization) {
			return domain.Result{}, fmt.Errorf("%s: %w", op, err)
		}
		if attempt >= u.maxAttempts {
			if conflict {
				// A concurrent unit owns this key; it is a replay as far as the caller is concerned.
				return domain.Result{
					Status:  domain.StatusTxnAlreadyHappened,
					Outcome: domain.OutcomeTxnAlreadyHappened,
					Message: "Event already happened",
				}, nil
			}
			return domain.Result{}, fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}

		metrics.TxRetriesTotal.WithLabelValues(op).Inc()
		u.logger.DebugContext(ctx, "retrying unit", "operation", op, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return domain.Result{}, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}
}

func retryDelay(attempt int) time.Duration {
	base := 5 * time.Millisecond << min(attempt-1, 6)
	return base/2 + time.Duration(rand.Int63n(int64(base)))
}

func (u *TokenUsecase) observe(ctx context.Context, op string, userID int64, start time.Time, res domain.Result, err error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OperationsTotal.WithLabelValues(op, "internal_error").Inc()
		u.logger.ErrorContext(ctx, "token operation failed", "operation", op, "user_id", userID, "error", err)
		return
	}

	metrics.OperationsTotal.WithLabelValues(op, string(res.Outcome)).Inc()
	if res.OK() {
		u.logger.InfoContext(ctx, "token operation", "operation", op, "user_id", userID, "token_id", res.Token.TokenID)
	} else {
		u.logger.InfoContext(ctx, "token operation rejected",
			"operation", op,
			"user_id", userID,
			"outcome", res.Outcome,
			"status", res.Status,
			"message", res.Message,
		)
	}

	if u.recorder != nil {
		ev := domain.OutcomeEvent{Operation: op, UserID: userID, Outcome: res.Outcome, At: time.Now()}
		if recErr := u.recorder.RecordOutcome(ctx, ev); recErr != nil {
			u.logger.WarnContext(ctx, "record outcome", "operation", op, "error", recErr)
		}
	}
}
