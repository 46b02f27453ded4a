package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/ErlanBelekov/token-ledger/internal/repository"
)

// txnTimeLayout matches how prior transaction times are reported back to clients.
const txnTimeLayout = "2006-01-02 15:04:05.000000"

// IsMalformedKey reports whether key was built from the user id, e.g. "42-abc" for user 42.
// Such keys come from a known client bug and are rejected.
func IsMalformedKey(userID int64, key string) bool {
	return strings.HasPrefix(key, strconv.FormatInt(userID, 10)+"-")
}

// guard runs the steps every operation shares: dedup check, transaction
// record, key format. It is also the only way a unit produces a rejection.
type guard struct {
	tx     repository.TokenTx
	userID int64
	key    string
	now    time.Time
}

// admit returns done=true with a rejection when the unit must stop here.
func (g *guard) admit(ctx context.Context) (domain.Result, bool, error) {
	prior, err := g.tx.GetTransaction(ctx, g.userID, g.key)
	switch {
	case err == nil:
		res, err := g.reject(ctx, domain.OutcomeTxnAlreadyHappened,
			"Event already happened at "+prior.TxnTime.UTC().Format(txnTimeLayout))
		return res, true, err
	case !errors.Is(err, domain.ErrTransactionNotFound):
		return domain.Result{}, true, fmt.Errorf("get transaction: %w", err)
	}

	if err := g.tx.InsertTransaction(ctx, &domain.Transaction{
		UserID:  g.userID,
		Key:     g.key,
		TxnTime: g.now,
		Purpose: domain.PurposeUseToken,
	}); err != nil {
		return domain.Result{}, true, fmt.Errorf("insert transaction: %w", err)
	}

	if IsMalformedKey(g.userID, g.key) {
		res, err := g.reject(ctx, domain.OutcomeBadTransactionFormat, "Transaction ID is in the wrong format")
		return res, true, err
	}
	return domain.Result{}, false, nil
}

// reject records exactly one error event and returns the matching result.
func (g *guard) reject(ctx context.Context, outcome domain.Outcome, msg string) (domain.Result, error) {
	status := outcome.Status()
	if err := g.tx.InsertErrorEvent(ctx, &domain.ErrorEvent{
		UserID:    g.userID,
		Key:       g.key,
		Status:    status,
		Message:   msg,
		CreatedAt: g.now,
	}); err != nil {
		return domain.Result{}, fmt.Errorf("report error: %w", err)
	}
	return domain.Result{Status: status, Outcome: outcome, Message: msg}, nil
}
