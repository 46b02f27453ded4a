package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionConflict is returned when a concurrent unit recorded the same
	// (user, txn key) pair first.
	ErrTransactionConflict = errors.New("transaction key already recorded")
	// ErrSerialization is returned when the store aborted the unit to preserve isolation.
	ErrSerialization = errors.New("transaction could not be serialized")
	// ErrInvariantViolated means the conditional decrement did not touch exactly one row.
	ErrInvariantViolated = errors.New("token invariant violated")
)

// PurposeUseToken labels every transaction record, regardless of the operation that wrote it.
const PurposeUseToken = "Use Token"

type User struct {
	ID         int64
	TokenCount int64 // tokens ever created for this user
}

type Token struct {
	UserID          int64
	TokenID         string
	RemainingUsages int64
	ExpiryDate      time.Time
	CreateDate      time.Time
}

// Usable reports whether the token can be redeemed at now.
func (t *Token) Usable(now time.Time) bool {
	return t.RemainingUsages >= 1 && now.Before(t.ExpiryDate)
}

// Expired reports whether now is at or past the expiry date.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiryDate)
}

type Transaction struct {
	UserID  int64
	Key     string
	TxnTime time.Time
	Purpose string
}

type ErrorEvent struct {
	UserID    int64
	Key       string
	Status    Status
	Message   string
	CreatedAt time.Time
}
