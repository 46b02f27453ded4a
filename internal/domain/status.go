package domain

import "time"

// Status is the outward result code. Values are part of the wire contract.
type Status int8

const (
	StatusOK                   Status = 0
	StatusTxnAlreadyHappened   Status = -1
	StatusUserDoesNotExist     Status = -2
	StatusBadTransactionFormat Status = -3
	StatusTokenDoesNotExist    Status = -4
	StatusTokenUsed            Status = -5
	// StatusTokenExpired shares its value with StatusTokenUsed for compatibility
	// with existing clients. Use Outcome to tell them apart.
	StatusTokenExpired         Status = -5
	StatusUserHasTooManyErrors Status = 6
)

// Outcome names every classification an operation can end in.
type Outcome string

const (
	OutcomeOK                   Outcome = "ok"
	OutcomeTxnAlreadyHappened   Outcome = "txn_already_happened"
	OutcomeUserDoesNotExist     Outcome = "user_does_not_exist"
	OutcomeBadTransactionFormat Outcome = "bad_transaction_format"
	OutcomeTokenDoesNotExist    Outcome = "token_does_not_exist"
	OutcomeTokenUsed            Outcome = "token_used"
	OutcomeTokenExpired         Outcome = "token_expired"
	OutcomeUserHasTooManyErrors Outcome = "user_has_too_many_errors"
)

// Status maps an outcome to its wire code.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeOK:
		return StatusOK
	case OutcomeTxnAlreadyHappened:
		return StatusTxnAlreadyHappened
	case OutcomeUserDoesNotExist:
		return StatusUserDoesNotExist
	case OutcomeBadTransactionFormat:
		return StatusBadTransactionFormat
	case OutcomeTokenDoesNotExist:
		return StatusTokenDoesNotExist
	case OutcomeTokenUsed:
		return StatusTokenUsed
	case OutcomeTokenExpired:
		return StatusTokenExpired
	case OutcomeUserHasTooManyErrors:
		return StatusUserHasTooManyErrors
	default:
		panic("domain: unknown outcome " + string(o))
	}
}

// Result is what CreateToken and UseToken hand back to the caller.
// Token is nil on every non-OK outcome.
type Result struct {
	Status  Status
	Outcome Outcome
	Message string
	Token   *Token
}

func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Operation names used in logs, metrics and stats.
const (
	OperationCreateToken = "create_token"
	OperationUseToken    = "use_token"
)

// OutcomeEvent describes one finished operation for stats sinks.
type OutcomeEvent struct {
	Operation string
	UserID    int64
	Outcome   Outcome
	At        time.Time
}
