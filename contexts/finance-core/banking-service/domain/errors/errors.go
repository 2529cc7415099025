package errors

import "errors"

var (
	ErrAccountNotFound          = errors.New("account not found")
	ErrAccountAlreadyOpen       = errors.New("account already open")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrInvalidAccount           = errors.New("invalid account")
	ErrInvalidTransferRequest   = errors.New("please fill in all fields")
	ErrInvalidAmount            = errors.New("please enter a valid amount")
	ErrInsufficientFunds        = errors.New("you don't have enough balance for this transfer")
	ErrSelfTransfer             = errors.New("cannot transfer to your own account")
	ErrInvalidHistoryFilter     = errors.New("invalid transaction filter")
	ErrInvalidDeposit           = errors.New("invalid deposit request")
	ErrUnauthenticated          = errors.New("you need to be logged in to make transfers")
	ErrIdempotencyKeyConflict   = errors.New("idempotency key reused with different request")
	ErrDuplicateRequestID       = errors.New("request_id already used")
	ErrConcurrentUpdate         = errors.New("account was modified concurrently")
	ErrAccountLocked            = errors.New("account is busy, retry shortly")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)
