package wallet

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
	ErrSplitMismatch      = errors.New("split amounts must sum exactly to amount")
	ErrInvalidAmount      = errors.New("amount must be > 0")
	ErrInvalidBucket      = errors.New("unknown bucket type")
	ErrNotAuthorized      = errors.New("not authorized for this student")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrDuplicateReference = errors.New("external reference already used")
	ErrInvalidSettings    = errors.New("invalid wallet settings")
)
