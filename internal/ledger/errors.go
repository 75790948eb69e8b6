package ledger

import "errors"

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrUnknownUser            = errors.New("unknown user")
	ErrPersistenceWriteFailed = errors.New("persistence write failed")
	ErrCorruptSnapshot        = errors.New("corrupt ledger snapshot")
)
