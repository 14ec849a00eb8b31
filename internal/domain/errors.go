package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNoMasterKey       = errors.New("key store master key not configured")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAmountOverflow    = errors.New("amount exceeds int64 minor units")
	ErrContextDone       = errors.New("context cancelled")
)
