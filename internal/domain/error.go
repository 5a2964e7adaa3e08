package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrChainNotSupported  = errors.New("chain not supported")
	ErrCodeTaken          = errors.New("referral code already taken")
	ErrNonceSpent         = errors.New("nonce already used or expired")
	ErrLockBusy           = errors.New("resource is locked by another confirmation")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
