package service

import "errors"

// Errors returned to callers. Upstream injection failures are returned as
// *upstream.InjectionError values instead.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredential   = errors.New("credential is invalid or the game server is unreachable")
	ErrNotLinked           = errors.New("no game account linked")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrItemNotFound        = errors.New("livery not found")
	ErrInjectionInProgress = errors.New("another injection is already running for this account")

	ErrProductNotFound     = errors.New("product not found or inactive")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyResolved     = errors.New("transaction already resolved")
	ErrProofRequired       = errors.New("payment proof is required")
)
