package service

import (
	"errors"
	"fmt"

	"rpsledger/internal/admin"
	"rpsledger/internal/hand"
	"rpsledger/internal/ledger"
)

var (
	ErrInvalidInput       = hand.ErrInvalidInput
	ErrInvalidAmount      = ledger.ErrInvalidAmount
	ErrUnauthorized       = admin.ErrUnauthorized
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrInsufficientLocked = ledger.ErrInsufficientLocked
	ErrRevealMismatch     = hand.ErrRevealMismatch
	ErrInvalidState       = errors.New("invalid state")
	ErrSystemPaused       = errors.New("system paused")
	ErrTransferFailed     = errors.New("transfer failed")

	// ErrGameNotFound is an ErrInvalidInput
	ErrGameNotFound = fmt.Errorf("%w: game not found", ErrInvalidInput)
)

// IsInvalidInput reports whether err is any kind of malformed-input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidAmount)
}
