// Package ledger moves funds between the available and locked balances of
// accounts. Every function runs inside a storage transaction, writes a journal
// row for each change of an available balance and never lets a balance go
// negative or overflow.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"rpsledger/internal/penalty"
	"rpsledger/internal/storage"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientLocked = errors.New("insufficient locked funds")
)

// AccountReader is satisfied by both storage.Store and storage.Tx
type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (*storage.Account, error)
}

// BalanceOf returns the available and locked balances of an account.
// An account that never received funds has zero balances.
func BalanceOf(ctx context.Context, r AccountReader, account int64) (available, locked int64, err error) {
	acc, err := r.GetAccount(ctx, account)
	if err != nil {
		return 0, 0, err
	}
	if acc == nil {
		return 0, 0, nil
	}
	return acc.Available, acc.Locked, nil
}

// Deposit credits amount to the available balance and emits a DEPOSIT event
func Deposit(ctx context.Context, tx *storage.Tx, account, amount int64) error {
	if err := Credit(ctx, tx, account, amount, storage.SourceDeposit, 0, "deposit"); err != nil {
		return err
	}
	return tx.Emit(ctx, storage.Event{Kind: storage.EventDeposit, Account: account, Amount: amount})
}

// Credit adds amount to the available balance, creating the account if needed
func Credit(ctx context.Context, tx *storage.Tx, account, amount int64, source storage.TransactionSource, gameID int64, description string) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, _, err := tx.EnsureAccount(ctx, account, "", "")
	if err != nil {
		return err
	}
	available, err := penalty.AddInt64Checked(acc.Available, amount, "available balance")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if _, err := penalty.AddInt64Checked(available, acc.Locked, "total balance"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if err := tx.SetBalances(ctx, account, available, acc.Locked); err != nil {
		return err
	}
	return tx.InsertTransaction(ctx, &storage.Transaction{
		AccountID:   account,
		Amount:      amount,
		SourceType:  source,
		GameID:      gameID,
		Description: description,
	})
}

// Debit removes amount from the available balance
func Debit(ctx context.Context, tx *storage.Tx, account, amount int64, source storage.TransactionSource, description string) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return err
	}
	if acc == nil || acc.Available < amount {
		return fmt.Errorf("%w: account %d has %d available, needs %d", ErrInsufficientFunds, account, availableOf(acc), amount)
	}
	if err := tx.SetBalances(ctx, account, acc.Available-amount, acc.Locked); err != nil {
		return err
	}
	return tx.InsertTransaction(ctx, &storage.Transaction{
		AccountID:   account,
		Amount:      -amount,
		SourceType:  source,
		Description: description,
	})
}

// Lock moves amount from the available to the locked balance of account
func Lock(ctx context.Context, tx *storage.Tx, account, amount, gameID int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return err
	}
	if acc == nil || acc.Available < amount {
		return fmt.Errorf("%w: account %d has %d available, needs %d", ErrInsufficientFunds, account, availableOf(acc), amount)
	}
	if err := tx.SetBalances(ctx, account, acc.Available-amount, acc.Locked+amount); err != nil {
		return err
	}
	return tx.InsertTransaction(ctx, &storage.Transaction{
		AccountID:   account,
		Amount:      -amount,
		SourceType:  storage.SourceLock,
		GameID:      gameID,
		Description: fmt.Sprintf("stake for game #%d", gameID),
	})
}

// Release takes amount out of the locked balance of from and credits it to the
// available balance of recipient, which may be from itself
func Release(ctx context.Context, tx *storage.Tx, from, amount, recipient, gameID int64) error {
	if amount == 0 {
		return nil
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := tx.GetAccount(ctx, from)
	if err != nil {
		return err
	}
	if acc == nil || acc.Locked < amount {
		locked := int64(0)
		if acc != nil {
			locked = acc.Locked
		}
		return fmt.Errorf("%w: account %d has %d locked, needs %d", ErrInsufficientLocked, from, locked, amount)
	}
	if err := tx.SetBalances(ctx, from, acc.Available, acc.Locked-amount); err != nil {
		return err
	}

	description := fmt.Sprintf("game #%d stake returned", gameID)
	if recipient != from {
		description = fmt.Sprintf("game #%d stake of %d", gameID, from)
	}
	return Credit(ctx, tx, recipient, amount, storage.SourceRelease, gameID, description)
}

// EmitLockedChanged records the current locked balance of account
func EmitLockedChanged(ctx context.Context, tx *storage.Tx, account, gameID int64) error {
	_, locked, err := BalanceOf(ctx, tx, account)
	if err != nil {
		return err
	}
	return tx.Emit(ctx, storage.Event{
		Kind:    storage.EventLockedChanged,
		GameID:  gameID,
		Account: account,
		Amount:  locked,
	})
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidAmount, amount)
	}
	return nil
}

func availableOf(acc *storage.Account) int64 {
	if acc == nil {
		return 0
	}
	return acc.Available
}
