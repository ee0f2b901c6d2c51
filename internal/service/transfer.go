package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"rpsledger/internal/ledger"
	"rpsledger/internal/logger"
	"rpsledger/internal/storage"
)

// Transferer moves withdrawn funds out of the ledger. It is called after the
// debit has been committed, outside the engine lock and with a deadline.
type Transferer interface {
	Transfer(ctx context.Context, account, amount int64, ref string) error
}

// LogTransferer only records the transfer
type LogTransferer struct{}

// Transfer logs the payout and succeeds
func (LogTransferer) Transfer(ctx context.Context, account, amount int64, ref string) error {
	logger.Debug(account, "transfer_logged", fmt.Sprintf("amount=%d ref=%s", amount, ref))
	return ctx.Err()
}

// WebhookTransferer posts every payout to an external endpoint
type WebhookTransferer struct {
	URL              string
	Client           *http.Client
	MaxResponseBytes int64
}

// NewWebhookTransferer creates a transferer posting to url
func NewWebhookTransferer(url string, maxResponseBytes int64) *WebhookTransferer {
	return &WebhookTransferer{
		URL:              url,
		Client:           &http.Client{},
		MaxResponseBytes: maxResponseBytes,
	}
}

type transferRequest struct {
	Account int64  `json:"account"`
	Amount  int64  `json:"amount"`
	Ref     string `json:"ref"`
}

// Transfer posts the payout and fails on any non-2xx answer. At most
// MaxResponseBytes of the answer are read.
func (t *WebhookTransferer) Transfer(ctx context.Context, account, amount int64, ref string) error {
	body, err := json.Marshal(transferRequest{Account: account, Amount: amount, Ref: ref})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ref)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	limit := t.MaxResponseBytes
	if limit <= 0 {
		limit = 4096
	}
	answer, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return fmt.Errorf("failed to read transfer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(answer)))
	}
	return nil
}

// Withdraw debits the account, then hands the funds to the Transferer. The
// debit is committed before the transfer starts and is credited back if the
// transfer fails or runs out of time.
func (e *GameEngine) Withdraw(ctx context.Context, account, amount int64) ([]storage.Event, error) {
	if account == 0 {
		return nil, fmt.Errorf("%w: account can't be the null identifier", ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidAmount, amount)
	}

	ref := uuid.NewString()
	_, err := e.execute(ctx, func(tx *storage.Tx) error {
		return ledger.Debit(ctx, tx, account, amount, storage.SourceWithdraw, "withdraw "+ref)
	})
	if err != nil {
		logger.Error(account, "withdraw", err)
		return nil, err
	}

	transferCtx, cancel := context.WithTimeout(ctx, e.withdrawTimeout)
	transferErr := e.transferer.Transfer(transferCtx, account, amount, ref)
	cancel()

	// The outcome is recorded even if the caller has gone away.
	settleCtx := context.WithoutCancel(ctx)

	if transferErr == nil {
		events, err := e.settle(settleCtx, func(tx *storage.Tx) error {
			return tx.Emit(settleCtx, storage.Event{Kind: storage.EventWithdraw, Account: account, Amount: amount})
		})
		if err != nil {
			logger.Error(account, "withdraw", err)
			return nil, err
		}
		e.metrics.Withdrawals.Mark(amount)
		logger.Debug(account, "withdraw", fmt.Sprintf("amount=%d ref=%s", amount, ref))
		return events, nil
	}

	e.metrics.WithdrawFailed.Inc(1)
	_, err = e.settle(settleCtx, func(tx *storage.Tx) error {
		return ledger.Credit(settleCtx, tx, account, amount, storage.SourceWithdrawRollback, 0, "rollback "+ref)
	})
	if err != nil {
		logger.Error(account, "withdraw_rollback_failed", err)
		return nil, errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, transferErr), err)
	}

	logger.Debug(account, "withdraw_rolled_back", fmt.Sprintf("amount=%d ref=%s error=%v", amount, ref, transferErr))
	return nil, fmt.Errorf("%w: %v", ErrTransferFailed, transferErr)
}

// settle finishes a withdrawal. It ignores the pause switch: a debit that
// already happened must be resolved either way.
func (e *GameEngine) settle(ctx context.Context, fn func(tx *storage.Tx) error) ([]storage.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.InTx(ctx, fn)
}
