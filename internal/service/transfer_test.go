package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpsledger/internal/hand"
	"rpsledger/internal/storage"
)

type transferFunc func(ctx context.Context, account, amount int64, ref string) error

func (f transferFunc) Transfer(ctx context.Context, account, amount int64, ref string) error {
	return f(ctx, account, amount, ref)
}

func TestWithdrawSuccess(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 100)

	var gotRef string
	f.engine.SetTransferer(transferFunc(func(ctx context.Context, account, amount int64, ref string) error {
		gotRef = ref
		return nil
	}))

	events, err := f.engine.Withdraw(f.ctx, player1, 40)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, storage.EventWithdraw, events[0].Kind)
	assert.Equal(t, int64(40), events[0].Amount)
	assert.Len(t, gotRef, 36)

	f.assertBalance(player1, 60, 0)
	journal, err := f.engine.ListTransactions(f.ctx, player1, 0)
	require.NoError(t, err)
	assert.Equal(t, storage.SourceWithdraw, journal[0].SourceType)
	assert.Equal(t, int64(-40), journal[0].Amount)
	assert.Contains(t, journal[0].Description, gotRef)
}

func TestWithdrawRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 100)
	f.engine.SetTransferer(transferFunc(func(ctx context.Context, account, amount int64, ref string) error {
		return errors.New("destination refused")
	}))

	events, err := f.engine.Withdraw(f.ctx, player1, 40)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Empty(t, events)
	f.assertBalance(player1, 100, 0)

	journal, err := f.engine.ListTransactions(f.ctx, player1, 0)
	require.NoError(t, err)
	require.Len(t, journal, 3)
	assert.Equal(t, storage.SourceWithdrawRollback, journal[0].SourceType)
	assert.Equal(t, int64(40), journal[0].Amount)
	assert.Equal(t, int64(1), f.engine.Metrics().WithdrawFailed.Count())
}

func TestWithdrawTransferSeesCommittedDebit(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 100)

	var (
		seen       int64
		reentryErr error
	)
	f.engine.SetTransferer(transferFunc(func(ctx context.Context, account, amount int64, ref string) error {
		seen, _, _ = f.engine.BalanceOf(ctx, account)
		_, reentryErr = f.engine.Withdraw(ctx, account, 100)
		return nil
	}))

	_, err := f.engine.Withdraw(f.ctx, player1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seen)
	assert.ErrorIs(t, reentryErr, ErrInsufficientFunds)
	f.assertBalance(player1, 0, 0)
}

func TestWithdrawTimeout(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 100)
	f.engine.SetTransferer(transferFunc(func(ctx context.Context, account, amount int64, ref string) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	_, err := f.engine.Withdraw(f.ctx, player1, 10)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
	f.assertBalance(player1, 100, 0)
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 10)

	_, err := f.engine.Withdraw(f.ctx, player1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Withdraw(f.ctx, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.Withdraw(f.ctx, player1, 11)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// locked funds can't be withdrawn
	f.deposit(player1, 90)
	f.createGame(100, hand.Rock)
	_, err = f.engine.Withdraw(f.ctx, player1, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestWebhookTransferer(t *testing.T) {
	var got transferRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.Amount > 1000 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(strings.Repeat("x", 10_000)))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := NewWebhookTransferer(server.URL, 64)

	err := tr.Transfer(context.Background(), 5, 100, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, transferRequest{Account: 5, Amount: 100, Ref: "ref-1"}, got)

	err = tr.Transfer(context.Background(), 5, 5000, "ref-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Less(t, len(err.Error()), 200, "response body is capped")
}

func TestWebhookTransfererHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewWebhookTransferer(server.URL, 64).Transfer(ctx, 1, 1, "ref")
	assert.Error(t, err)
}
