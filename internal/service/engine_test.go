package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpsledger/internal/admin"
	"rpsledger/internal/hand"
	"rpsledger/internal/storage"
)

const (
	owner   = int64(9)
	player1 = int64(1001)
	player2 = int64(2002)
	outside = int64(3003)

	freeBetSeconds    = int64(10)
	expirationSeconds = int64(3)
)

var (
	secret1 = []byte("key-player1")
	secret2 = []byte("key-player2")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) record(call string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

func (n *recordingNotifier) ChallengeReceived(g *storage.Game) { n.record("received") }
func (n *recordingNotifier) ChallengeAccepted(g *storage.Game) { n.record("accepted") }
func (n *recordingNotifier) HandRevealed(g *storage.Game, revealer int64) { n.record("revealed") }
func (n *recordingNotifier) GameClosed(g *storage.Game) { n.record("closed") }
func (n *recordingNotifier) GameAwarded(g *storage.Game, winner, p int64) { n.record("awarded") }
func (n *recordingNotifier) GameStopped(g *storage.Game) { n.record("stopped") }
func (n *recordingNotifier) GameExpired(g *storage.Game) { n.record("expired") }

type fixture struct {
	t        *testing.T
	ctx      context.Context
	engine   *GameEngine
	store    *storage.Store
	clock    *testClock
	gate     *admin.Switch
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	gate := admin.NewSwitch(owner, true)
	engine, err := NewGameEngine(store, gate, Options{
		ArenaID:         "test-arena",
		PenaltyRatio:    2,
		WithdrawTimeout: 200 * time.Millisecond,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	engine.SetNotifier(notifier)

	return &fixture{
		t:        t,
		ctx:      context.Background(),
		engine:   engine,
		store:    store,
		clock:    clock,
		gate:     gate,
		notifier: notifier,
	}
}

func (f *fixture) commit(h hand.Hand, secret []byte, account int64) hand.Commitment {
	f.t.Helper()
	c, err := f.engine.CommitHand(h, secret, account)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) deposit(account, amount int64) {
	f.t.Helper()
	_, err := f.engine.Deposit(f.ctx, account, amount)
	require.NoError(f.t, err)
}

func (f *fixture) createGame(bet int64, h hand.Hand) int64 {
	f.t.Helper()
	id, _, err := f.engine.CreateGame(f.ctx, player1, player2, bet, freeBetSeconds, expirationSeconds, f.commit(h, secret1, player1))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) accept(gameID int64, h hand.Hand) {
	f.t.Helper()
	_, err := f.engine.ChallengeAccept(f.ctx, gameID, player2, f.commit(h, secret2, player2))
	require.NoError(f.t, err)
}

func (f *fixture) showBoth(gameID int64) {
	f.t.Helper()
	_, err := f.engine.ShowHand(f.ctx, gameID, player1, secret1)
	require.NoError(f.t, err)
	_, err = f.engine.ShowHand(f.ctx, gameID, player2, secret2)
	require.NoError(f.t, err)
}

func (f *fixture) balance(account int64) (int64, int64) {
	f.t.Helper()
	available, locked, err := f.engine.BalanceOf(f.ctx, account)
	require.NoError(f.t, err)
	return available, locked
}

func (f *fixture) assertBalance(account, available, locked int64) {
	f.t.Helper()
	a, l := f.balance(account)
	assert.Equal(f.t, available, a, "available of %d", account)
	assert.Equal(f.t, locked, l, "locked of %d", account)
}

func (f *fixture) game(id int64) *storage.Game {
	f.t.Helper()
	g, err := f.engine.GetGame(f.ctx, id)
	require.NoError(f.t, err)
	return g
}

// playGame funds both players with 1000, plays a full game up to CLOSED and
// returns its ID. acceptDelay is how long after creation player2 accepts.
func (f *fixture) playGame(bet int64, h1, h2 hand.Hand, acceptDelay time.Duration) int64 {
	f.t.Helper()
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(bet, h1)
	f.clock.Advance(acceptDelay)
	f.accept(id, h2)
	f.showBoth(id)
	return id
}

func kinds(events []storage.Event) []storage.EventKind {
	out := make([]storage.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestEndToEndPlayer2Wins(t *testing.T) {
	f := newFixture(t)

	f.deposit(player1, 1000)
	id := f.createGame(100, hand.Rock)
	assert.Equal(t, int64(1), id)
	f.assertBalance(player1, 900, 100)

	f.deposit(player2, 1000)
	f.accept(id, hand.Paper)
	f.assertBalance(player2, 900, 100)
	assert.Equal(t, storage.GameStatusBet, f.game(id).Status)

	_, err := f.engine.ShowHand(f.ctx, id, player1, secret1)
	require.NoError(t, err)
	assert.Equal(t, storage.GameStatusWaitingP2, f.game(id).Status)

	_, err = f.engine.ShowHand(f.ctx, id, player2, secret2)
	require.NoError(t, err)
	g := f.game(id)
	assert.Equal(t, storage.GameStatusClosed, g.Status)
	assert.Equal(t, hand.Player2, g.Winner)
	assert.Equal(t, hand.Rock, g.Hand1)
	assert.Equal(t, hand.Paper, g.Hand2)

	// stakes stay locked until the award
	f.assertBalance(player2, 900, 100)

	events, err := f.engine.GameAward(f.ctx, id, player2)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, storage.EventAward, events[0].Kind)
	assert.Equal(t, player2, events[0].Account)
	assert.Equal(t, int64(100), events[0].Amount)
	assert.Equal(t, int64(0), events[0].Penalty)

	// +100 on player2's holdings, the whole pot lands in available
	f.assertBalance(player2, 1100, 0)
	f.assertBalance(player1, 900, 0)
	assert.Equal(t, storage.GameStatusStopped, f.game(id).Status)

	assert.Equal(t, []string{"received", "accepted", "revealed", "closed", "awarded"}, f.notifier.calls)
}

func TestGameAwardPartialPenalty(t *testing.T) {
	f := newFixture(t)

	// accepted two seconds into the three second window: weight 16, penalty 32
	id := f.playGame(100, hand.Rock, hand.Paper, time.Duration(freeBetSeconds+2)*time.Second)

	events, err := f.engine.GameAward(f.ctx, id, player1)
	require.NoError(t, err)
	assert.Equal(t, int64(32), events[0].Penalty)
	assert.Equal(t, int64(100), events[0].Amount)

	f.assertBalance(player2, 900+100+68, 0)
	f.assertBalance(player1, 900+32, 0)
	assert.Equal(t, int64(1), f.engine.Metrics().AwardPenalty.Count())
	assert.Equal(t, int64(32), f.engine.Metrics().AwardPenalty.Max())
}

func TestGameAwardPenaltyAppliesEvenWhenCreatorWins(t *testing.T) {
	f := newFixture(t)

	// player2 accepted long after expiration, penalty saturates at 3*16
	id := f.playGame(100, hand.Paper, hand.Rock, time.Duration(freeBetSeconds+expirationSeconds+10)*time.Second)
	assert.Equal(t, hand.Player1, f.game(id).Winner)

	events, err := f.engine.GameAward(f.ctx, id, player1)
	require.NoError(t, err)
	assert.Equal(t, player1, events[0].Account)
	assert.Equal(t, int64(48), events[0].Penalty)

	// the penalty goes back to the loser even though the loser was the late party
	f.assertBalance(player1, 900+100+52, 0)
	f.assertBalance(player2, 900+48, 0)
}

func TestGameAwardTwiceDoesNotDoublePay(t *testing.T) {
	f := newFixture(t)
	id := f.playGame(100, hand.Scissor, hand.Paper, 0)

	_, err := f.engine.GameAward(f.ctx, id, player1)
	require.NoError(t, err)
	f.assertBalance(player1, 1100, 0)

	_, err = f.engine.GameAward(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.engine.GameAward(f.ctx, id, player2)
	assert.ErrorIs(t, err, ErrInvalidState)

	f.assertBalance(player1, 1100, 0)
	f.assertBalance(player2, 900, 0)
}

func TestPairSplitsOddBetEvenly(t *testing.T) {
	f := newFixture(t)
	id := f.playGame(101, hand.Rock, hand.Rock, 0)

	g := f.game(id)
	assert.Equal(t, hand.Pair, g.Winner)
	assert.Equal(t, storage.GameStatusClosed, g.Status)

	// the pot is 202; each side gets its own 101 back
	f.assertBalance(player1, 1000, 0)
	f.assertBalance(player2, 1000, 0)

	_, err := f.engine.GameAward(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState)

	f.clock.Advance(time.Hour)
	_, err = f.engine.StopGame(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStaleGameStoppedOnce(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	id := f.createGame(100, hand.Rock)

	_, err := f.engine.StopGame(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState, "not expired yet")

	f.clock.Advance(time.Duration(freeBetSeconds+expirationSeconds) * time.Second)
	_, err = f.engine.StopGame(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState, "expiration itself is not past expiration")

	f.clock.Advance(time.Second)
	events, err := f.engine.StopGame(f.ctx, id, player1)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventGameStatus, storage.EventLockedChanged}, kinds(events))
	assert.Equal(t, storage.GameStatusStopped, events[0].Status)
	assert.Equal(t, player1, events[1].Account)
	assert.Equal(t, int64(0), events[1].Amount)

	f.assertBalance(player1, 1000, 0)

	_, err = f.engine.StopGame(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState)
	f.assertBalance(player1, 1000, 0)
}

func TestStopGameAfterSingleReveal(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(100, hand.Rock)
	f.accept(id, hand.Scissor)

	_, err := f.engine.ShowHand(f.ctx, id, player2, secret2)
	require.NoError(t, err)
	assert.Equal(t, storage.GameStatusWaitingP1, f.game(id).Status)

	f.clock.Advance(time.Hour)
	_, err = f.engine.StopGame(f.ctx, id, outside)
	assert.ErrorIs(t, err, ErrUnauthorized)

	events, err := f.engine.StopGame(f.ctx, id, player2)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventGameStatus, storage.EventLockedChanged, storage.EventLockedChanged}, kinds(events))
	assert.Equal(t, player1, events[1].Account)
	assert.Equal(t, player2, events[2].Account)

	f.assertBalance(player1, 1000, 0)
	f.assertBalance(player2, 1000, 0)

	_, err = f.engine.ShowHand(f.ctx, id, player1, secret1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRevealMismatchIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(100, hand.Paper)
	f.accept(id, hand.Rock)

	events, err := f.engine.ShowHand(f.ctx, id, player1, []byte("wrong"))
	assert.ErrorIs(t, err, ErrRevealMismatch)
	assert.Empty(t, events)
	assert.Equal(t, storage.GameStatusBet, f.game(id).Status)
	assert.Equal(t, hand.None, f.game(id).Hand1)

	// a commitment is bound to its committer
	_, err = f.engine.ShowHand(f.ctx, id, player2, secret1)
	assert.ErrorIs(t, err, ErrRevealMismatch)

	_, err = f.engine.ShowHand(f.ctx, id, player1, secret1)
	require.NoError(t, err)
	assert.Equal(t, hand.Paper, f.game(id).Hand1)
	assert.Equal(t, int64(2), f.engine.Metrics().RevealMismatch.Count())
}

func TestInvalidStateTransitions(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(100, hand.Rock)

	_, err := f.engine.ShowHand(f.ctx, id, player1, secret1)
	assert.ErrorIs(t, err, ErrInvalidState, "reveal before acceptance")

	_, err = f.engine.GameAward(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrInvalidState, "award before close")

	f.accept(id, hand.Paper)
	_, err = f.engine.ChallengeAccept(f.ctx, id, player2, f.commit(hand.Rock, secret2, player2))
	assert.ErrorIs(t, err, ErrInvalidState, "accept twice")

	_, err = f.engine.ShowHand(f.ctx, id, player1, secret1)
	require.NoError(t, err)
	_, err = f.engine.ShowHand(f.ctx, id, player1, secret1)
	assert.ErrorIs(t, err, ErrInvalidState, "reveal twice")

	_, err = f.engine.ShowHand(f.ctx, 999, player1, secret1)
	assert.ErrorIs(t, err, ErrGameNotFound)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnauthorizedCallers(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	f.deposit(outside, 1000)
	id := f.createGame(100, hand.Rock)

	_, err := f.engine.ChallengeAccept(f.ctx, id, outside, f.commit(hand.Rock, secret2, outside))
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.ChallengeAccept(f.ctx, id, player1, f.commit(hand.Rock, secret1, player1))
	assert.ErrorIs(t, err, ErrUnauthorized)
	f.assertBalance(outside, 1000, 0)

	f.accept(id, hand.Scissor)
	_, err = f.engine.ShowHand(f.ctx, id, outside, secret2)
	assert.ErrorIs(t, err, ErrUnauthorized)

	f.showBoth(id)
	_, err = f.engine.GameAward(f.ctx, id, outside)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateGameValidation(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	c := f.commit(hand.Rock, secret1, player1)

	tests := []struct {
		name       string
		creator    int64
		opponent   int64
		bet        int64
		freeBet    int64
		expiration int64
		commitment hand.Commitment
	}{
		{"null creator", 0, player2, 100, 10, 3, c},
		{"null opponent", player1, 0, 100, 10, 3, c},
		{"self play", player1, player1, 100, 10, 3, c},
		{"zero bet", player1, player2, 0, 10, 3, c},
		{"negative bet", player1, player2, -1, 10, 3, c},
		{"zero free bet", player1, player2, 100, 0, 3, c},
		{"zero expiration", player1, player2, 100, 10, 0, c},
		{"empty commitment", player1, player2, 100, 10, 3, hand.Commitment{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.engine.CreateGame(f.ctx, tt.creator, tt.opponent, tt.bet, tt.freeBet, tt.expiration, tt.commitment)
			assert.True(t, IsInvalidInput(err), "got %v", err)
		})
	}
	f.assertBalance(player1, 1000, 0)
}

func TestInsufficientFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 50)

	_, _, err := f.engine.CreateGame(f.ctx, player1, player2, 100, 10, 3, f.commit(hand.Rock, secret1, player1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	f.assertBalance(player1, 50, 0)

	_, err = f.engine.GetGame(f.ctx, 1)
	assert.ErrorIs(t, err, ErrGameNotFound)

	f.deposit(player1, 50)
	id := f.createGame(100, hand.Rock)
	assert.Equal(t, int64(1), id, "game ids start at 1 and skip nothing")

	_, err = f.engine.ChallengeAccept(f.ctx, id, player2, f.commit(hand.Paper, secret2, player2))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, storage.GameStatusCreated, f.game(id).Status)
	assert.Equal(t, int64(0), f.game(id).AcceptanceTime)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Deposit(f.ctx, player1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Deposit(f.ctx, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	events, err := f.engine.Deposit(f.ctx, player1, 10)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventDeposit}, kinds(events))
	assert.Equal(t, int64(10), f.engine.Metrics().Deposits.Count())
}

func TestPausedRefusesMutations(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(100, hand.Rock)

	require.NoError(t, f.gate.Pause(owner))

	_, err := f.engine.Deposit(f.ctx, player1, 1)
	assert.ErrorIs(t, err, ErrSystemPaused)
	_, _, err = f.engine.CreateGame(f.ctx, player1, player2, 10, 10, 3, f.commit(hand.Rock, secret1, player1))
	assert.ErrorIs(t, err, ErrSystemPaused)
	_, err = f.engine.ChallengeAccept(f.ctx, id, player2, f.commit(hand.Paper, secret2, player2))
	assert.ErrorIs(t, err, ErrSystemPaused)
	_, err = f.engine.Withdraw(f.ctx, player1, 1)
	assert.ErrorIs(t, err, ErrSystemPaused)
	f.clock.Advance(time.Hour)
	_, err = f.engine.StopGame(f.ctx, id, player1)
	assert.ErrorIs(t, err, ErrSystemPaused)

	// reads keep working
	f.assertBalance(player1, 900, 100)
	assert.Equal(t, storage.GameStatusCreated, f.game(id).Status)

	require.NoError(t, f.gate.Resume(owner))
	_, err = f.engine.StopGame(f.ctx, id, player1)
	require.NoError(t, err)
	f.assertBalance(player1, 1000, 0)
}

func TestEventOrderPerOperation(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)

	c1 := f.commit(hand.Rock, secret1, player1)
	id, events, err := f.engine.CreateGame(f.ctx, player1, player2, 100, freeBetSeconds, expirationSeconds, c1)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{
		storage.EventGameStatus, storage.EventGameMetadata, storage.EventCommitment, storage.EventLockedChanged,
	}, kinds(events))
	assert.Equal(t, storage.GameStatusCreated, events[0].Status)
	require.NotNil(t, events[1].Metadata)
	assert.Equal(t, int64(100), events[1].Metadata.Bet)
	assert.Equal(t, f.clock.Now().Unix()+freeBetSeconds, events[1].Metadata.FreeBetTime)
	assert.Equal(t, f.clock.Now().Unix()+freeBetSeconds+expirationSeconds, events[1].Metadata.ExpirationTime)
	assert.Equal(t, c1, events[2].Commitment)
	assert.Equal(t, int64(100), events[3].Amount)

	events, err = f.engine.ChallengeAccept(f.ctx, id, player2, f.commit(hand.Scissor, secret2, player2))
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventGameStatus, storage.EventCommitment, storage.EventLockedChanged}, kinds(events))
	assert.Equal(t, storage.GameStatusBet, events[0].Status)
	assert.Equal(t, player2, events[2].Account)

	events, err = f.engine.ShowHand(f.ctx, id, player2, secret2)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventHandShown, storage.EventGameStatus}, kinds(events))
	assert.Equal(t, hand.Scissor, events[0].Hand)
	assert.Equal(t, storage.GameStatusWaitingP1, events[1].Status)

	events, err = f.engine.ShowHand(f.ctx, id, player1, secret1)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{storage.EventHandShown, storage.EventVerdict, storage.EventGameStatus}, kinds(events))
	assert.Equal(t, hand.Player1, events[1].Winner)
	assert.Equal(t, storage.GameStatusClosed, events[2].Status)

	events, err = f.engine.GameAward(f.ctx, id, player1)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{
		storage.EventAward, storage.EventGameStatus, storage.EventLockedChanged, storage.EventLockedChanged,
	}, kinds(events))
	assert.Equal(t, player1, events[2].Account)
	assert.Equal(t, player2, events[3].Account)

	stored, err := f.engine.ListEvents(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored, 4+3+2+3+4)
}

func TestPairEventOrder(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	id := f.createGame(100, hand.Paper)
	f.accept(id, hand.Paper)

	_, err := f.engine.ShowHand(f.ctx, id, player1, secret1)
	require.NoError(t, err)
	events, err := f.engine.ShowHand(f.ctx, id, player2, secret2)
	require.NoError(t, err)
	assert.Equal(t, []storage.EventKind{
		storage.EventHandShown, storage.EventVerdict, storage.EventGameStatus,
		storage.EventLockedChanged, storage.EventLockedChanged,
	}, kinds(events))
	assert.Equal(t, hand.Pair, events[1].Winner)
}

func TestHoldingsAreConserved(t *testing.T) {
	f := newFixture(t)

	total := func() int64 {
		accounts, err := f.engine.ListAccounts(f.ctx)
		require.NoError(t, err)
		var sum int64
		for _, acc := range accounts {
			sum += acc.Total()
		}
		return sum
	}

	f.deposit(player1, 1000)
	f.deposit(player2, 1000)
	assert.Equal(t, int64(2000), total())

	id := f.createGame(300, hand.Rock)
	assert.Equal(t, int64(2000), total())
	f.clock.Advance(time.Duration(freeBetSeconds+1) * time.Second)
	f.accept(id, hand.Scissor)
	assert.Equal(t, int64(2000), total())
	f.showBoth(id)
	assert.Equal(t, int64(2000), total())
	_, err := f.engine.GameAward(f.ctx, id, player2)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), total())

	_, err = f.engine.Withdraw(f.ctx, player1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), total())
}

func TestAnnounceExpiredOnce(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	f.createGame(100, hand.Rock)
	f.createGame(100, hand.Paper)

	n, err := f.engine.AnnounceExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(time.Hour)
	n, err = f.engine.AnnounceExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.engine.AnnounceExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	expired := 0
	for _, call := range f.notifier.calls {
		if call == "expired" {
			expired++
		}
	}
	assert.Equal(t, 2, expired)
}

func TestRegisterAccountWelcomeBonus(t *testing.T) {
	f := newFixture(t)

	acc, created, err := f.engine.RegisterAccount(f.ctx, player1, "alice", "Alice", 500)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(500), acc.Available)

	acc, created, err = f.engine.RegisterAccount(f.ctx, player1, "alice", "Alice", 500)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(500), acc.Available)

	require.NoError(t, f.gate.Pause(owner))
	acc, created, err = f.engine.RegisterAccount(f.ctx, player2, "bob", "Bob", 500)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Zero(t, acc.Available)
}

func TestListGamesAndTransactions(t *testing.T) {
	f := newFixture(t)
	f.deposit(player1, 1000)
	first := f.createGame(10, hand.Rock)
	second := f.createGame(10, hand.Paper)

	games, err := f.engine.ListGames(f.ctx, player1, 0)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, second, games[0].ID)
	assert.Equal(t, first, games[1].ID)

	games, err = f.engine.ListGames(f.ctx, player2, 0)
	require.NoError(t, err)
	assert.Len(t, games, 2)

	journal, err := f.engine.ListTransactions(f.ctx, player1, 0)
	require.NoError(t, err)
	require.Len(t, journal, 3)
	assert.Equal(t, storage.SourceLock, journal[0].SourceType)
	assert.Equal(t, storage.SourceDeposit, journal[2].SourceType)
}
