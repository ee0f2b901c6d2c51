package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"rpsledger/internal/admin"
	"rpsledger/internal/hand"
	"rpsledger/internal/ledger"
	"rpsledger/internal/logger"
	"rpsledger/internal/penalty"
	"rpsledger/internal/storage"
)

// DefaultListLimit caps list queries when the caller passes no limit
const DefaultListLimit = 50

// Options configures a GameEngine
type Options struct {
	ArenaID           string
	PenaltyRatio      int64
	WithdrawTimeout   time.Duration
	TerminalCacheSize int
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Notifier is told about game progress after the change has been committed
type Notifier interface {
	ChallengeReceived(g *storage.Game)
	ChallengeAccepted(g *storage.Game)
	HandRevealed(g *storage.Game, revealer int64)
	GameClosed(g *storage.Game)
	GameAwarded(g *storage.Game, winner, penalty int64)
	GameStopped(g *storage.Game)
	GameExpired(g *storage.Game)
}

// GameEngine runs the game state machine over the ledger. Every mutating
// operation holds the engine lock and runs in one store transaction, so it
// either applies completely or not at all.
type GameEngine struct {
	mu         sync.Mutex
	store      *storage.Store
	gate       admin.Gate
	transferer Transferer
	notifier   Notifier
	metrics    *Metrics
	final      *lru.Cache[int64, storage.Game]

	now             func() time.Time
	arenaID         string
	penaltyRatio    int64
	withdrawTimeout time.Duration
}

// NewGameEngine creates an engine. A nil gate never pauses.
func NewGameEngine(store *storage.Store, gate admin.Gate, opts Options) (*GameEngine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.ArenaID == "" {
		return nil, fmt.Errorf("arena id is required")
	}
	if opts.PenaltyRatio == 0 {
		opts.PenaltyRatio = penalty.DefaultRatio
	}
	if opts.PenaltyRatio < 1 {
		return nil, fmt.Errorf("penalty ratio must be at least 1, got %d", opts.PenaltyRatio)
	}
	if opts.WithdrawTimeout <= 0 {
		opts.WithdrawTimeout = 2 * time.Second
	}
	if opts.TerminalCacheSize <= 0 {
		opts.TerminalCacheSize = 256
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	final, err := lru.New[int64, storage.Game](opts.TerminalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create game cache: %w", err)
	}

	return &GameEngine{
		store:           store,
		gate:            gate,
		transferer:      LogTransferer{},
		metrics:         NewMetrics(),
		final:           final,
		now:             opts.Clock,
		arenaID:         opts.ArenaID,
		penaltyRatio:    opts.PenaltyRatio,
		withdrawTimeout: opts.WithdrawTimeout,
	}, nil
}

// SetNotifier sets the notifier for game progress messages
func (e *GameEngine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetTransferer sets the external transfer used by Withdraw
func (e *GameEngine) SetTransferer(t Transferer) {
	e.transferer = t
}

// Metrics returns the engine's metrics
func (e *GameEngine) Metrics() *Metrics {
	return e.metrics
}

// ArenaID is the context every commitment is bound to
func (e *GameEngine) ArenaID() string {
	return e.arenaID
}

// Paused reports whether mutating operations are currently refused
func (e *GameEngine) Paused() bool {
	return e.gate != nil && e.gate.Paused()
}

func (e *GameEngine) unix() int64 {
	return e.now().Unix()
}

// execute runs fn in a transaction under the engine lock
func (e *GameEngine) execute(ctx context.Context, fn func(tx *storage.Tx) error) ([]storage.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Paused() {
		return nil, ErrSystemPaused
	}
	return e.store.InTx(ctx, fn)
}

// CommitHand computes the commitment a player publishes for h
func (e *GameEngine) CommitHand(h hand.Hand, secret []byte, committer int64) (hand.Commitment, error) {
	return hand.Commit(h, secret, committer, e.arenaID)
}

// RegisterAccount creates the account on first contact and pays the welcome
// bonus once. The bonus is skipped while paused.
func (e *GameEngine) RegisterAccount(ctx context.Context, account int64, username, firstName string, bonus int64) (*storage.Account, bool, error) {
	if account == 0 {
		return nil, false, fmt.Errorf("%w: account can't be the null identifier", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		acc     *storage.Account
		created bool
		paid    int64
	)
	_, err := e.store.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		acc, created, err = tx.EnsureAccount(ctx, account, username, firstName)
		if err != nil {
			return err
		}
		if !created || bonus <= 0 || e.Paused() {
			return nil
		}
		if err := ledger.Deposit(ctx, tx, account, bonus); err != nil {
			return err
		}
		paid = bonus
		acc, err = tx.GetAccount(ctx, account)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		logger.Debug(account, "account_created", fmt.Sprintf("username=%s bonus=%d", username, paid))
		if paid > 0 {
			e.metrics.Deposits.Mark(paid)
		}
	}
	return acc, created, nil
}

// Deposit credits amount to the available balance of account
func (e *GameEngine) Deposit(ctx context.Context, account, amount int64) ([]storage.Event, error) {
	if account == 0 {
		return nil, fmt.Errorf("%w: account can't be the null identifier", ErrInvalidInput)
	}

	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		return ledger.Deposit(ctx, tx, account, amount)
	})
	if err != nil {
		logger.Error(account, "deposit", err)
		return nil, err
	}

	e.metrics.Deposits.Mark(amount)
	logger.Debug(account, "deposit", fmt.Sprintf("amount=%d", amount))
	return events, nil
}

// CreateGame opens a challenge from creator to opponent and locks the creator's stake
func (e *GameEngine) CreateGame(ctx context.Context, creator, opponent, bet, freeBetSeconds, expirationSeconds int64, commitment hand.Commitment) (int64, []storage.Event, error) {
	switch {
	case creator == 0 || opponent == 0:
		return 0, nil, fmt.Errorf("%w: players can't be the null identifier", ErrInvalidInput)
	case creator == opponent:
		return 0, nil, fmt.Errorf("%w: can't challenge yourself", ErrInvalidInput)
	case bet <= 0:
		return 0, nil, fmt.Errorf("%w: bet must be positive, got %d", ErrInvalidAmount, bet)
	case freeBetSeconds <= 0 || expirationSeconds <= 0:
		return 0, nil, fmt.Errorf("%w: free bet and expiration periods must be positive", ErrInvalidInput)
	case commitment.IsZero():
		return 0, nil, fmt.Errorf("%w: commitment can't be empty", ErrInvalidInput)
	}

	now := e.unix()
	freeBetTime, err := penalty.AddInt64Checked(now, freeBetSeconds, "free bet time")
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	expirationTime, err := penalty.AddInt64Checked(freeBetTime, expirationSeconds, "expiration time")
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	g := &storage.Game{
		Player1:        creator,
		Player2:        opponent,
		Bet:            bet,
		Status:         storage.GameStatusCreated,
		CreatedAt:      now,
		FreeBetTime:    freeBetTime,
		ExpirationTime: expirationTime,
		Commitment1:    commitment,
	}

	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		id, err := tx.InsertGame(ctx, g)
		if err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: id, Status: g.Status}); err != nil {
			return err
		}
		meta := &storage.GameMetadata{
			Bet:            bet,
			Player1:        creator,
			Player2:        opponent,
			FreeBetTime:    freeBetTime,
			ExpirationTime: expirationTime,
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameMetadata, GameID: id, Metadata: meta}); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventCommitment, GameID: id, Account: creator, Commitment: commitment}); err != nil {
			return err
		}
		if err := ledger.Lock(ctx, tx, creator, bet, id); err != nil {
			return err
		}
		return ledger.EmitLockedChanged(ctx, tx, creator, id)
	})
	if err != nil {
		logger.Error(creator, "game_created", err)
		return 0, nil, err
	}

	e.metrics.GamesCreated.Inc(1)
	logger.Debug(creator, "game_created", fmt.Sprintf("game_id=%d opponent=%d bet=%d free_bet_time=%d expiration_time=%d",
		g.ID, opponent, bet, freeBetTime, expirationTime))
	if e.notifier != nil {
		e.notifier.ChallengeReceived(g)
	}
	return g.ID, events, nil
}

// ChallengeAccept locks the opponent's stake and moves the game to BET
func (e *GameEngine) ChallengeAccept(ctx context.Context, gameID, acceptor int64, commitment hand.Commitment) ([]storage.Event, error) {
	if commitment.IsZero() {
		return nil, fmt.Errorf("%w: commitment can't be empty", ErrInvalidInput)
	}

	var g *storage.Game
	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = e.loadGame(ctx, tx, gameID); err != nil {
			return err
		}
		if g.Status != storage.GameStatusCreated {
			return fmt.Errorf("%w: game #%d is %s, expected CREATED", ErrInvalidState, g.ID, g.Status)
		}
		if acceptor != g.Player2 {
			return fmt.Errorf("%w: only player2 can accept game #%d", ErrUnauthorized, g.ID)
		}

		g.Commitment2 = commitment
		g.AcceptanceTime = e.unix()
		g.Status = storage.GameStatusBet
		if err := tx.UpdateGame(ctx, g); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: g.ID, Status: g.Status}); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventCommitment, GameID: g.ID, Account: acceptor, Commitment: commitment}); err != nil {
			return err
		}
		if err := ledger.Lock(ctx, tx, acceptor, g.Bet, g.ID); err != nil {
			return err
		}
		return ledger.EmitLockedChanged(ctx, tx, acceptor, g.ID)
	})
	if err != nil {
		logger.Error(acceptor, "challenge_accepted", err)
		return nil, err
	}

	e.metrics.GamesAccepted.Inc(1)
	logger.Debug(acceptor, "challenge_accepted", fmt.Sprintf("game_id=%d acceptance_time=%d", g.ID, g.AcceptanceTime))
	if e.notifier != nil {
		e.notifier.ChallengeAccepted(g)
	}
	return events, nil
}

// ShowHand reveals the revealer's hand. A secret that does not reproduce the
// stored commitment leaves the game untouched, so the call can be retried.
// The second reveal resolves the verdict and closes the game; a drawn pot is
// settled right away, a won game waits for GameAward.
func (e *GameEngine) ShowHand(ctx context.Context, gameID, revealer int64, secret []byte) ([]storage.Event, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret can't be empty", ErrInvalidInput)
	}

	var (
		g        *storage.Game
		mismatch bool
	)
	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = e.loadGame(ctx, tx, gameID); err != nil {
			return err
		}
		if !g.Status.Revealing() {
			return fmt.Errorf("%w: game #%d is %s, hands can't be shown", ErrInvalidState, g.ID, g.Status)
		}
		if !g.IsParticipant(revealer) {
			return fmt.Errorf("%w: account %d doesn't play game #%d", ErrUnauthorized, revealer, g.ID)
		}
		if g.HandOf(revealer) != hand.None {
			return fmt.Errorf("%w: account %d already showed a hand in game #%d", ErrInvalidState, revealer, g.ID)
		}

		shown, err := hand.Open(g.CommitmentOf(revealer), secret, revealer, e.arenaID)
		if err != nil {
			mismatch = errors.Is(err, ErrRevealMismatch)
			return fmt.Errorf("game #%d: %w", g.ID, err)
		}

		if revealer == g.Player1 {
			g.Hand1 = shown
		} else {
			g.Hand2 = shown
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventHandShown, GameID: g.ID, Account: revealer, Hand: shown}); err != nil {
			return err
		}

		if g.HandOf(g.Opponent(revealer)) == hand.None {
			g.Status = storage.GameStatusWaitingP2
			if revealer == g.Player2 {
				g.Status = storage.GameStatusWaitingP1
			}
			if err := tx.UpdateGame(ctx, g); err != nil {
				return err
			}
			return tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: g.ID, Status: g.Status})
		}

		g.Winner = hand.Resolve(g.Hand1, g.Hand2)
		g.Status = storage.GameStatusClosed
		if err := tx.UpdateGame(ctx, g); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventVerdict, GameID: g.ID, Winner: g.Winner}); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: g.ID, Status: g.Status}); err != nil {
			return err
		}
		if g.Winner == hand.Pair {
			return settlePair(ctx, tx, g)
		}
		return nil
	})
	if err != nil {
		if mismatch {
			e.metrics.RevealMismatch.Inc(1)
		}
		logger.Error(revealer, "hand_shown", err)
		return nil, err
	}

	e.metrics.HandsRevealed.Inc(1)
	logger.Debug(revealer, "hand_shown", fmt.Sprintf("game_id=%d status=%s", g.ID, g.Status))
	if g.Status == storage.GameStatusClosed {
		e.metrics.GamesClosed.Inc(1)
		e.remember(g)
		logger.Debug(revealer, "game_closed", fmt.Sprintf("game_id=%d hand1=%s hand2=%s winner=%s", g.ID, g.Hand1, g.Hand2, g.Winner))
	}
	if e.notifier != nil {
		if g.Status == storage.GameStatusClosed {
			e.notifier.GameClosed(g)
		} else {
			e.notifier.HandRevealed(g, revealer)
		}
	}
	return events, nil
}

// settlePair splits the pot of a drawn game. Each share is paid from the
// receiver's own stake first.
func settlePair(ctx context.Context, tx *storage.Tx, g *storage.Game) error {
	toPlayer1, _ := penalty.SplitPot(2 * g.Bet)
	fromOwn1 := min(toPlayer1, g.Bet)
	fromOther := toPlayer1 - fromOwn1

	if err := ledger.Release(ctx, tx, g.Player1, fromOwn1, g.Player1, g.ID); err != nil {
		return err
	}
	if err := ledger.Release(ctx, tx, g.Player1, g.Bet-fromOwn1, g.Player2, g.ID); err != nil {
		return err
	}
	if err := ledger.Release(ctx, tx, g.Player2, fromOther, g.Player1, g.ID); err != nil {
		return err
	}
	if err := ledger.Release(ctx, tx, g.Player2, g.Bet-fromOther, g.Player2, g.ID); err != nil {
		return err
	}
	if err := ledger.EmitLockedChanged(ctx, tx, g.Player1, g.ID); err != nil {
		return err
	}
	return ledger.EmitLockedChanged(ctx, tx, g.Player2, g.ID)
}

// GameAward pays out a closed game that has a winner and stops it. The loser
// forfeits bet minus the late-acceptance penalty to the winner and keeps the
// penalty. The penalty is charged whoever wins.
func (e *GameEngine) GameAward(ctx context.Context, gameID, caller int64) ([]storage.Event, error) {
	var (
		g      *storage.Game
		winner int64
		p      int64
	)
	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = e.loadGame(ctx, tx, gameID); err != nil {
			return err
		}
		if g.Status != storage.GameStatusClosed {
			return fmt.Errorf("%w: game #%d is %s, expected CLOSED", ErrInvalidState, g.ID, g.Status)
		}
		if !g.Winner.HasWinner() {
			return fmt.Errorf("%w: game #%d has verdict %s, nothing to award", ErrInvalidState, g.ID, g.Winner)
		}
		if !g.IsParticipant(caller) {
			return fmt.Errorf("%w: account %d doesn't play game #%d", ErrUnauthorized, caller, g.ID)
		}

		p, err = penalty.Calculate(g.AcceptanceTime, g.Window(), g.Bet, e.penaltyRatio)
		if err != nil {
			return err
		}
		winner, loser := g.Player1, g.Player2
		if g.Winner == hand.Player2 {
			winner, loser = g.Player2, g.Player1
		}

		if err := ledger.Release(ctx, tx, winner, g.Bet, winner, g.ID); err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx, loser, g.Bet-p, winner, g.ID); err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx, loser, p, loser, g.ID); err != nil {
			return err
		}

		g.Status = storage.GameStatusStopped
		if err := tx.UpdateGame(ctx, g); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventAward, GameID: g.ID, Account: winner, Amount: g.Bet, Penalty: p}); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: g.ID, Status: g.Status}); err != nil {
			return err
		}
		if err := ledger.EmitLockedChanged(ctx, tx, g.Player1, g.ID); err != nil {
			return err
		}
		return ledger.EmitLockedChanged(ctx, tx, g.Player2, g.ID)
	})
	if err != nil {
		logger.Error(caller, "game_awarded", err)
		return nil, err
	}

	e.metrics.GamesAwarded.Inc(1)
	e.metrics.AwardPenalty.Update(p)
	e.remember(g)
	logger.Debug(caller, "game_awarded", fmt.Sprintf("game_id=%d winner=%d bet=%d penalty=%d", g.ID, winner, g.Bet, p))
	if e.notifier != nil {
		e.notifier.GameAwarded(g, winner, p)
	}
	return events, nil
}

// StopGame returns every locked stake of an expired, unresolved game to its owner
func (e *GameEngine) StopGame(ctx context.Context, gameID, caller int64) ([]storage.Event, error) {
	var g *storage.Game
	events, err := e.execute(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = e.loadGame(ctx, tx, gameID); err != nil {
			return err
		}
		if g.Status.Terminal() {
			return fmt.Errorf("%w: game #%d is already %s", ErrInvalidState, g.ID, g.Status)
		}
		if !g.Expired(e.unix()) {
			return fmt.Errorf("%w: game #%d doesn't expire until %d", ErrInvalidState, g.ID, g.ExpirationTime)
		}
		if !g.IsParticipant(caller) {
			return fmt.Errorf("%w: account %d doesn't play game #%d", ErrUnauthorized, caller, g.ID)
		}

		staked := []int64{g.Player1}
		if g.Status != storage.GameStatusCreated {
			staked = append(staked, g.Player2)
		}

		g.Status = storage.GameStatusStopped
		if err := tx.UpdateGame(ctx, g); err != nil {
			return err
		}
		if err := tx.Emit(ctx, storage.Event{Kind: storage.EventGameStatus, GameID: g.ID, Status: g.Status}); err != nil {
			return err
		}
		for _, account := range staked {
			if err := ledger.Release(ctx, tx, account, g.Bet, account, g.ID); err != nil {
				return err
			}
			if err := ledger.EmitLockedChanged(ctx, tx, account, g.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error(caller, "game_stopped", err)
		return nil, err
	}

	e.metrics.GamesStopped.Inc(1)
	e.remember(g)
	logger.Debug(caller, "game_stopped", fmt.Sprintf("game_id=%d", g.ID))
	if e.notifier != nil {
		e.notifier.GameStopped(g)
	}
	return events, nil
}

// AnnounceExpired notifies the players of every expired open game once.
// Games are never stopped here; a participant has to call StopGame.
func (e *GameEngine) AnnounceExpired(ctx context.Context) (int, error) {
	games, err := e.store.ListExpiredOpenGames(ctx, e.unix())
	if err != nil {
		return 0, err
	}

	for _, g := range games {
		if err := e.store.MarkExpiryNotified(ctx, g.ID); err != nil {
			return 0, err
		}
		if e.notifier != nil {
			e.notifier.GameExpired(g)
		}
	}
	return len(games), nil
}

// loadGame reads a game inside tx. Settled games come from the cache.
func (e *GameEngine) loadGame(ctx context.Context, tx *storage.Tx, gameID int64) (*storage.Game, error) {
	if gameID <= 0 {
		return nil, fmt.Errorf("%w: invalid game id %d", ErrInvalidInput, gameID)
	}
	if g, ok := e.final.Get(gameID); ok {
		return &g, nil
	}
	g, err := tx.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: #%d", ErrGameNotFound, gameID)
	}
	return g, nil
}

// remember caches a game once nothing can change it any more
func (e *GameEngine) remember(g *storage.Game) {
	if g.Status == storage.GameStatusStopped || (g.Status == storage.GameStatusClosed && g.Winner == hand.Pair) {
		e.final.Add(g.ID, *g)
	}
}

// GetGame returns a game by ID
func (e *GameEngine) GetGame(ctx context.Context, gameID int64) (*storage.Game, error) {
	if gameID <= 0 {
		return nil, fmt.Errorf("%w: invalid game id %d", ErrInvalidInput, gameID)
	}
	if g, ok := e.final.Get(gameID); ok {
		return &g, nil
	}
	g, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: #%d", ErrGameNotFound, gameID)
	}
	e.remember(g)
	return g, nil
}

// ListGames returns the games of an account, most recent first
func (e *GameEngine) ListGames(ctx context.Context, account int64, limit int) ([]*storage.Game, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return e.store.ListGamesByAccount(ctx, account, limit)
}

// ListEvents returns the audit trail of a game in emission order
func (e *GameEngine) ListEvents(ctx context.Context, gameID int64) ([]storage.Event, error) {
	if _, err := e.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return e.store.ListEvents(ctx, gameID)
}

// ListTransactions returns the balance journal of an account, newest first
func (e *GameEngine) ListTransactions(ctx context.Context, account int64, limit int) ([]storage.Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return e.store.ListTransactions(ctx, account, limit)
}

// BalanceOf returns the available and locked balances of account
func (e *GameEngine) BalanceOf(ctx context.Context, account int64) (available, locked int64, err error) {
	return ledger.BalanceOf(ctx, e.store, account)
}

// Account returns the stored account, nil if it was never created
func (e *GameEngine) Account(ctx context.Context, account int64) (*storage.Account, error) {
	return e.store.GetAccount(ctx, account)
}

// ListAccounts returns every account
func (e *GameEngine) ListAccounts(ctx context.Context) ([]*storage.Account, error) {
	return e.store.ListAccounts(ctx)
}
