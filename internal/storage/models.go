package storage

import (
	"fmt"
	"time"

	"rpsledger/internal/hand"
	"rpsledger/internal/penalty"
)

// Account holds a participant's funds. ID is the participant's Telegram user ID;
// zero is the null identifier and never stored.
type Account struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	FirstName string    `json:"first_name" db:"first_name"`
	Available int64     `json:"available" db:"available"`
	Locked    int64     `json:"locked" db:"locked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Total is everything the account owns, spendable or not
func (a *Account) Total() int64 {
	return a.Available + a.Locked
}

// TransactionSource classifies a journal row
type TransactionSource string

const (
	SourceDeposit          TransactionSource = "DEPOSIT"
	SourceWithdraw         TransactionSource = "WITHDRAW"
	SourceWithdrawRollback TransactionSource = "WITHDRAW_ROLLBACK"
	SourceLock             TransactionSource = "LOCK"
	SourceRelease          TransactionSource = "RELEASE"
)

// Transaction is one balance movement in the journal
type Transaction struct {
	ID          int64             `json:"id" db:"id"`
	AccountID   int64             `json:"account_id" db:"account_id"`
	Amount      int64             `json:"amount" db:"amount"` // signed change of available
	SourceType  TransactionSource `json:"source_type" db:"source_type"`
	GameID      int64             `json:"game_id,omitempty" db:"game_id"`
	Description string            `json:"description" db:"description"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// GameStatus is the state of a game. Values match the original contract's enum.
type GameStatus uint8

const (
	GameStatusNull      GameStatus = 0
	GameStatusCreated   GameStatus = 1
	GameStatusBet       GameStatus = 2
	GameStatusWaitingP1 GameStatus = 3
	GameStatusWaitingP2 GameStatus = 4
	GameStatusClosed    GameStatus = 5
	GameStatusStopped   GameStatus = 6
)

func (s GameStatus) String() string {
	switch s {
	case GameStatusCreated:
		return "CREATED"
	case GameStatusBet:
		return "BET"
	case GameStatusWaitingP1:
		return "WAITING_P1"
	case GameStatusWaitingP2:
		return "WAITING_P2"
	case GameStatusClosed:
		return "CLOSED"
	case GameStatusStopped:
		return "STOPPED"
	default:
		return "NULL"
	}
}

// MarshalText renders the status by name in JSON
func (s GameStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name
func (s *GameStatus) UnmarshalText(text []byte) error {
	for candidate := GameStatusNull; candidate <= GameStatusStopped; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown game status %q", text)
}

// Revealing reports whether hands may still be shown
func (s GameStatus) Revealing() bool {
	return s == GameStatusBet || s == GameStatusWaitingP1 || s == GameStatusWaitingP2
}

// Terminal reports whether no further transition can leave s
func (s GameStatus) Terminal() bool {
	return s == GameStatusClosed || s == GameStatusStopped
}

// Game is one best-of-one match. Times are unix seconds.
type Game struct {
	ID             int64           `json:"id"`
	Player1        int64           `json:"player1"`
	Player2        int64           `json:"player2"`
	Bet            int64           `json:"bet"`
	Status         GameStatus      `json:"status"`
	CreatedAt      int64           `json:"created_at"`
	FreeBetTime    int64           `json:"free_bet_time"`
	ExpirationTime int64           `json:"expiration_time"`
	AcceptanceTime int64           `json:"acceptance_time,omitempty"`
	Commitment1    hand.Commitment `json:"commitment1"`
	Commitment2    hand.Commitment `json:"commitment2"`
	Hand1          hand.Hand       `json:"hand1"`
	Hand2          hand.Hand       `json:"hand2"`
	Winner         hand.Verdict    `json:"winner"`
	ExpiryNotified bool            `json:"-"`
}

// IsParticipant reports whether account plays in g
func (g *Game) IsParticipant(account int64) bool {
	return account != 0 && (account == g.Player1 || account == g.Player2)
}

// Window is the free-bet/expiration pair used by the penalty arithmetic
func (g *Game) Window() penalty.Window {
	return penalty.Window{FreeBetTime: g.FreeBetTime, ExpirationTime: g.ExpirationTime}
}

// Expired reports whether now is strictly past the expiration time
func (g *Game) Expired(now int64) bool {
	return now > g.ExpirationTime
}

// HandOf returns the revealed hand of a participant
func (g *Game) HandOf(account int64) hand.Hand {
	switch account {
	case g.Player1:
		return g.Hand1
	case g.Player2:
		return g.Hand2
	}
	return hand.None
}

// CommitmentOf returns the commitment a participant published
func (g *Game) CommitmentOf(account int64) hand.Commitment {
	switch account {
	case g.Player1:
		return g.Commitment1
	case g.Player2:
		return g.Commitment2
	}
	return hand.Commitment{}
}

// Opponent returns the other participant
func (g *Game) Opponent(account int64) int64 {
	if account == g.Player1 {
		return g.Player2
	}
	return g.Player1
}

// EventKind names an audit record
type EventKind string

const (
	EventDeposit       EventKind = "DEPOSIT"
	EventWithdraw      EventKind = "WITHDRAW"
	EventGameStatus    EventKind = "GAME_STATUS"
	EventGameMetadata  EventKind = "GAME_METADATA"
	EventCommitment    EventKind = "COMMITMENT"
	EventHandShown     EventKind = "HAND_SHOWN"
	EventVerdict       EventKind = "VERDICT"
	EventAward         EventKind = "AWARD"
	EventLockedChanged EventKind = "LOCKED_CHANGED"
)

// GameMetadata is the payload of a GAME_METADATA event
type GameMetadata struct {
	Bet            int64 `json:"bet"`
	Player1        int64 `json:"player1"`
	Player2        int64 `json:"player2"`
	FreeBetTime    int64 `json:"free_bet_time"`
	ExpirationTime int64 `json:"expiration_time"`
}

// Event is an append-only audit record. Only the fields relevant to Kind are set.
type Event struct {
	ID         int64           `json:"id"`
	Kind       EventKind       `json:"kind"`
	GameID     int64           `json:"game_id,omitempty"`
	Account    int64           `json:"account,omitempty"`
	Amount     int64           `json:"amount,omitempty"`
	Penalty    int64           `json:"penalty,omitempty"`
	Status     GameStatus      `json:"status,omitempty"`
	Hand       hand.Hand       `json:"hand,omitempty"`
	Winner     hand.Verdict    `json:"winner,omitempty"`
	Commitment hand.Commitment `json:"commitment,omitempty"`
	Metadata   *GameMetadata   `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
