package hand

import (
	"fmt"
	"strings"
)

// Hand is a move in a rock/paper/scissor game.
// The numeric values are part of the commitment encoding and must not change.
type Hand uint8

const (
	None    Hand = 0
	Rock    Hand = 1
	Paper   Hand = 2
	Scissor Hand = 3
)

// Playable lists the hands a player may commit to, in the order Open tries them.
var Playable = []Hand{Rock, Paper, Scissor}

// Valid reports whether h is one of the three playable hands
func (h Hand) Valid() bool {
	return h == Rock || h == Paper || h == Scissor
}

func (h Hand) String() string {
	switch h {
	case Rock:
		return "ROCK"
	case Paper:
		return "PAPER"
	case Scissor:
		return "SCISSOR"
	default:
		return "NULL"
	}
}

// beats reports whether h wins against other. Both must be playable.
func (h Hand) beats(other Hand) bool {
	switch h {
	case Rock:
		return other == Scissor
	case Scissor:
		return other == Paper
	case Paper:
		return other == Rock
	}
	return false
}

// ParseHand accepts the hand name (case-insensitive, "scissors" tolerated) or its numeric value
func ParseHand(s string) (Hand, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ROCK", "R", "1":
		return Rock, nil
	case "PAPER", "P", "2":
		return Paper, nil
	case "SCISSOR", "SCISSORS", "S", "3":
		return Scissor, nil
	}
	return None, fmt.Errorf("%w: unknown hand %q", ErrInvalidInput, s)
}

// Verdict is the outcome of comparing two revealed hands
type Verdict uint8

const (
	NoVerdict Verdict = 0
	Player1   Verdict = 1
	Player2   Verdict = 2
	Pair      Verdict = 3
)

func (v Verdict) String() string {
	switch v {
	case Player1:
		return "PLAYER1"
	case Player2:
		return "PLAYER2"
	case Pair:
		return "PAIR"
	default:
		return "NULL"
	}
}

// HasWinner reports whether the verdict names a single winning side
func (v Verdict) HasWinner() bool {
	return v == Player1 || v == Player2
}

// Resolve compares the hands of player1 and player2.
// An unrevealed (or otherwise unplayable) hand on either side yields NoVerdict.
func Resolve(h1, h2 Hand) Verdict {
	if !h1.Valid() || !h2.Valid() {
		return NoVerdict
	}
	if h1 == h2 {
		return Pair
	}
	if h1.beats(h2) {
		return Player1
	}
	return Player2
}
