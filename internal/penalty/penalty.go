// Package penalty holds the settlement arithmetic for a finished game: the
// time-weighted forfeiture charged for a late challenge acceptance and the
// split of a drawn pot.
package penalty

import (
	"errors"
	"fmt"
)

// DefaultRatio halves the per-second weight
const DefaultRatio int64 = 2

var ErrInvalidWindow = errors.New("invalid penalty window")

// Window is the grace period of a game in unix seconds
type Window struct {
	FreeBetTime    int64
	ExpirationTime int64
}

// Span is the length of the window in seconds
func (w Window) Span() int64 {
	return w.ExpirationTime - w.FreeBetTime
}

// Weight is the amount forfeited per second of delay:
// floor(floor(bet / span) / ratio)
func (w Window) Weight(bet, ratio int64) (int64, error) {
	if w.Span() <= 0 {
		return 0, fmt.Errorf("%w: expiration %d must be after free bet time %d", ErrInvalidWindow, w.ExpirationTime, w.FreeBetTime)
	}
	if ratio < 1 {
		return 0, fmt.Errorf("%w: ratio must be at least 1, got %d", ErrInvalidWindow, ratio)
	}
	if bet < 0 {
		return 0, fmt.Errorf("%w: negative bet %d", ErrInvalidWindow, bet)
	}
	return (bet / w.Span()) / ratio, nil
}

// Calculate returns the penalty for a challenge accepted at acceptanceTime.
// Acceptance inside the free-bet window costs nothing; after it the penalty grows
// linearly with the delay and saturates at the full span once the game has expired.
// The result never exceeds bet.
func Calculate(acceptanceTime int64, w Window, bet, ratio int64) (int64, error) {
	weight, err := w.Weight(bet, ratio)
	if err != nil {
		return 0, err
	}

	var delay int64
	switch {
	case acceptanceTime <= w.FreeBetTime:
		return 0, nil
	case acceptanceTime <= w.ExpirationTime:
		delay = acceptanceTime - w.FreeBetTime
	default:
		delay = w.Span()
	}

	p, err := mulInt64Checked(delay, weight, "penalty")
	if err != nil {
		return 0, err
	}
	if p > bet {
		p = bet
	}
	return p, nil
}

// SplitPot divides a drawn pot between the two players. Player2 receives the
// floor of half the pot, player1 receives the rest, so an odd remainder always
// goes to player1.
func SplitPot(pot int64) (toPlayer1, toPlayer2 int64) {
	toPlayer2 = pot / 2
	toPlayer1 = pot - toPlayer2
	return toPlayer1, toPlayer2
}

func mulInt64Checked(a, b int64, field string) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%s operands must be non-negative", field)
	}
	if a > (1<<63-1)/b {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return a * b, nil
}

// AddInt64Checked adds two non-negative values, failing instead of wrapping
func AddInt64Checked(a, b int64, field string) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%s operands must be non-negative", field)
	}
	if a > (1<<63-1)-b {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return a + b, nil
}
