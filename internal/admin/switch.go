// Package admin holds the global pause switch of the arena
package admin

import (
	"errors"
	"fmt"
	"sync"

	"rpsledger/internal/logger"
)

var ErrUnauthorized = errors.New("unauthorized")

// Gate tells the engine whether mutating operations are allowed
type Gate interface {
	Paused() bool
}

// Switch is a Gate that only its owner can flip
type Switch struct {
	mu     sync.RWMutex
	owner  int64
	paused bool
}

// NewSwitch creates a switch owned by owner. running=false starts it paused.
func NewSwitch(owner int64, running bool) *Switch {
	return &Switch{owner: owner, paused: !running}
}

// Paused reports whether the arena is paused
func (s *Switch) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Owner returns the account allowed to flip the switch
func (s *Switch) Owner() int64 {
	return s.owner
}

// IsOwner reports whether caller owns the switch. A zero owner matches nobody.
func (s *Switch) IsOwner(caller int64) bool {
	return s.owner != 0 && caller == s.owner
}

// Pause stops all mutating operations
func (s *Switch) Pause(caller int64) error {
	return s.set(caller, true)
}

// Resume allows mutating operations again
func (s *Switch) Resume(caller int64) error {
	return s.set(caller, false)
}

func (s *Switch) set(caller int64, paused bool) error {
	if !s.IsOwner(caller) {
		return fmt.Errorf("%w: account %d is not the owner", ErrUnauthorized, caller)
	}
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()

	logger.Debug(caller, "admin_switch", fmt.Sprintf("paused=%t", paused))
	return nil
}
