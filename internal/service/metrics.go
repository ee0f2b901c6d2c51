package service

import (
	"encoding/json"
	"io"

	"github.com/rcrowley/go-metrics"
)

// Metrics groups the engine's counters in their own registry
type Metrics struct {
	registry metrics.Registry

	GamesCreated   metrics.Counter
	GamesAccepted  metrics.Counter
	GamesClosed    metrics.Counter
	GamesStopped   metrics.Counter
	GamesAwarded   metrics.Counter
	HandsRevealed  metrics.Counter
	RevealMismatch metrics.Counter
	WithdrawFailed metrics.Counter
	Deposits       metrics.Meter
	Withdrawals    metrics.Meter
	AwardPenalty   metrics.Histogram
}

// NewMetrics registers every metric in a fresh registry
func NewMetrics() *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		registry:       r,
		GamesCreated:   metrics.GetOrRegisterCounter("games.created", r),
		GamesAccepted:  metrics.GetOrRegisterCounter("games.accepted", r),
		GamesClosed:    metrics.GetOrRegisterCounter("games.closed", r),
		GamesStopped:   metrics.GetOrRegisterCounter("games.stopped", r),
		GamesAwarded:   metrics.GetOrRegisterCounter("games.awarded", r),
		HandsRevealed:  metrics.GetOrRegisterCounter("hands.revealed", r),
		RevealMismatch: metrics.GetOrRegisterCounter("reveal.mismatch", r),
		WithdrawFailed: metrics.GetOrRegisterCounter("withdraw.failed", r),
		Deposits:       metrics.GetOrRegisterMeter("ledger.deposit", r),
		Withdrawals:    metrics.GetOrRegisterMeter("ledger.withdraw", r),
		AwardPenalty:   metrics.GetOrRegisterHistogram("award.penalty", r, metrics.NewExpDecaySample(1028, 0.015)),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() metrics.Registry {
	return m.registry
}

// WriteJSON writes a snapshot of every metric
func (m *Metrics) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(m.registry.GetAll())
}
