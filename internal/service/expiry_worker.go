package service

import (
	"context"
	"fmt"
	"time"

	"rpsledger/internal/logger"
)

// DefaultExpiryScanInterval is how often expired games are looked for
const DefaultExpiryScanInterval = time.Minute

// ExpiryWorker reminds players of expired games that still hold their stakes
type ExpiryWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	ticker   *time.Ticker
	interval time.Duration
	engine   *GameEngine
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(engine *GameEngine, interval time.Duration) *ExpiryWorker {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = DefaultExpiryScanInterval
	}

	return &ExpiryWorker{
		ctx:      ctx,
		cancel:   cancel,
		ticker:   time.NewTicker(interval),
		interval: interval,
		engine:   engine,
	}
}

// Start begins the background worker
func (w *ExpiryWorker) Start() {
	logger.Debug(0, "expiry_worker_started", fmt.Sprintf("interval=%v", w.interval))

	// Run immediately on start
	w.scan()

	// Then run on ticker
	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.scan()
			case <-w.ctx.Done():
				logger.Debug(0, "expiry_worker_stopped", "")
				return
			}
		}
	}()
}

// Stop stops the background worker
func (w *ExpiryWorker) Stop() {
	w.ticker.Stop()
	w.cancel()
}

func (w *ExpiryWorker) scan() {
	count, err := w.engine.AnnounceExpired(w.ctx)
	if err != nil {
		logger.Debug(0, "expiry_worker_scan_failed", fmt.Sprintf("error=%s", err.Error()))
		return
	}
	if count > 0 {
		logger.Debug(0, "expiry_worker_announced", fmt.Sprintf("count=%d", count))
	}
}
