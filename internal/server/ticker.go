package server

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickerService adapts a per-tick function into a Service driven by a
// fixed-interval wall clock. It is used to run the physics step and the
// tray engine poll from a single goroutine.
type TickerService struct {
	logger   *zap.Logger
	interval time.Duration
	tick     func(now time.Time)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewTickerService creates a TickerService invoking tick every interval.
//
// Precondition: interval must be positive; tick and logger must be non-nil.
func NewTickerService(interval time.Duration, tick func(now time.Time), logger *zap.Logger) *TickerService {
	return &TickerService{
		logger:   logger,
		interval: interval,
		tick:     tick,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop. It blocks until Stop is called.
//
// Postcondition: the tick function is never invoked after Start returns.
func (t *TickerService) Start() error {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("tick loop started", zap.Duration("interval", t.interval))
	for {
		select {
		case <-t.stop:
			t.logger.Info("tick loop stopped")
			return nil
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

// Stop terminates the tick loop and waits for the in-flight tick to finish.
// Safe to call more than once.
func (t *TickerService) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}
