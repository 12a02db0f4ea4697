// Package sweep runs periodic cleanup functions on one scheduler that can be
// stopped deterministically.
package sweep

import (
	"log/slog"
	"sync"
	"time"
)

// Func is a sweep. It returns how many items it removed.
type Func func() int

// Scheduler owns the tickers for every registered sweep.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler returns a running scheduler. logger may be nil.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, stop: make(chan struct{})}
}

// Register runs fn every interval until Close. Non-positive intervals and
// registrations after Close are ignored.
func (s *Scheduler) Register(name string, interval time.Duration, fn Func) {
	if interval <= 0 || fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if n := fn(); n > 0 {
					s.logger.Debug("sweep removed expired items", "sweep", name, "removed", n)
				}
			}
		}
	}()
}

// Close stops every ticker and waits for running sweeps to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}
