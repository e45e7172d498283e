package services

import (
	"context"
	"sync"
	"time"

	"github.com/ramble-labs/lectern/internal/core/ports/driving"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Sweeper periodically removes idle sessions from the session store.
// Sweeping is wall-clock based and independent of the store's LRU order.
type Sweeper struct {
	sessions driving.SessionManager
	interval time.Duration
	maxAge   time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper that removes sessions idle for longer than
// maxAge, checking every interval.
func NewSweeper(sessions driving.SessionManager, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start begins the sweep loop in a background goroutine.
// Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop shuts the sweep loop down and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.sessions.SweepIdle(s.maxAge); n > 0 {
				logger.Debug("Swept %d idle sessions", n)
			}
		}
	}
}
