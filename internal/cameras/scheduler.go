package cameras

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartAutoRefresh runs Refresh(silent=true) every interval until Stop.
// The first tick fires one interval after start; callers do their own initial load.
func (s *Store) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	s.mu.Lock()
	if s.quit != nil {
		s.mu.Unlock()
		return
	}
	s.quit = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	quit := s.quit
	s.mu.Unlock()

	s.wg.Add(1)
	go s.refreshLoop(ctx, quit, interval)
}

// Stop ends the auto-refresh loop and cancels an in-flight refresh.
func (s *Store) Stop() {
	s.mu.Lock()
	quit, cancel := s.quit, s.cancel
	s.quit, s.cancel = nil, nil
	s.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	cancel()
	s.wg.Wait()
}

func (s *Store) refreshLoop(ctx context.Context, quit <-chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// errors are recorded in LastError and logged by Refresh
			if err := s.Refresh(ctx, true); err != nil && ctx.Err() == nil {
				s.log.Debug("scheduled refresh failed", zap.Error(err))
			}
		case <-quit:
			return
		}
	}
}
