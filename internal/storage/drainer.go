package storage

import (
	"context"
	"sync"
	"time"
)

// StartDrainer retries the backlogs every interval so that queued items are
// delivered even when nothing new is submitted. It stops when ctx is done.
func (s *Store) StartDrainer(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Drain(); err != nil {
					s.logger.Debugw("backlog drain incomplete", "error", err)
				}
			case <-ctx.Done():
				s.logger.Info("stopping backlog drainer")
				return
			}
		}
	}()
}
