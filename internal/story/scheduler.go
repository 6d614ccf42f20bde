package story

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher runs one refresh cycle.
type Refresher interface {
	RefreshAllTrackedStories(ctx context.Context) (*RefreshReport, error)
}

// Scheduler triggers a refresh cycle on a fixed interval.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    zerolog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewScheduler(refresher Refresher, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		done:      make(chan struct{}),
	}
}

// Start launches the update loop. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.updateLoop(ctx)
}

// Stop cancels the loop and waits for it to exit. A cycle in flight stops
// between stories.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
	})
}

func (s *Scheduler) updateLoop(ctx context.Context) {
	defer close(s.done)
	s.logger.Info().Dur("interval", s.interval).Msg("Starting refresh loop")

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Debug().Msg("Starting scheduled refresh")
			s.runCycle(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("Refresh loop shutting down")
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.refresher.RefreshAllTrackedStories(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled refresh failed")
	}
}
