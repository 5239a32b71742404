package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// resetOffset pushes the nightly reset slightly past midnight so it never
// races a clock still reporting the previous day.
const resetOffset = 30 * time.Second

// Sweeper owns the daily queue lifecycle: a sweep of stale entries at
// startup, then a full reset shortly after each local midnight.
type Sweeper struct {
	svc    *Service
	logger zerolog.Logger
	now    func() time.Time
}

func NewSweeper(svc *Service, logger zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, logger: logger, now: time.Now}
}

// Start blocks until ctx is cancelled. Run it on its own goroutine.
func (w *Sweeper) Start(ctx context.Context) {
	if err := w.svc.SweepStale(ctx); err != nil {
		w.logger.Error().Err(err).Msg("startup queue sweep failed")
	}

	for {
		delay := nextResetDelay(w.now())
		w.logger.Info().Dur("in", delay).Msg("next queue reset scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := w.svc.ClearAll(ctx); err != nil {
			w.logger.Error().Err(err).Msg("midnight queue reset failed")
		} else {
			w.logger.Info().Msg("queues reset for new day")
		}
	}
}

// nextResetDelay returns the duration until the next local midnight plus the
// reset offset.
func nextResetDelay(now time.Time) time.Duration {
	next := localMidnight(now).Add(resetOffset)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
