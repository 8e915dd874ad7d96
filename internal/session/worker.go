package session

import (
	"context"
	"errors"
	"time"
)

// runWorker drives the session's polling loop. Cancellation is honoured
// only at the sleep boundary: a tick that has started runs to completion so
// its side effects are never half-applied.
func (m *Manager) runWorker(ctx context.Context, s *Session) {
	defer m.wg.Done()

	logger := m.logger.With().Str("session_id", s.ID).Logger()
	logger.Debug().Dur("interval", s.CheckInterval).Msg("session worker started")

	timer := time.NewTimer(s.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("session worker cancelled")
			return
		case <-timer.C:
		}

		// The tick is shielded from stop-cancellation; the loop itself
		// exits on the next select.
		tickCtx := context.WithoutCancel(ctx)
		if _, err := m.Check(tickCtx, s.ID, true); err != nil {
			if errors.Is(err, ErrNotFound) {
				logger.Debug().Msg("session removed, worker exiting")
				return
			}
			// Tick errors are never fatal to the loop.
			logger.Warn().Err(err).Msg("scheduled check failed")
		}

		timer.Reset(s.CheckInterval)
	}
}
