package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPurger deletes expired sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionReaper periodically removes expired sessions so the table does not
// grow without bound. Validation never depends on it.
type SessionReaper struct {
	purger   SessionPurger
	interval time.Duration
	logger   *zap.Logger
}

// NewSessionReaper builds a reaper that sweeps every interval.
func NewSessionReaper(purger SessionPurger, interval time.Duration, logger *zap.Logger) *SessionReaper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionReaper{purger: purger, interval: interval, logger: logger}
}

// Run sweeps until ctx is done.
func (r *SessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one purge and logs the outcome.
func (r *SessionReaper) Sweep(ctx context.Context) {
	removed, err := r.purger.PurgeExpired(ctx)
	if err != nil {
		r.logger.Warn("session purge failed", zap.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("expired sessions purged", zap.Int64("count", removed))
	}
}
