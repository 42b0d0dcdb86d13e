package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes challenges that can no longer be used.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepChallenges runs one purge pass.
func SweepChallenges(ctx context.Context, p Purger, now time.Time, log *zap.Logger) (int64, error) {
	n, err := p.PurgeExpired(ctx, now)
	if err != nil {
		log.Error("janitor: purge failed", zap.Error(err))
		return n, err
	}
	if n > 0 {
		log.Info("janitor: purged reset challenges", zap.Int64("count", n))
	} else {
		log.Debug("janitor: nothing to purge")
	}
	return n, nil
}

// StartChallengeJanitor sweeps on every tick until ctx is cancelled. The
// returned channel is closed when the goroutine exits.
func StartChallengeJanitor(ctx context.Context, p Purger, interval time.Duration, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				_, _ = SweepChallenges(ctx, p, now, log)
			}
		}
	}()
	return done
}
