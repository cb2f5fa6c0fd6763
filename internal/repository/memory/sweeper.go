package memory

import (
	"context"
	"time"

	"github.com/dtroode/authkeeper-server/internal/logger"
)

// Expirer deletes entries that expired at or before now.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically drops expired ephemeral rows. Lookups already ignore
// expired rows, so a missed sweep only costs memory.
type Sweeper struct {
	targets  map[string]Expirer
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewSweeper(interval time.Duration, logger *logger.Logger, targets map[string]Expirer) *Sweeper {
	return &Sweeper{targets: targets, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all targets. Failures are logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	for name, target := range s.targets {
		n, err := target.DeleteExpired(ctx, now)
		if err != nil {
			s.logger.Warn("Sweeper: failed to delete expired rows",
				"target", name,
				"error", err.Error())
			continue
		}
		if n > 0 {
			s.logger.Debug("Sweeper: deleted expired rows",
				"target", name,
				"count", n)
		}
	}
}
