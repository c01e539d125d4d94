package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer is implemented by backends that have no native record expiry.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunReaper purges expired claims every interval until ctx is cancelled.
// Lookups already ignore expired rows; this only bounds table growth.
func RunReaper(ctx context.Context, e Expirer, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.DeleteExpired(ctx, time.Now())
			if err != nil {
				log.Warn().Err(err).Msg("purge expired dedup claims")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired dedup claims")
			}
		}
	}
}
