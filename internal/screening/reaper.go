package screening

import (
	"context"
	"sync"
	"time"

	"github.com/hr-voice-lab/internal/logging"
)

// StartReaper starts a background goroutine that periodically evicts
// concluded sessions and sessions idle longer than ttl. Caller must call
// wg.Add(1) before calling this function; the goroutine will call wg.Done()
// on exit.
func StartReaper(ctx context.Context, wg *sync.WaitGroup, store SessionStore, ttl, interval time.Duration) {
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				reap(store, now, ttl)
			}
		}
	}()
}

func reap(store SessionStore, now time.Time, ttl time.Duration) []string {
	evicted := store.Sweep(now.Add(-ttl))
	if len(evicted) > 0 {
		logging.Debugw("screening: reaped sessions", "count", len(evicted), "remaining", store.Len())
	}
	return evicted
}
