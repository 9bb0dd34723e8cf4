package authorstate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ninjabot/ninjaguard/automod/clock"
)

var authorsEvicted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_authors_evicted",
	Help: "Number of idle author states dropped by the eviction sweeper",
})

var authorsTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_authors_tracked",
	Help: "Number of authors with in-memory moderation state, as of the last sweep",
})

// Evicts every author idle for longer than ttl as of now. Returns the evicted author IDs.
//
// Eviction is silent memory reclamation: nothing is reported and no side effects are triggered.
func SweepOnce(store *Store, now time.Time, ttl time.Duration) []string {
	var evicted []string
	for _, ent := range store.Snapshot() {
		if now.Sub(ent.LastSeenAt) <= ttl {
			continue
		}
		if store.EvictIfIdle(ent.ID, now, ttl) {
			evicted = append(evicted, ent.ID)
		}
	}
	authorsEvicted.Add(float64(len(evicted)))
	authorsTracked.Set(float64(store.Len()))
	return evicted
}

// Periodically evicts idle authors until ctx is cancelled.
//
// Expects to be run in a goroutine. Returns nil on cancellation.
func RunEvictionSweeper(ctx context.Context, store *Store, interval, ttl time.Duration, clk clock.Clock, logger *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive: %s", interval)
	}
	if ttl <= 0 {
		return fmt.Errorf("idle TTL must be positive: %s", ttl)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper")
	logger.Info("starting eviction sweeper", "interval", interval, "ttl", ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			evicted := SweepOnce(store, clk.Now(), ttl)
			if len(evicted) > 0 {
				logger.Debug("evicted idle authors", "count", len(evicted), "remaining", store.Len())
			}
		case <-ctx.Done():
			logger.Info("eviction sweeper stopped")
			return nil
		}
	}
}
