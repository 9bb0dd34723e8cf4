// Time-bucketed counters, used for moderation quotas and per-author statistics.
//
// Every increment lands in three buckets: all-time, the current UTC day, and the current UTC hour.
package countstore

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

var AllPeriods = []string{PeriodTotal, PeriodDay, PeriodHour}

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	// Increments the counter in every period bucket.
	Increment(ctx context.Context, name, val string) error
	// Increments the counter in a single period bucket.
	IncrementPeriod(ctx context.Context, name, val, period string) error
}

// Storage key for a counter in the bucket covering t
func bucketKey(name, val, period string, t time.Time) string {
	t = t.UTC()
	parts := []string{name, val}
	switch period {
	case PeriodTotal:
	case PeriodDay:
		parts = append(parts, t.Format(time.DateOnly))
	case PeriodHour:
		parts = append(parts, t.Format("2006-01-02T15"))
	default:
		slog.Warn("unknown counter period, using total", "period", period)
	}
	return strings.Join(parts, "/")
}

// how long a bucket needs to outlive its period, for stores which expire keys
func bucketTTL(period string) time.Duration {
	switch period {
	case PeriodHour:
		return 2 * time.Hour
	case PeriodDay:
		return 48 * time.Hour
	}
	return 0
}
