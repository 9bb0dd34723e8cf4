package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ninjabot/ninjaguard/automod/report"
)

// Moderation policy: thresholds, score deltas, windows, and pacing of removals.
//
// Every field is externally supplied; DefaultConfig holds the values the engine was tuned with. The koanf tags are the keys accepted in a policy file.
type Config struct {
	// Abuse score at which an author is removed
	EscalationThreshold float64 `koanf:"escalation_threshold"`
	// Distinct text channels an author needs before duplicate text is penalized
	DuplicateChannelsRequired int `koanf:"duplicate_channels_required"`
	// Distinct channels with attachment-only posts which trigger an immediate removal
	ImageBurstChannelThreshold int `koanf:"image_burst_channel_threshold"`
	// Attachment-only posts allowed in a single channel per ImageBurstWindow
	ImageBurstRateLimit int           `koanf:"image_burst_rate_limit"`
	ImageBurstWindow    time.Duration `koanf:"image_burst_window"`

	IdleTTL         time.Duration `koanf:"idle_ttl"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	ChunkByteBudget int           `koanf:"chunk_byte_budget"`

	ExactDuplicateDelta float64 `koanf:"exact_duplicate_delta"`
	NearDuplicateDelta  float64 `koanf:"near_duplicate_delta"`
	InstantKickDelta    float64 `koanf:"instant_kick_delta"`
	ImageBurstDelta     float64 `koanf:"image_burst_delta"`
	InviteDelta         float64 `koanf:"invite_delta"`

	// Message deletions per second during a removal
	DeleteRate float64 `koanf:"delete_rate"`
	// Deletions in flight at once during a removal
	DeleteConcurrency   int           `koanf:"delete_concurrency"`
	CollaboratorTimeout time.Duration `koanf:"collaborator_timeout"`
	// Member removals allowed per UTC day; zero means no limit
	RemovalQuotaDay int `koanf:"removal_quota_day"`
}

func DefaultConfig() Config {
	return Config{
		EscalationThreshold:        3,
		DuplicateChannelsRequired:  2,
		ImageBurstChannelThreshold: 3,
		ImageBurstRateLimit:        5,
		ImageBurstWindow:           30 * time.Second,
		IdleTTL:                    60 * time.Second,
		SweepInterval:              2 * time.Second,
		ChunkByteBudget:            report.DefaultChunkBudget,
		ExactDuplicateDelta:        1.5,
		NearDuplicateDelta:         1.0,
		InstantKickDelta:           3,
		ImageBurstDelta:            1,
		InviteDelta:                1.5,
		DeleteRate:                 2,
		DeleteConcurrency:          1,
		CollaboratorTimeout:        10 * time.Second,
		RemovalQuotaDay:            0,
	}
}

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid moderation config: %s %s", e.Field, e.Reason)
}

// Validate checks every field and returns all problems found, joined. Each is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, reason string) {
		if !ok {
			errs = append(errs, &ConfigError{Field: field, Reason: reason})
		}
	}
	check(c.EscalationThreshold > 0, "EscalationThreshold", "must be positive")
	check(c.DuplicateChannelsRequired >= 1, "DuplicateChannelsRequired", "must be at least 1")
	check(c.ImageBurstChannelThreshold >= 1, "ImageBurstChannelThreshold", "must be at least 1")
	check(c.ImageBurstRateLimit >= 1, "ImageBurstRateLimit", "must be at least 1")
	check(c.ImageBurstWindow > 0, "ImageBurstWindow", "must be positive")
	check(c.IdleTTL > 0, "IdleTTL", "must be positive")
	check(c.SweepInterval > 0, "SweepInterval", "must be positive")
	check(c.ChunkByteBudget > 0 && c.ChunkByteBudget <= report.HardCap, "ChunkByteBudget", fmt.Sprintf("must be between 1 and %d", report.HardCap))
	check(c.ExactDuplicateDelta >= 0, "ExactDuplicateDelta", "must not be negative")
	check(c.NearDuplicateDelta >= 0, "NearDuplicateDelta", "must not be negative")
	check(c.InstantKickDelta >= 0, "InstantKickDelta", "must not be negative")
	check(c.ImageBurstDelta >= 0, "ImageBurstDelta", "must not be negative")
	check(c.InviteDelta >= 0, "InviteDelta", "must not be negative")
	check(c.DeleteRate > 0, "DeleteRate", "must be positive")
	check(c.DeleteConcurrency >= 1, "DeleteConcurrency", "must be at least 1")
	check(c.CollaboratorTimeout > 0, "CollaboratorTimeout", "must be positive")
	check(c.RemovalQuotaDay >= 0, "RemovalQuotaDay", "must not be negative")
	return errors.Join(errs...)
}
