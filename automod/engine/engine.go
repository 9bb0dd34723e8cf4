package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ninjabot/ninjaguard/automod/authorstate"
	"github.com/ninjabot/ninjaguard/automod/clock"
	"github.com/ninjabot/ninjaguard/automod/countstore"
	"github.com/ninjabot/ninjaguard/automod/event"
	"github.com/ninjabot/ninjaguard/automod/filters"
	"github.com/ninjabot/ninjaguard/automod/helpers"
	"github.com/ninjabot/ninjaguard/automod/similarity"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("automod")

// Outcome of handling a single message.
type Decision struct {
	// The author crossed the escalation threshold and must be removed
	Escalate bool
	// The message must be deleted right away, regardless of escalation
	ForceDeleteNow bool
	// Warning templates to deliver to the author, in order, without duplicates
	Warnings []string
	// Score after this message
	AbuseScore float64
	// Amount this message added to the score
	Delta float64
	// Names of the heuristics and filters which matched
	Hits []string

	// When Escalate is set: the author's state, already detached from the store. The caller owns it.
	State *authorstate.AuthorState
}

// Options for NewEngine. Platform and Reporter are required.
type Options struct {
	Logger   *slog.Logger
	Store    *authorstate.Store
	Platform Platform
	Reporter Reporter
	// optional
	Warner Warner
	Clock  clock.Clock
	// used for the removal quota and per-author escalation totals (optional)
	Counters countstore.CountStore
	// replaces the default filter set, which is built from Config.InviteDelta
	Filters []filters.Filter
}

// policy is swapped as a unit, so a single event never sees a mix of old and new settings
type policy struct {
	cfg     Config
	filters []filters.Filter
	limiter *rate.Limiter
}

// Moderation decision engine: turns message events into decisions, and carries out the side effects of those decisions.
//
// An Engine is safe for concurrent use. Events for the same author are serialized through the author store; events for different authors run in parallel.
type Engine struct {
	Logger   *slog.Logger
	Store    *authorstate.Store
	Platform Platform
	Reporter Reporter
	Warner   Warner
	Clock    clock.Clock
	Counters countstore.CountStore

	policy        atomic.Pointer[policy]
	customFilters []filters.Filter

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

func NewEngine(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Platform == nil {
		return nil, &ConfigError{Field: "Platform", Reason: "is required"}
	}
	if opts.Reporter == nil {
		return nil, &ConfigError{Field: "Reporter", Reason: "is required"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = authorstate.NewStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	eng := &Engine{
		Logger:        opts.Logger.With("component", "automod"),
		Store:         opts.Store,
		Platform:      opts.Platform,
		Reporter:      opts.Reporter,
		Warner:        opts.Warner,
		Clock:         opts.Clock,
		Counters:      opts.Counters,
		customFilters: opts.Filters,
	}
	eng.policy.Store(eng.buildPolicy(cfg))
	return eng, nil
}

func (eng *Engine) buildPolicy(cfg Config) *policy {
	fs := eng.customFilters
	if fs == nil {
		fs = filters.DefaultFilters(cfg.InviteDelta)
	}
	return &policy{
		cfg:     cfg,
		filters: fs,
		limiter: rate.NewLimiter(rate.Limit(cfg.DeleteRate), 1),
	}
}

// Config currently in effect
func (eng *Engine) Config() Config {
	return eng.policy.Load().cfg
}

// Swaps in a new policy for all subsequent events. An invalid config is rejected and the current one stays in effect.
func (eng *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	eng.policy.Store(eng.buildPolicy(cfg))
	eng.Logger.Info("moderation policy updated", "threshold", cfg.EscalationThreshold, "idle_ttl", cfg.IdleTTL)
	return nil
}

func (eng *Engine) isClosed() bool {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	return eng.closed
}

// registers an in-flight operation, unless shutting down
func (eng *Engine) begin() bool {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	if eng.closed {
		return false
	}
	eng.inflight.Add(1)
	return true
}

// Handle runs the moderation decision for one message and updates the author's state. It performs no side effects; see Process for the full pipeline.
//
// Callers must only pass eligible events: nothing from the bot itself or other bots, no direct messages, nothing from moderators, and only default or reply message types.
func (eng *Engine) Handle(ctx context.Context, evt event.MessageEvent) (dec Decision, err error) {
	if eng.isClosed() {
		return Decision{}, ErrEngineClosed
	}
	if evt.AuthorID == "" {
		eventErrorCount.WithLabelValues("invalid").Inc()
		return Decision{}, fmt.Errorf("%w: missing author", ErrInvalidEvent)
	}

	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "author", evt.AuthorID, "message", evt.MessageID)
			eventErrorCount.WithLabelValues("panic").Inc()
			err = fmt.Errorf("moderation panic: %v", r)
		}
	}()

	_, span := tracer.Start(ctx, "Handle")
	defer span.End()
	start := time.Now()
	defer func() {
		eventHandleDuration.Observe(time.Since(start).Seconds())
	}()
	eventHandleCount.Inc()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = eng.Clock.Now()
	}
	// a blank body is no text at all: it must neither compare as a duplicate nor hide an attachment-only post
	if strings.TrimSpace(evt.Text) == "" {
		evt.Text = ""
	}
	pol := eng.policy.Load()
	dec = eng.decide(pol, &evt)

	span.SetAttributes(
		attribute.String("author", evt.AuthorID),
		attribute.Float64("score", dec.AbuseScore),
		attribute.Bool("escalate", dec.Escalate),
	)
	if dec.Escalate {
		span.SetStatus(codes.Ok, "escalated")
	}
	eng.canonicalLogLine(&evt, &dec)
	return dec, nil
}

func (eng *Engine) decide(pol *policy, evt *event.MessageEvent) Decision {
	cfg := &pol.cfg
	lease := eng.Store.GetOrCreate(evt.AuthorID, evt.Timestamp)
	defer lease.Release()
	st := lease.State

	var dec Decision
	hit := func(name string, delta float64) {
		dec.Hits = append(dec.Hits, name)
		dec.Delta += delta
		heuristicHitCount.WithLabelValues(name).Inc()
	}
	warn := func(w string) {
		if w != "" && !slices.Contains(dec.Warnings, w) {
			dec.Warnings = append(dec.Warnings, w)
		}
	}

	st.Track(evt.Ref())
	if evt.Timestamp.After(st.LastSeenAt) {
		st.LastSeenAt = evt.Timestamp
	}

	// duplicate text across channels
	if evt.Text != "" {
		channels := st.AddTextChannel(evt.ChannelID)
		if st.LastText != "" && channels >= cfg.DuplicateChannelsRequired {
			switch similarity.Distance(st.LastText, evt.Text) {
			case 0:
				hit("exact-duplicate", cfg.ExactDuplicateDelta)
			case 1:
				hit("near-duplicate", cfg.NearDuplicateDelta)
			}
		}
		if st.AbuseScore < cfg.EscalationThreshold {
			st.LastText = evt.Text
		}
	}

	// attachment flooding
	if evt.AttachmentOnly() && evt.ChannelID != "" {
		count := st.RecordImage(evt.ChannelID, evt.Timestamp, cfg.ImageBurstWindow)
		if len(st.ImageChannels) >= cfg.ImageBurstChannelThreshold {
			hit("image-channel-spread", cfg.InstantKickDelta)
		} else if count > cfg.ImageBurstRateLimit {
			dec.ForceDeleteNow = true
			if count == cfg.ImageBurstRateLimit+1 {
				warn(WarnSlowDown)
			}
			hit("image-burst", cfg.ImageBurstDelta)
		}
	}

	for _, v := range filters.Run(pol.filters, evt.Text) {
		if v.ForceDelete {
			dec.ForceDeleteNow = true
		}
		warn(v.Warning)
		hit(v.Name, v.AbuseDelta)
	}

	// a message deleted on the spot must not end up in a removal report too
	if dec.ForceDeleteNow {
		st.PopLast()
	}

	st.AddAbuse(dec.Delta)
	dec.AbuseScore = st.AbuseScore

	if st.AbuseScore >= cfg.EscalationThreshold {
		detached, err := lease.Detach()
		if err != nil {
			// lease is only ever released by the deferred call above
			panic(err)
		}
		dec.Escalate = true
		dec.State = detached
		escalationCount.Inc()
	}

	switch {
	case dec.Escalate:
		decisionCount.WithLabelValues("escalate").Inc()
	case dec.ForceDeleteNow:
		decisionCount.WithLabelValues("force_delete").Inc()
	case len(dec.Warnings) > 0:
		decisionCount.WithLabelValues("warn").Inc()
	default:
		decisionCount.WithLabelValues("none").Inc()
	}
	return dec
}

// One log line per handled event. Message bodies are never logged, only their fingerprint.
func (eng *Engine) canonicalLogLine(evt *event.MessageEvent, dec *Decision) {
	level := slog.LevelDebug
	if len(dec.Hits) > 0 || dec.Escalate {
		level = slog.LevelInfo
	}
	eng.Logger.Log(context.Background(), level, "canonical-event-line",
		"author", evt.AuthorID,
		"channel", evt.ChannelID,
		"message", evt.MessageID,
		"fingerprint", helpers.Fingerprint(evt.Text),
		"attachment", evt.HasAttachment,
		"hits", dec.Hits,
		"delta", dec.Delta,
		"score", dec.AbuseScore,
		"forceDelete", dec.ForceDeleteNow,
		"warnings", dec.Warnings,
		"escalate", dec.Escalate,
	)
}

// Process handles the event and then carries out the decision: deletes a force-deleted message, delivers warnings, and on escalation starts the removal of the author in the background. Side effects are best-effort; their failures are logged and counted but not returned.
func (eng *Engine) Process(ctx context.Context, evt event.MessageEvent) (Decision, error) {
	if !eng.begin() {
		return Decision{}, ErrEngineClosed
	}
	defer eng.inflight.Done()

	dec, err := eng.Handle(ctx, evt)
	if err != nil {
		return dec, err
	}
	logger := eng.Logger.With("author", evt.AuthorID, "message", evt.MessageID)

	if dec.ForceDeleteNow {
		if err := eng.call(ctx, OpDeleteMessage, func(ctx context.Context) error {
			return eng.Platform.DeleteMessage(ctx, evt.Ref())
		}); err != nil {
			logger.Warn("failed to delete message", "err", err)
		}
	}
	if eng.Warner != nil {
		for _, w := range dec.Warnings {
			if err := eng.call(ctx, OpWarn, func(ctx context.Context) error {
				return eng.Warner.Warn(ctx, &evt, w)
			}); err != nil {
				logger.Warn("failed to deliver warning", "warning", w, "err", err)
			}
		}
	}
	if dec.Escalate {
		eng.inflight.Add(1)
		// removal outlives the event context, but keeps its trace
		rctx := context.WithoutCancel(ctx)
		go func() {
			defer eng.inflight.Done()
			eng.Remover().Run(rctx, evt, dec.State)
		}()
	}
	return dec, nil
}

// Shutdown stops accepting events and waits for in-flight events and removals to finish, or for ctx to expire.
func (eng *Engine) Shutdown(ctx context.Context) error {
	eng.mu.Lock()
	eng.closed = true
	eng.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eng.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		eng.Logger.Info("moderation engine drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight removals: %w", ctx.Err())
	}
}

// Resets an author's state, as if they had gone idle. No report is produced.
func (eng *Engine) ResetAuthor(authorID string) bool {
	_, ok := eng.Store.Remove(authorID)
	return ok
}

func (eng *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return callCollaborator(ctx, eng.policy.Load().cfg.CollaboratorTimeout, op, fn)
}

// Runs a collaborator call under a timeout, wrapping and counting failures.
func callCollaborator(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultConfig().CollaboratorTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		collaboratorErrorCount.WithLabelValues(op).Inc()
		return &CollaboratorError{Op: op, Err: err}
	}
	return nil
}
