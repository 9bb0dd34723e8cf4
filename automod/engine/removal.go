package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/ninjabot/ninjaguard/automod/authorstate"
	"github.com/ninjabot/ninjaguard/automod/countstore"
	"github.com/ninjabot/ninjaguard/automod/event"
	"github.com/ninjabot/ninjaguard/automod/report"
)

const (
	NoHistoryLine = "no history available"

	quotaCounter = "automod-quota"
	quotaRemoval = "removal"

	escalationCounter = "automod-escalation"
)

// Carries out the removal of an escalated author: kicks them, deletes their tracked messages, and reports what was removed.
//
// Every step is best-effort. A failing kick, fetch, delete, or report is logged and counted, and the run moves on.
type Remover struct {
	Platform Platform
	Reporter Reporter
	// optional
	Counters countstore.CountStore
	Logger   *slog.Logger
	Config   Config
	// paces deletions; shared between concurrent removals
	Limiter *rate.Limiter
	// overridable in tests
	NewIncidentID func() string
}

// What happened during a removal run
type RemovalResult struct {
	IncidentID string
	Kicked     bool
	// kick skipped by the daily removal quota
	QuotaTripped bool
	Deleted      int
	DeleteErrors int
	Lines        int
	Chunks       int
	ChunkErrors  int
}

// Remover configured from the engine's current policy
func (eng *Engine) Remover() *Remover {
	pol := eng.policy.Load()
	return &Remover{
		Platform: eng.Platform,
		Reporter: eng.Reporter,
		Counters: eng.Counters,
		Logger:   eng.Logger,
		Config:   pol.cfg,
		Limiter:  pol.limiter,
	}
}

func (r *Remover) Run(ctx context.Context, evt event.MessageEvent, st *authorstate.AuthorState) RemovalResult {
	ctx, span := tracer.Start(ctx, "RemoveAuthor")
	defer span.End()
	start := time.Now()
	defer func() {
		removalDuration.Observe(time.Since(start).Seconds())
	}()

	if st == nil {
		st = authorstate.NewAuthorState(evt.Timestamp)
	}
	newID := r.NewIncidentID
	if newID == nil {
		newID = uuid.NewString
	}
	res := RemovalResult{IncidentID: newID()}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("author", evt.AuthorID, "incident", res.IncidentID)
	span.SetAttributes(attribute.String("author", evt.AuthorID), attribute.String("incident", res.IncidentID))

	display := evt.AuthorName
	if display == "" {
		display = evt.AuthorID
	}

	if r.quotaAllows(ctx, logger) {
		err := r.call(ctx, OpRemoveMember, func(ctx context.Context) error {
			return r.Platform.RemoveMember(ctx, evt.AuthorID, fmt.Sprintf("spam (incident %s)", res.IncidentID))
		})
		if err != nil {
			logger.Warn("failed to remove member", "err", err)
		} else {
			res.Kicked = true
			r.countRemoval(ctx, logger)
		}
	} else {
		res.QuotaTripped = true
	}
	r.countEscalation(ctx, logger, evt.AuthorID)

	var notice string
	switch {
	case res.Kicked:
		notice = fmt.Sprintf("%s has been removed for spam (incident %s)", display, res.IncidentID)
	case res.QuotaTripped:
		notice = fmt.Sprintf("%s was flagged for spam but not removed, daily removal quota reached (incident %s)", display, res.IncidentID)
	default:
		notice = fmt.Sprintf("%s was flagged for spam but could not be removed (incident %s)", display, res.IncidentID)
	}
	if err := r.send(ctx, notice); err != nil {
		logger.Warn("failed to send removal notice", "err", err)
	}

	batcher := report.NewBatcher(r.Config.ChunkByteBudget, r.send, logger)
	lines := r.cleanup(ctx, logger, st.Tracked, &res)
	switch {
	case len(lines) > 0:
		for _, l := range lines {
			batcher.Add(ctx, l)
		}
	case st.LastText != "":
		lines = []string{st.LastText}
		batcher.Add(ctx, st.LastText)
	default:
		lines = []string{NoHistoryLine}
		batcher.Add(ctx, NoHistoryLine)
	}
	res.Lines = len(lines)
	batcher.Flush(ctx)
	res.Chunks = batcher.Sent()
	res.ChunkErrors = batcher.Failures()

	logger.Info("author removal complete",
		"kicked", res.Kicked,
		"quotaTripped", res.QuotaTripped,
		"deleted", res.Deleted,
		"deleteErrors", res.DeleteErrors,
		"lines", res.Lines,
		"chunks", res.Chunks,
		"duration", time.Since(start),
	)
	return res
}

// Fetches a report line for each ref and deletes the message, returning the lines in arrival order.
func (r *Remover) cleanup(ctx context.Context, logger *slog.Logger, refs []event.MessageRef, res *RemovalResult) []string {
	if len(refs) == 0 {
		return nil
	}
	lines := make([]string, len(refs))
	deleted := make([]bool, len(refs))

	one := func(ctx context.Context, i int) {
		ref := refs[i]
		var line string
		err := r.call(ctx, OpFetchLine, func(ctx context.Context) error {
			var err error
			line, err = r.Platform.FetchRenderableLine(ctx, ref)
			return err
		})
		if err != nil {
			logger.Warn("failed to fetch message for report", "ref", ref.String(), "err", err)
			line = fmt.Sprintf("[message %s unavailable]", ref.String())
		}
		lines[i] = line

		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				logger.Warn("deletion not attempted", "ref", ref.String(), "err", err)
				return
			}
		}
		err = r.call(ctx, OpDeleteMessage, func(ctx context.Context) error {
			return r.Platform.DeleteMessage(ctx, ref)
		})
		if err != nil {
			logger.Warn("failed to delete message", "ref", ref.String(), "err", err)
			return
		}
		deleted[i] = true
	}

	if r.Config.DeleteConcurrency <= 1 {
		for i := range refs {
			one(ctx, i)
		}
	} else {
		p := pool.New().WithMaxGoroutines(r.Config.DeleteConcurrency).WithContext(ctx)
		for i := range refs {
			p.Go(func(ctx context.Context) error {
				one(ctx, i)
				return nil
			})
		}
		_ = p.Wait()
	}

	for _, ok := range deleted {
		if ok {
			res.Deleted++
		} else {
			res.DeleteErrors++
		}
	}
	return lines
}

// Daily removal circuit breaker. Counter failures let the removal through.
func (r *Remover) quotaAllows(ctx context.Context, logger *slog.Logger) bool {
	if r.Config.RemovalQuotaDay <= 0 || r.Counters == nil {
		return true
	}
	c, err := r.Counters.GetCount(ctx, quotaCounter, quotaRemoval, countstore.PeriodDay)
	if err != nil {
		logger.Error("failed to read removal quota", "err", err)
		return true
	}
	if c >= r.Config.RemovalQuotaDay {
		logger.Warn("CIRCUIT BREAKER: automod removals", "count", c, "quota", r.Config.RemovalQuotaDay)
		quotaTrippedCount.WithLabelValues(quotaRemoval).Inc()
		return false
	}
	return true
}

func (r *Remover) countRemoval(ctx context.Context, logger *slog.Logger) {
	if r.Counters == nil {
		return
	}
	if err := r.Counters.IncrementPeriod(ctx, quotaCounter, quotaRemoval, countstore.PeriodDay); err != nil {
		logger.Error("failed to increment removal quota", "err", err)
	}
}

func (r *Remover) countEscalation(ctx context.Context, logger *slog.Logger, authorID string) {
	if r.Counters == nil {
		return
	}
	if err := r.Counters.Increment(ctx, escalationCounter, authorID); err != nil {
		logger.Error("failed to count escalation", "err", err)
		return
	}
	total, err := r.Counters.GetCount(ctx, escalationCounter, authorID, countstore.PeriodTotal)
	if err != nil {
		logger.Error("failed to read escalation count", "err", err)
		return
	}
	if total > 1 {
		logger.Info("repeat escalation", "escalations", total)
	}
}

func (r *Remover) send(ctx context.Context, text string) error {
	err := r.call(ctx, OpSendReport, func(ctx context.Context) error {
		return r.Reporter.SendReport(ctx, text)
	})
	if err != nil {
		reportSentCount.WithLabelValues("error").Inc()
		return err
	}
	reportSentCount.WithLabelValues("ok").Inc()
	return nil
}

func (r *Remover) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return callCollaborator(ctx, r.Config.CollaboratorTimeout, op, fn)
}
