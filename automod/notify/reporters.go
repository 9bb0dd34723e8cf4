// Report and warning delivery for the moderation engine: webhooks, the process log, and fan-out.
package notify

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/ninjabot/ninjaguard/automod/event"
)

// Writes reports to the structured log. Useful alone in development, or next to a webhook as an audit trail.
type LogReporter struct {
	Logger *slog.Logger
}

func (r *LogReporter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *LogReporter) SendReport(ctx context.Context, text string) error {
	r.logger().InfoContext(ctx, "moderation report", "report", text, "bytes", len(text))
	return nil
}

func (r *LogReporter) Warn(ctx context.Context, evt *event.MessageEvent, warning string) error {
	r.logger().InfoContext(ctx, "moderation warning", "author", evt.AuthorID, "channel", evt.ChannelID, "warning", warning)
	return nil
}

type Reporter interface {
	SendReport(ctx context.Context, text string) error
}

// Sends every report to all reporters at once, so a slow destination does not use up the others' share of the caller's deadline. Fails only with the joined errors of those which failed; the rest still receive the report.
type MultiReporter struct {
	Reporters []Reporter
}

func (m *MultiReporter) SendReport(ctx context.Context, text string) error {
	p := pool.New().WithErrors()
	for _, r := range m.Reporters {
		p.Go(func() error {
			return r.SendReport(ctx, text)
		})
	}
	return p.Wait()
}
