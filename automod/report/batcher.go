// Size-bounded batching of report lines into outbound messages.
package report

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ninjabot/ninjaguard/automod/helpers"
)

const (
	// Payload ceiling of a single outbound chat message
	HardCap = 4096
	// Default chunk budget, leaving headroom under HardCap for truncation markers
	DefaultChunkBudget = 4090

	TruncationMarker = "…[truncated]"
)

// Destination for finished chunks. Implementations must not retain text.
type SendFunc func(ctx context.Context, text string) error

// Accumulates lines into chunks of at most Budget bytes and sends each chunk as one report.
//
// Every line costs its length plus one byte for the separating newline. When the next line would push the current chunk over budget, the chunk is sent and the line starts a new one. Not safe for concurrent use; one Batcher serves one removal.
type Batcher struct {
	Budget int
	Send   SendFunc
	Logger *slog.Logger

	lines []string
	size  int
	sent  int
	fails int
}

func NewBatcher(budget int, send SendFunc, logger *slog.Logger) *Batcher {
	if budget <= 0 || budget > HardCap {
		budget = DefaultChunkBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		Budget: budget,
		Send:   send,
		Logger: logger,
	}
}

func (b *Batcher) Add(ctx context.Context, line string) {
	// a line alone may never exceed the budget
	if len(line)+1 > b.Budget {
		line = helpers.Truncate(line, b.Budget-1, TruncationMarker)
	}
	cost := len(line) + 1
	if len(b.lines) > 0 && b.size+cost > b.Budget {
		b.emit(ctx)
	}
	b.lines = append(b.lines, line)
	b.size += cost
}

// Sends whatever is pending as a final chunk. Always sends exactly one report, even when nothing is pending.
func (b *Batcher) Flush(ctx context.Context) {
	b.emit(ctx)
}

// Number of chunks handed to Send (including failed ones)
func (b *Batcher) Sent() int {
	return b.sent
}

// Number of chunks whose Send returned an error
func (b *Batcher) Failures() int {
	return b.fails
}

func (b *Batcher) emit(ctx context.Context) {
	text := strings.Join(b.lines, "\n")
	b.lines = b.lines[:0]
	b.size = 0
	b.sent++
	if err := b.Send(ctx, text); err != nil {
		b.fails++
		b.Logger.Warn("failed to send report chunk", "err", err, "bytes", len(text))
	}
}
