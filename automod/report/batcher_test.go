package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureSink struct {
	reports []string
	failOn  int
}

func (c *captureSink) send(ctx context.Context, text string) error {
	c.reports = append(c.reports, text)
	if c.failOn > 0 && len(c.reports) == c.failOn {
		return errors.New("upstream unavailable")
	}
	return nil
}

func TestBatcherChunking(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sink := &captureSink{}
	b := NewBatcher(10, sink.send, nil)

	// each 4-byte line costs 5 bytes, so exactly two fit in a 10 byte chunk
	var lines []string
	total := 0
	for i := 0; i < 6; i++ {
		line := strings.Repeat(fmt.Sprint(i), 4)
		lines = append(lines, line)
		total += len(line) + 1
		b.Add(ctx, line)
	}
	b.Flush(ctx)

	expectedChunks := (total + 10 - 1) / 10
	assert.Equal(3, expectedChunks)
	assert.Equal([]string{"0000\n1111", "2222\n3333", "4444\n5555"}, sink.reports)
	for _, r := range sink.reports {
		assert.LessOrEqual(len(r), 10)
	}
	assert.Equal(strings.Join(lines, "\n"), strings.Join(sink.reports, "\n"))
	assert.Equal(3, b.Sent())
}

func TestBatcherFlushEmpty(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sink := &captureSink{}
	b := NewBatcher(DefaultChunkBudget, sink.send, nil)
	b.Flush(ctx)
	assert.Equal([]string{""}, sink.reports)
}

func TestBatcherOverflowStartsNewChunk(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sink := &captureSink{}
	b := NewBatcher(20, sink.send, nil)
	b.Add(ctx, "short")
	b.Add(ctx, "a much longer line")
	b.Flush(ctx)
	assert.Equal([]string{"short", "a much longer line"}, sink.reports)
}

func TestBatcherTruncatesHugeLine(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sink := &captureSink{}
	b := NewBatcher(0, sink.send, nil)
	assert.Equal(DefaultChunkBudget, b.Budget)

	b.Add(ctx, "before")
	b.Add(ctx, strings.Repeat("x", 10_000))
	b.Add(ctx, "after")
	b.Flush(ctx)

	assert.Len(sink.reports, 3)
	assert.Equal("before", sink.reports[0])
	assert.True(strings.HasSuffix(sink.reports[1], TruncationMarker))
	assert.LessOrEqual(len(sink.reports[1]), DefaultChunkBudget)
	assert.Equal("after", sink.reports[2])
	for _, r := range sink.reports {
		assert.LessOrEqual(len(r), HardCap)
	}
}

func TestBatcherSendFailureContinues(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sink := &captureSink{failOn: 1}
	b := NewBatcher(10, sink.send, nil)
	for _, line := range []string{"aaaa", "bbbb", "cccc"} {
		b.Add(ctx, line)
	}
	b.Flush(ctx)

	assert.Equal([]string{"aaaa\nbbbb", "cccc"}, sink.reports)
	assert.Equal(2, b.Sent())
	assert.Equal(1, b.Failures())
}
