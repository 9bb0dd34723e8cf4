package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ninjabot/ninjaguard/automod/authorstate"
	"github.com/ninjabot/ninjaguard/automod/clock"
	"github.com/ninjabot/ninjaguard/automod/countstore"
	"github.com/ninjabot/ninjaguard/automod/event"
)

var ErrMockFailure = errors.New("mock collaborator failure")

// In-memory Platform which records every call. Safe for concurrent use.
type MockPlatform struct {
	mu sync.Mutex

	Removed []string
	Deleted []event.MessageRef
	// rendered lines by ref; refs without an entry render as "#<channel>: message <id>"
	Lines map[event.MessageRef]string

	FailRemove bool
	FailFetch  map[event.MessageRef]bool
	FailDelete map[event.MessageRef]bool
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		Lines:      make(map[event.MessageRef]string),
		FailFetch:  make(map[event.MessageRef]bool),
		FailDelete: make(map[event.MessageRef]bool),
	}
}

func (p *MockPlatform) RemoveMember(ctx context.Context, authorID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailRemove {
		return ErrMockFailure
	}
	p.Removed = append(p.Removed, authorID)
	return nil
}

func (p *MockPlatform) FetchRenderableLine(ctx context.Context, ref event.MessageRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailFetch[ref] {
		return "", ErrMockFailure
	}
	if l, ok := p.Lines[ref]; ok {
		return l, nil
	}
	return fmt.Sprintf("#%s: message %s", ref.ChannelID, ref.MessageID), nil
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, ref event.MessageRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailDelete[ref] {
		return ErrMockFailure
	}
	p.Deleted = append(p.Deleted, ref)
	return nil
}

func (p *MockPlatform) RemovedAuthors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Removed...)
}

func (p *MockPlatform) DeletedRefs() []event.MessageRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.MessageRef(nil), p.Deleted...)
}

// Reporter which keeps every report in memory.
type CaptureReporter struct {
	mu      sync.Mutex
	Reports []string
	Fail    bool
}

var _ Reporter = (*CaptureReporter)(nil)

func (r *CaptureReporter) SendReport(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return ErrMockFailure
	}
	r.Reports = append(r.Reports, text)
	return nil
}

func (r *CaptureReporter) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Reports...)
}

type Warning struct {
	AuthorID string
	Warning  string
}

// Warner which keeps every warning in memory.
type CaptureWarner struct {
	mu       sync.Mutex
	Warnings []Warning
}

var _ Warner = (*CaptureWarner)(nil)

func (w *CaptureWarner) Warn(ctx context.Context, evt *event.MessageEvent, warning string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Warnings = append(w.Warnings, Warning{AuthorID: evt.AuthorID, Warning: warning})
	return nil
}

func (w *CaptureWarner) All() []Warning {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Warning(nil), w.Warnings...)
}

// Engine wired to in-memory collaborators, for tests.
type TestFixture struct {
	Engine   *Engine
	Platform *MockPlatform
	Reporter *CaptureReporter
	Warner   *CaptureWarner
	Clock    *clock.Manual
	Counters *countstore.MemCountStore
}

// Fixture with the default policy, except deletions are not rate limited.
func EngineTestFixture() *TestFixture {
	cfg := DefaultConfig()
	cfg.DeleteRate = 1000
	return EngineTestFixtureWithConfig(cfg)
}

func EngineTestFixtureWithConfig(cfg Config) *TestFixture {
	tf := &TestFixture{
		Platform: NewMockPlatform(),
		Reporter: &CaptureReporter{},
		Warner:   &CaptureWarner{},
		Clock:    clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		Counters: countstore.NewMemCountStore(),
	}
	eng, err := NewEngine(cfg, Options{
		Logger:   slog.Default(),
		Store:    authorstate.NewStore(),
		Platform: tf.Platform,
		Reporter: tf.Reporter,
		Warner:   tf.Warner,
		Clock:    tf.Clock,
		Counters: tf.Counters,
	})
	if err != nil {
		panic(err)
	}
	tf.Engine = eng
	return tf
}

// Builds an event from the given author at the fixture's current time. Each call gets a fresh message ID.
func (tf *TestFixture) Message(author, channel, text string) event.MessageEvent {
	return event.MessageEvent{
		AuthorID:  author,
		ChannelID: channel,
		MessageID: fmt.Sprintf("m%d", messageSeq.Add(1)),
		Text:      text,
		Timestamp: tf.Clock.Now(),
	}
}

// Attachment-only event
func (tf *TestFixture) Image(author, channel string) event.MessageEvent {
	evt := tf.Message(author, channel, "")
	evt.HasAttachment = true
	evt.AttachmentIsImage = true
	evt.AttachmentName = "image.png"
	return evt
}

var messageSeq atomic.Int64
