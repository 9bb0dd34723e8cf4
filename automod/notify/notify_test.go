package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

func testWebhook(t *testing.T, url, format string) *WebhookReporter {
	w, err := NewWebhookReporter(url, format, nil)
	require.NoError(t, err)
	// keep retries fast
	w.Client = http.DefaultClient
	w.InitialInterval = 10 * time.Millisecond
	w.MaxElapsed = 5 * time.Second
	return w
}

func TestWebhookSlack(t *testing.T) {
	assert := assert.New(t)

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(json.Unmarshal(raw, &got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	assert.NoError(testWebhook(t, srv.URL, "").SendReport(context.Background(), "spam report"))
	assert.Equal("spam report", got["text"])
}

func TestWebhookDiscord(t *testing.T) {
	assert := assert.New(t)

	var got discordWebhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(json.Unmarshal(raw, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(testWebhook(t, srv.URL, FormatDiscord).SendReport(context.Background(), "hi @everyone"))
	assert.Equal("hi @everyone", got.Content)
	assert.Empty(got.AllowedMentions.Parse)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	assert := assert.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(testWebhook(t, srv.URL, FormatSlack).SendReport(context.Background(), "x"))
	assert.Equal(int32(3), calls.Load())
}

func TestWebhookClientErrorIsPermanent(t *testing.T) {
	assert := assert.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := testWebhook(t, srv.URL, FormatSlack).SendReport(context.Background(), "x")
	assert.Error(err)
	assert.Contains(err.Error(), "status=404")
	assert.Equal(int32(1), calls.Load())
}

func TestNewWebhookReporterValidation(t *testing.T) {
	_, err := NewWebhookReporter("", FormatSlack, nil)
	assert.Error(t, err)
	_, err = NewWebhookReporter("http://example.com", "irc", nil)
	assert.Error(t, err)
}

type failingReporter struct{}

func (failingReporter) SendReport(ctx context.Context, text string) error {
	return errors.New("down")
}

type countingReporter struct {
	n int
}

func (c *countingReporter) SendReport(ctx context.Context, text string) error {
	c.n++
	return nil
}

func TestMultiReporter(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	a, b := &countingReporter{}, &countingReporter{}
	m := &MultiReporter{Reporters: []Reporter{a, failingReporter{}, b, &LogReporter{}}}
	err := m.SendReport(ctx, "report")
	assert.Error(err)
	assert.Contains(err.Error(), "down")
	assert.Equal(1, a.n)
	assert.Equal(1, b.n)

	assert.NoError((&MultiReporter{Reporters: []Reporter{a}}).SendReport(ctx, "report"))
}

func TestLogReporter(t *testing.T) {
	r := &LogReporter{}
	assert.NoError(t, r.SendReport(context.Background(), "text"))
	assert.NoError(t, r.Warn(context.Background(), &event.MessageEvent{AuthorID: "a"}, "slow-down"))
}

type slowReporter struct {
	delay time.Duration
	sent  atomic.Bool
}

func (s *slowReporter) SendReport(ctx context.Context, text string) error {
	select {
	case <-time.After(s.delay):
		s.sent.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestMultiReporterSharesDeadline(t *testing.T) {
	assert := assert.New(t)

	// each fits the deadline alone, but not one after the other
	a := &slowReporter{delay: 150 * time.Millisecond}
	b := &slowReporter{delay: 150 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	assert.NoError((&MultiReporter{Reporters: []Reporter{a, b}}).SendReport(ctx, "report"))
	assert.True(a.sent.Load())
	assert.True(b.sent.Load())
}

func TestWebhookBudgetFitsCollaboratorTimeout(t *testing.T) {
	w, err := NewWebhookReporter("http://example.invalid/hook", FormatSlack, nil)
	require.NoError(t, err)
	assert.Less(t, w.MaxElapsed, engine.DefaultConfig().CollaboratorTimeout)
	assert.Less(t, w.Client.Timeout, engine.DefaultConfig().CollaboratorTimeout)
}
