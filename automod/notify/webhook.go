package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	FormatSlack   = "slack"
	FormatDiscord = "discord"

	// Whole-delivery retry budget. Kept under the engine's default collaborator timeout, which bounds every report.
	DefaultMaxElapsed = 8 * time.Second
)

type slackWebhookBody struct {
	Text string `json:"text"`
}

type discordWebhookBody struct {
	Content string `json:"content"`
	// keeps mentions in reported spam from pinging anyone
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// Posts reports to an incoming webhook (Slack, or Discord-compatible).
//
// The HTTP client retries each request on its own; on top of that, whole deliveries are retried with exponential backoff until MaxElapsed. Client errors (4xx other than 429) are not retried.
type WebhookReporter struct {
	URL        string
	Format     string
	Client     *http.Client
	// first retry delay, doubling up to MaxElapsed
	InitialInterval time.Duration
	MaxElapsed      time.Duration
	Logger          *slog.Logger
}

func NewWebhookReporter(url, format string, logger *slog.Logger) (*WebhookReporter, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	switch format {
	case "":
		format = FormatSlack
	case FormatSlack, FormatDiscord:
	default:
		return nil, fmt.Errorf("unsupported webhook format: %s", format)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookReporter{
		URL:             url,
		Format:          format,
		Client:          RobustHTTPClient(logger),
		InitialInterval: 500 * time.Millisecond,
		MaxElapsed:      DefaultMaxElapsed,
		Logger:          logger,
	}, nil
}

func (w *WebhookReporter) body(text string) ([]byte, error) {
	if w.Format == FormatDiscord {
		b := discordWebhookBody{Content: text}
		b.AllowedMentions.Parse = []string{}
		return json.Marshal(b)
	}
	return json.Marshal(slackWebhookBody{Text: text})
}

func (w *WebhookReporter) SendReport(ctx context.Context, text string) error {
	body, err := w.body(text)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if w.InitialInterval > 0 {
		bo.InitialInterval = w.InitialInterval
	}
	if w.MaxElapsed > 0 {
		bo.MaxElapsedTime = w.MaxElapsed
	}

	op := func() error {
		return w.post(ctx, body)
	}
	notify := func(err error, d time.Duration) {
		w.Logger.Warn("webhook delivery failed, retrying", "err", err, "wait", d)
	}
	err = backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	if err != nil && ctx.Err() != nil {
		w.Logger.Warn("webhook delivery abandoned, caller deadline reached", "err", err)
	}
	return err
}

func (w *WebhookReporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook POST failed: status=%d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook POST rejected: status=%d", resp.StatusCode))
	}
}
