package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/ninjabot/ninjaguard/automod/event"
)

// Reads JSON MessageEvents from a NATS subject. The publisher has already applied eligibility rules.
type NatsConsumer struct {
	Conn    *nats.Conn
	Subject string
	// queue group, for sharing a subject between replicas (optional)
	Queue  string
	Engine Processor
	Logger *slog.Logger

	ready chan struct{}
}

var _ Source = (*NatsConsumer)(nil)

func NewNatsConsumer(conn *nats.Conn, subject, queue string, eng Processor, logger *slog.Logger) *NatsConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NatsConsumer{
		Conn:    conn,
		Subject: subject,
		Queue:   queue,
		Engine:  eng,
		Logger:  logger.With("component", "nats-consumer", "subject", subject),
		ready:   make(chan struct{}),
	}
}

func (nc *NatsConsumer) Ready() <-chan struct{} {
	return nc.ready
}

func (nc *NatsConsumer) Run(ctx context.Context) error {
	if nc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	var (
		sub *nats.Subscription
		err error
	)
	if nc.Queue != "" {
		sub, err = nc.Conn.QueueSubscribe(nc.Subject, nc.Queue, nc.HandleMsg)
	} else {
		sub, err = nc.Conn.Subscribe(nc.Subject, nc.HandleMsg)
	}
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", nc.Subject, err)
	}
	nc.Logger.Info("subscribed to message events")
	close(nc.ready)

	<-ctx.Done()
	// lets queued messages finish
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("draining subscription: %w", err)
	}
	return nil
}

// Decodes and processes one message. Messages are handled in order, one at a time.
func (nc *NatsConsumer) HandleMsg(m *nats.Msg) {
	var evt event.MessageEvent
	if err := json.Unmarshal(m.Data, &evt); err != nil {
		consumedCount.WithLabelValues("nats", "invalid").Inc()
		nc.Logger.Warn("invalid message event", "err", err)
		return
	}
	evt.Text = strings.TrimSpace(evt.Text)
	if evt.AuthorID == "" || evt.MessageID == "" {
		consumedCount.WithLabelValues("nats", "invalid").Inc()
		nc.Logger.Warn("message event missing IDs", "author", evt.AuthorID, "message", evt.MessageID)
		return
	}
	consumedCount.WithLabelValues("nats", "processed").Inc()
	if _, err := nc.Engine.Process(context.Background(), evt); err != nil {
		nc.Logger.Error("processing message failed", "author", evt.AuthorID, "message", evt.MessageID, "err", err)
	}
}
