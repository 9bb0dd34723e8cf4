package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

// The subset of *nats.Conn used by the NATS bridge
type NatsConn interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Publish(subj string, data []byte) error
}

// Command sent to the chat layer over NATS request/reply
type NatsCommand struct {
	Op       string            `json:"op"`
	AuthorID string            `json:"authorId,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Ref      *event.MessageRef `json:"ref,omitempty"`
	Text     string            `json:"text,omitempty"`
	Warning  string            `json:"warning,omitempty"`
}

type NatsReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Line  string `json:"line,omitempty"`
}

// Platform, Reporter, and Warner for a chat layer reachable over NATS. Each operation is a request on "<Prefix>.<op>"; reports are published without waiting for a reply.
type NatsPlatform struct {
	Conn   NatsConn
	Prefix string
}

var (
	_ engine.Platform = (*NatsPlatform)(nil)
	_ engine.Reporter = (*NatsPlatform)(nil)
	_ engine.Warner   = (*NatsPlatform)(nil)
)

func (p *NatsPlatform) subject(op string) string {
	return p.Prefix + "." + op
}

func (p *NatsPlatform) request(ctx context.Context, cmd NatsCommand) (*NatsReply, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	msg, err := p.Conn.RequestWithContext(ctx, p.subject(cmd.Op), data)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", cmd.Op, err)
	}
	var reply NatsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decoding %s reply: %w", cmd.Op, err)
	}
	if !reply.OK {
		if reply.Error == "" {
			reply.Error = "unknown error"
		}
		return nil, errors.New(reply.Error)
	}
	return &reply, nil
}

func (p *NatsPlatform) RemoveMember(ctx context.Context, authorID, reason string) error {
	_, err := p.request(ctx, NatsCommand{Op: engine.OpRemoveMember, AuthorID: authorID, Reason: reason})
	return err
}

func (p *NatsPlatform) FetchRenderableLine(ctx context.Context, ref event.MessageRef) (string, error) {
	reply, err := p.request(ctx, NatsCommand{Op: engine.OpFetchLine, Ref: &ref})
	if err != nil {
		return "", err
	}
	return reply.Line, nil
}

func (p *NatsPlatform) DeleteMessage(ctx context.Context, ref event.MessageRef) error {
	_, err := p.request(ctx, NatsCommand{Op: engine.OpDeleteMessage, Ref: &ref})
	return err
}

func (p *NatsPlatform) SendReport(ctx context.Context, text string) error {
	data, err := json.Marshal(NatsCommand{Op: engine.OpSendReport, Text: text})
	if err != nil {
		return err
	}
	return p.Conn.Publish(p.subject(engine.OpSendReport), data)
}

func (p *NatsPlatform) Warn(ctx context.Context, evt *event.MessageEvent, warning string) error {
	ref := evt.Ref()
	_, err := p.request(ctx, NatsCommand{
		Op:       engine.OpWarn,
		AuthorID: evt.AuthorID,
		Ref:      &ref,
		Warning:  warning,
		Text:     WarningText(warning),
	})
	return err
}
