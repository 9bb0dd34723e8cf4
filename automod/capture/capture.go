// Recorded message streams, and replay of them through an engine.
//
// A capture is a JSON file of normalized message events in arrival order. Replaying one against a policy shows which authors it would escalate, without touching a live platform.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ninjabot/ninjaguard/automod/event"
)

type Capture struct {
	CapturedAt time.Time            `json:"capturedAt"`
	Events     []event.MessageEvent `json:"events"`
}

func Load(path string) (*Capture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Capture
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing capture %s: %w", path, err)
	}
	return &c, nil
}

func MustLoad(path string) *Capture {
	c, err := Load(path)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Capture) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (c *Capture) Add(evt event.MessageEvent) {
	c.Events = append(c.Events, evt)
}

// Calls fn for each event in order, stopping at the first error or when ctx is done.
func (c *Capture) Each(ctx context.Context, fn func(ctx context.Context, evt event.MessageEvent) error) error {
	for _, evt := range c.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}
