package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ninjabot/ninjaguard/automod/authorstate"
	"github.com/ninjabot/ninjaguard/automod/clock"
	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

type Escalation struct {
	AuthorID   string    `json:"authorId"`
	MessageID  string    `json:"messageId"`
	At         time.Time `json:"at"`
	AbuseScore float64   `json:"abuseScore"`
	Hits       []string  `json:"hits"`
	// messages which would have been deleted and reported
	Tracked int `json:"tracked"`
}

type Summary struct {
	Events        int            `json:"events"`
	Invalid       int            `json:"invalid"`
	ForcedDeletes int            `json:"forcedDeletes"`
	Warnings      map[string]int `json:"warnings"`
	Hits          map[string]int `json:"hits"`
	Escalations   []Escalation   `json:"escalations"`
}

// Replays a capture through a fresh engine running the given policy, and summarizes the decisions.
//
// Decisions only: no removals are carried out and nothing is reported. The engine clock follows event timestamps, and idle authors are swept before each event, so windows and eviction play out as they would have live.
func Replay(ctx context.Context, cfg engine.Config, c *Capture) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	if len(c.Events) > 0 && !c.Events[0].Timestamp.IsZero() {
		start = c.Events[0].Timestamp
	}
	clk := clock.NewManual(start)
	// only Handle is called, so the collaborators are never reached
	eng, err := engine.NewEngine(cfg, engine.Options{
		Logger:   slog.Default(),
		Store:    authorstate.NewStore(),
		Platform: discard{},
		Reporter: discard{},
		Clock:    clk,
	})
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Warnings: make(map[string]int),
		Hits:     make(map[string]int),
	}
	err = c.Each(ctx, func(ctx context.Context, evt event.MessageEvent) error {
		sum.Events++
		if evt.Timestamp.After(clk.Now()) {
			clk.Set(evt.Timestamp)
		}
		authorstate.SweepOnce(eng.Store, clk.Now(), cfg.IdleTTL)

		dec, err := eng.Handle(ctx, evt)
		if errors.Is(err, engine.ErrInvalidEvent) {
			sum.Invalid++
			return nil
		}
		if err != nil {
			return err
		}
		if dec.ForceDeleteNow {
			sum.ForcedDeletes++
		}
		for _, w := range dec.Warnings {
			sum.Warnings[w]++
		}
		for _, h := range dec.Hits {
			sum.Hits[h]++
		}
		if dec.Escalate {
			esc := Escalation{
				AuthorID:   evt.AuthorID,
				MessageID:  evt.MessageID,
				At:         clk.Now(),
				AbuseScore: dec.AbuseScore,
				Hits:       dec.Hits,
			}
			if dec.State != nil {
				esc.Tracked = len(dec.State.Tracked)
			}
			sum.Escalations = append(sum.Escalations, esc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Platform and Reporter for dry runs: every call succeeds and does nothing.
type discard struct{}

var (
	_ engine.Platform = discard{}
	_ engine.Reporter = discard{}
)

func (discard) RemoveMember(ctx context.Context, authorID, reason string) error { return nil }

func (discard) FetchRenderableLine(ctx context.Context, ref event.MessageRef) (string, error) {
	return "", nil
}

func (discard) DeleteMessage(ctx context.Context, ref event.MessageRef) error { return nil }

func (discard) SendReport(ctx context.Context, text string) error { return nil }
