// Message sources feeding the moderation engine: the Discord gateway, and a NATS subject carrying pre-normalized events.
//
// Consumers are responsible for eligibility: only messages the engine should judge are passed on.
package consumer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ninjabot/ninjaguard/automod/engine"
	"github.com/ninjabot/ninjaguard/automod/event"
)

// Implemented by *engine.Engine
type Processor interface {
	Process(ctx context.Context, evt event.MessageEvent) (engine.Decision, error)
}

var _ Processor = (*engine.Engine)(nil)

// A running message source
type Source interface {
	// Blocks until ctx is cancelled, then waits for in-flight events.
	Run(ctx context.Context) error
	// Closed once the source is connected and delivering events.
	Ready() <-chan struct{}
}

var consumedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_consumer_messages",
	Help: "Messages received by consumers, by source and outcome",
}, []string{"source", "outcome"})
