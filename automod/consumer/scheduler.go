package consumer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ninjabot/ninjaguard/automod/event"
)

var workItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_consumer_work_items_added",
	Help: "Message events queued for processing, by source",
}, []string{"source"})

var workItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_consumer_work_items_processed",
	Help: "Message events processed, by source",
}, []string{"source"})

type task struct {
	key string
	evt event.MessageEvent
}

// Runs events on a fixed number of workers, keeping events with the same key (the author) in arrival order.
//
// While a worker holds a key, later events for that key queue behind it and are run by the same worker. Events for other keys proceed in parallel.
type keyedScheduler struct {
	do func(ctx context.Context, evt event.MessageEvent)

	feeder chan *task
	wg     sync.WaitGroup

	lk     sync.Mutex
	active map[string][]*task

	added     prometheus.Counter
	processed prometheus.Counter
	log       *slog.Logger
}

func newKeyedScheduler(workers int, source string, do func(ctx context.Context, evt event.MessageEvent), logger *slog.Logger) *keyedScheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &keyedScheduler{
		do:        do,
		feeder:    make(chan *task),
		active:    make(map[string][]*task),
		added:     workItemsAdded.WithLabelValues(source),
		processed: workItemsProcessed.WithLabelValues(source),
		log:       logger,
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Queues evt behind any in-flight events with the same key. Blocks while every worker is busy with other keys.
//
// Must not be called after Shutdown.
func (s *keyedScheduler) AddWork(ctx context.Context, key string, evt event.MessageEvent) error {
	s.added.Inc()
	t := &task{key: key, evt: evt}

	s.lk.Lock()
	if q, ok := s.active[key]; ok {
		s.active[key] = append(q, t)
		s.lk.Unlock()
		return nil
	}
	s.active[key] = []*task{}
	s.lk.Unlock()

	select {
	case s.feeder <- t:
		return nil
	case <-ctx.Done():
		s.lk.Lock()
		// no worker took the key, so events queued behind it would never run
		q := s.active[key]
		delete(s.active, key)
		s.lk.Unlock()
		for _, f := range q {
			s.log.Warn("dropping queued message event", "author", f.key, "message", f.evt.MessageID)
		}
		return ctx.Err()
	}
}

func (s *keyedScheduler) worker() {
	defer s.wg.Done()
	for t := range s.feeder {
		for t != nil {
			s.do(context.Background(), t.evt)
			s.processed.Inc()

			s.lk.Lock()
			q := s.active[t.key]
			if len(q) == 0 {
				delete(s.active, t.key)
				t = nil
			} else {
				s.active[t.key] = q[1:]
				t = q[0]
			}
			s.lk.Unlock()
		}
	}
}

// Waits for every queued event to finish, then stops the workers.
func (s *keyedScheduler) Shutdown() {
	close(s.feeder)
	s.wg.Wait()
}
