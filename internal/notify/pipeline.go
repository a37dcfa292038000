package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// Deliverer hands a delivery to every live session of its recipient and
// returns how many sessions accepted it.
type Deliverer interface {
	Deliver(d domain.Delivery) int
}

// Publisher forwards committed intents to an external event feed.
type Publisher interface {
	Publish(ctx context.Context, in domain.Intent) error
}

// Options tunes the pipeline.
type Options struct {
	QueueSize int
	Workers   int
}

// Pipeline is the fire-and-forget bridge between committed transitions and
// the hub. Enqueue never blocks; Run drives the workers.
//
// The event feed has its own bounded queue and publisher goroutine, so a
// slow or unreachable broker never holds up live delivery.
type Pipeline struct {
	router    *Router
	hub       Deliverer
	publisher Publisher
	logger    *slog.Logger
	queue     chan domain.Intent
	feed      chan domain.Intent
	workers   int

	dropped     atomic.Int64
	feedDropped atomic.Int64
	delivered   atomic.Int64
}

// NewPipeline constructs a Pipeline. publisher may be nil.
func NewPipeline(router *Router, hub Deliverer, publisher Publisher, logger *slog.Logger, opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	p := &Pipeline{
		router:    router,
		hub:       hub,
		publisher: publisher,
		logger:    logger,
		queue:     make(chan domain.Intent, opts.QueueSize),
		workers:   opts.Workers,
	}
	if publisher != nil {
		p.feed = make(chan domain.Intent, opts.QueueSize)
	}
	return p
}

// Enqueue queues intents for delivery. Intents that do not fit are dropped
// and logged: the transitions behind them are already committed.
func (p *Pipeline) Enqueue(intents ...domain.Intent) {
	for _, in := range intents {
		select {
		case p.queue <- in:
		default:
			p.dropped.Add(1)
			p.logger.Warn("notification queue full, intent dropped",
				"trip_id", in.TripID, "event_type", in.EventType)
		}
	}
}

// Run processes intents until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range p.workers {
		g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	if p.feed != nil {
		g.Go(func() error {
			p.publish(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Stats returns the number of dropped intents and delivered session writes.
func (p *Pipeline) Stats() (dropped, delivered int64) {
	return p.dropped.Load(), p.delivered.Load()
}

// FeedDropped returns the number of intents the event feed queue had no
// room for.
func (p *Pipeline) FeedDropped() int64 {
	return p.feedDropped.Load()
}

func (p *Pipeline) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-p.queue:
			p.handle(ctx, in)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, in domain.Intent) {
	log := p.logger.With("trip_id", in.TripID, "event_type", in.EventType)

	p.forward(in)

	deliveries, err := p.router.Route(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrScopeMismatch) {
			log.Error("scope mismatch, event not delivered", "err", err)
			return
		}
		log.Error("route intent", "err", err)
		return
	}

	sessions := 0
	for _, d := range deliveries {
		sessions += p.hub.Deliver(d)
	}
	p.delivered.Add(int64(sessions))
	log.Debug("intent delivered", "recipients", len(deliveries), "sessions", sessions)
}

// forward hands in to the event feed without waiting.
func (p *Pipeline) forward(in domain.Intent) {
	if p.feed == nil {
		return
	}
	select {
	case p.feed <- in:
	default:
		p.feedDropped.Add(1)
		p.logger.Warn("event feed queue full, intent not published",
			"trip_id", in.TripID, "event_type", in.EventType)
	}
}

func (p *Pipeline) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-p.feed:
			if err := p.publisher.Publish(ctx, in); err != nil {
				p.logger.Warn("publish trip event",
					"trip_id", in.TripID, "event_type", in.EventType, "err", err)
			}
		}
	}
}
