// Package broker publishes trip events to RabbitMQ so that collaborators such
// as the history feed can consume them. Delivery to connected users does not
// depend on it.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// Exchange is the topic exchange trip events are published to.
const Exchange = "trip_events"

const (
	dialAttempts   = 5
	dialTimeout    = 5 * time.Second
	redialInterval = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var errNotConnected = errors.New("broker: channel not available")

// RoutingKey returns the routing key for an event type, e.g. trip.no_show.
func RoutingKey(e domain.EventType) string {
	return "trip." + string(e)
}

// Publisher owns one AMQP connection and channel and reopens them when the
// server closes them.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	lastRedial time.Time
	now        func() time.Time
}

// Dial connects to url, retrying with backoff until ctx ends or the attempts
// run out, and declares the exchange.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{url: url, logger: logger, now: time.Now}

	delay := time.Second
	for attempt := 1; ; attempt++ {
		err := p.connect()
		if err == nil {
			logger.Info("broker connected", "exchange", Exchange, "attempt", attempt)
			return p, nil
		}
		if attempt == dialAttempts {
			return nil, fmt.Errorf("broker.Dial: after %d attempts: %w", attempt, err)
		}
		logger.Warn("broker connection failed", "attempt", attempt, "retry_in", delay.String(), "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}

func (p *Publisher) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()
	return nil
}

// channel returns the open channel, redialling at most once per
// redialInterval. Between attempts it fails fast with errNotConnected.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	ch := p.ch
	if ch != nil && !ch.IsClosed() {
		p.mu.Unlock()
		return ch, nil
	}
	if !p.dueRedial() {
		p.mu.Unlock()
		return nil, errNotConnected
	}
	p.lastRedial = p.now()
	p.mu.Unlock()

	p.logger.Warn("broker channel closed, reconnecting")
	p.closeConn()
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", errNotConnected, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch, nil
}

// dueRedial reports whether enough time has passed since the last redial.
// p.mu must be held.
func (p *Publisher) dueRedial() bool {
	return p.lastRedial.IsZero() || p.now().Sub(p.lastRedial) >= redialInterval
}

// Publish sends one intent as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, intent domain.Intent) error {
	msg, err := message(intent)
	if err != nil {
		return fmt.Errorf("broker.Publisher.Publish: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("broker.Publisher.Publish: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := ch.PublishWithContext(ctx, Exchange, RoutingKey(intent.EventType), false, false, msg); err != nil {
		return fmt.Errorf("broker.Publisher.Publish: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	return p.closeConn()
}

func (p *Publisher) closeConn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}

func message(intent domain.Intent) (amqp.Publishing, error) {
	body, err := json.Marshal(intent)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    intent.OccurredAt,
		Type:         string(intent.EventType),
		MessageId:    intent.TripID.String() + ":" + string(intent.EventType) + ":" + intent.OccurredAt.Format(time.RFC3339Nano),
		Body:         body,
	}, nil
}
