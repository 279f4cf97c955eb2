package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// Publisher sends reservation events to a durable topic exchange.  The
// connection is opened on first use and reopened after the broker drops it,
// so a broker outage only costs the events published during it.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the exchange at url.  No connection is
// made until the first publish.
func NewPublisher(url, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, exchange: exchange, log: logger.With("component", "publisher")}
}

// ReservationConfirmed publishes a reservation.confirmed event.
func (p *Publisher) ReservationConfirmed(ctx context.Context, r model.Reservation) error {
	return p.PublishJSON(ctx, RKReservationConfirmed, NewReservationEvent(r, time.Now()))
}

// ReservationCancelled publishes a reservation.cancelled event.
func (p *Publisher) ReservationCancelled(ctx context.Context, r model.Reservation) error {
	return p.PublishJSON(ctx, RKReservationCancelled, NewReservationEvent(r, time.Now()))
}

// PublishJSON marshals v and publishes it as a persistent message under key.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.WarnContext(ctx, "publish failed", "key", key, "error", err)
		p.reset()
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// channel returns an open channel, dialing if needed.  Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the broker connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
