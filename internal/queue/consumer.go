package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/service"
)

const (
	prefetch   = 50
	maxBackoff = 30 * time.Second
)

// PaymentApplier applies a verified payment outcome to its reservation.
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, o payment.Outcome) (model.Reservation, error)
}

// PaymentConsumer reads provider notifications relayed onto the payment
// queue and settles the matching holds.
type PaymentConsumer struct {
	url      string
	exchange string
	queue    string
	signer   *payment.Signer
	applier  PaymentApplier
	log      *slog.Logger
}

// NewPaymentConsumer returns a consumer of queue, bound to exchange for every
// payment event.
func NewPaymentConsumer(url, exchange, queue string, signer *payment.Signer, applier PaymentApplier, logger *slog.Logger) *PaymentConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentConsumer{
		url:      url,
		exchange: exchange,
		queue:    queue,
		signer:   signer,
		applier:  applier,
		log:      logger.With("component", "payment-consumer"),
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff
// whenever the broker goes away.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *PaymentConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, RKPaymentEvents, c.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming payment events", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch c.handle(ctx, d.Body) {
			case ack:
				_ = d.Ack(false)
			case requeue:
				_ = d.Nack(false, true)
			case drop:
				_ = d.Nack(false, false)
			}
		}
	}
}

type verdict int

const (
	ack verdict = iota
	requeue
	drop
)

// handle decides the fate of one delivery.  Only storage trouble is worth a
// redelivery; malformed, forged or stale notifications would fail the same
// way again.  Events this service does not act on are acknowledged.
func (c *PaymentConsumer) handle(ctx context.Context, body []byte) verdict {
	var n payment.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		c.log.WarnContext(ctx, "malformed payment event", "error", err)
		return drop
	}
	o, err := c.signer.VerifyNotification(n)
	if errors.Is(err, payment.ErrUnknownEvent) {
		c.log.InfoContext(ctx, "ignoring payment event", "event", n.Event, "payment_id", n.Object.ID)
		return ack
	}
	if err != nil {
		c.log.WarnContext(ctx, "rejected payment event", "event", n.Event, "payment_id", n.Object.ID, "error", err)
		return drop
	}
	_, err = c.applier.ApplyPayment(ctx, o)
	switch {
	case err == nil:
		return ack
	case errors.Is(err, service.ErrAlreadyResolved), errors.Is(err, service.ErrNotFound):
		c.log.InfoContext(ctx, "payment event for settled reservation",
			"reservation_id", o.ReservationID, "error", err)
		return ack
	case errors.Is(err, service.ErrUnavailable):
		c.log.WarnContext(ctx, "payment event deferred", "reservation_id", o.ReservationID, "error", err)
		return requeue
	}
	c.log.ErrorContext(ctx, "payment event failed", "reservation_id", o.ReservationID, "error", err)
	return drop
}

// sleep waits for d or until ctx is done, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
