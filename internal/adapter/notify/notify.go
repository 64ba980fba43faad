// Package notify is a fire-and-forget RabbitMQ sink for dispatch events.
// Nothing in the dispatch core waits on a publish succeeding: a ride is
// created, assigned, or failed based on the Store alone, and a dropped
// notification never rolls any of that back.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/rabbit"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys for the events this core emits.
const (
	RideRequested = "ride.requested"
	RideAssigned  = "ride.assigned"
	RideFailed    = "ride.failed"
	RideCanceled  = "ride.canceled"
	OfferSent     = "offer.sent"
)

type Publisher struct {
	client   *rabbit.RabbitMQ
	exchange string
}

func New(client *rabbit.RabbitMQ, exchange string) (*Publisher, error) {
	if err := client.Channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{client: client, exchange: exchange}, nil
}

// Publish marshals event as JSON and publishes it under routingKey.
// Failures are retried a handful of times and then returned for the
// caller to log and move on from.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	ctx = wrap.WithAction(ctx, types.ActionNotifyPublish)

	body, err := json.Marshal(event)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("marshal event: %w", err))
	}

	pub := amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	}

	if err := retry(3, 500*time.Millisecond, func() error {
		return p.client.Channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, pub)
	}); err != nil {
		return wrap.Error(ctx, fmt.Errorf("publish %s: %w", routingKey, err))
	}
	return nil
}

func retry(n int, sleep time.Duration, fn func() error) error {
	var err error
	for i := 0; i < n; i++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(sleep)
	}
	return err
}
