package channel

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/stolenhq/notify/internal/models"
	"github.com/stolenhq/notify/internal/queue"
	"github.com/stolenhq/notify/pkg/circuitbreaker"
)

// QueueAdapter delivers by publishing the rendered notification onto a
// per-channel queue, where a downstream worker owns the provider call.
// The breaker trips when the broker is down so dispatch fails fast instead
// of piling up publish timeouts.
type QueueAdapter struct {
	channel    models.Channel
	routingKey string
	publisher  queue.Publisher
	cb         *gobreaker.CircuitBreaker
}

func NewQueueAdapter(channel models.Channel, routingKey string, publisher queue.Publisher, breaker circuitbreaker.Settings) *QueueAdapter {
	return &QueueAdapter{
		channel:    channel,
		routingKey: routingKey,
		publisher:  publisher,
		cb:         circuitbreaker.New(string(channel)+"-channel", breaker),
	}
}

func NewEmailAdapter(publisher queue.Publisher, routingKey string, breaker circuitbreaker.Settings) *QueueAdapter {
	return NewQueueAdapter(models.ChannelEmail, routingKey, publisher, breaker)
}

func NewSMSAdapter(publisher queue.Publisher, routingKey string, breaker circuitbreaker.Settings) *QueueAdapter {
	return NewQueueAdapter(models.ChannelSMS, routingKey, publisher, breaker)
}

func NewPushAdapter(publisher queue.Publisher, routingKey string, breaker circuitbreaker.Settings) *QueueAdapter {
	return NewQueueAdapter(models.ChannelPush, routingKey, publisher, breaker)
}

func (a *QueueAdapter) Name() models.Channel {
	return a.channel
}

func (a *QueueAdapter) Deliver(ctx context.Context, n RenderedNotification) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.publisher.Publish(ctx, a.routingKey, n)
	})
	if err != nil {
		return &models.ChannelDeliveryError{Channel: a.channel, Err: err}
	}
	return nil
}
