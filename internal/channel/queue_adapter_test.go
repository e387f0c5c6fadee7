package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolenhq/notify/internal/models"
	"github.com/stolenhq/notify/pkg/circuitbreaker"
)

type flakyPublisher struct {
	err   error
	calls int
}

func (p *flakyPublisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	p.calls++
	return p.err
}

func (p *flakyPublisher) IsConnected() bool { return p.err == nil }

func TestQueueAdapterFailsFastWhenBrokerIsDown(t *testing.T) {
	pub := &flakyPublisher{err: errors.New("connection refused")}
	adapter := NewEmailAdapter(pub, "email.queue",
		circuitbreaker.Settings{MinRequests: 3, FailureRatio: 0.6, Cooldown: time.Minute})

	n := RenderedNotification{EventID: "evt-1", UserID: "u1", Channel: models.ChannelEmail}

	for i := 0; i < 3; i++ {
		err := adapter.Deliver(context.Background(), n)
		var derr *models.ChannelDeliveryError
		require.ErrorAs(t, err, &derr)
	}

	// breaker is open now: delivery fails without touching the broker
	before := pub.calls
	err := adapter.Deliver(context.Background(), n)
	var derr *models.ChannelDeliveryError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, derr.Err, gobreaker.ErrOpenState)
	assert.Equal(t, before, pub.calls)
}

func TestQueueAdapterPublishesRenderedNotification(t *testing.T) {
	pub := &flakyPublisher{}
	adapter := NewSMSAdapter(pub, "sms.queue", circuitbreaker.DefaultSettings())

	err := adapter.Deliver(context.Background(), RenderedNotification{
		EventID: "evt-2", UserID: "u1", Channel: models.ChannelSMS,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
}
