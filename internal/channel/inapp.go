package channel

import (
	"context"

	"github.com/google/uuid"

	"github.com/stolenhq/notify/internal/models"
)

// Feed receives the in-app projection of a dispatched notification. The
// realtime hub implements it.
type Feed interface {
	Publish(userID string, update models.RealTimeUpdate) error
}

// InAppAdapter projects rendered notifications onto the user's live feed.
// It is pull-based on the client side, so it is never quiet-hour
// suppressed and must be delivered in send order; the dispatcher calls it
// synchronously before the queued channels.
type InAppAdapter struct {
	feed Feed
}

func NewInAppAdapter(feed Feed) *InAppAdapter {
	return &InAppAdapter{feed: feed}
}

func (a *InAppAdapter) Name() models.Channel {
	return models.ChannelInApp
}

func (a *InAppAdapter) Deliver(ctx context.Context, n RenderedNotification) error {
	update := models.RealTimeUpdate{
		ID:          uuid.New().String(),
		Type:        models.UpdateTypeFor(n.Category),
		Title:       n.Title,
		Description: n.Message,
		Timestamp:   n.Timestamp,
		Priority:    models.PriorityLevel(n.Priority),
		Data:        n.Metadata,
	}
	if err := a.feed.Publish(n.UserID, update); err != nil {
		return &models.ChannelDeliveryError{Channel: models.ChannelInApp, Err: err}
	}
	return nil
}
