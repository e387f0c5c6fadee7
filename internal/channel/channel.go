package channel

import (
	"context"
	"time"

	"github.com/stolenhq/notify/internal/models"
)

// RenderedNotification is what the dispatcher hands to a delivery adapter:
// the event's text plus its passthrough metadata, already bound to one
// channel. Adapters never look back at preferences or quiet hours.
type RenderedNotification struct {
	EventID       string                 `json:"event_id"`
	UserID        string                 `json:"user_id"`
	Category      models.Category        `json:"category"`
	Type          string                 `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Priority      int                    `json:"priority"`
	Channel       models.Channel         `json:"channel"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// Adapter is the single contract every delivery channel implements. A failed
// Deliver is recorded against that channel only; it never affects siblings.
type Adapter interface {
	Name() models.Channel
	Deliver(ctx context.Context, n RenderedNotification) error
}
