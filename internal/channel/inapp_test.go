package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolenhq/notify/internal/models"
)

type recordingFeed struct {
	userIDs []string
	updates []models.RealTimeUpdate
}

func (f *recordingFeed) Publish(userID string, u models.RealTimeUpdate) error {
	f.userIDs = append(f.userIDs, userID)
	f.updates = append(f.updates, u)
	return nil
}

func TestInAppAdapterProjectsNotification(t *testing.T) {
	feed := &recordingFeed{}
	adapter := NewInAppAdapter(feed)
	assert.Equal(t, models.ChannelInApp, adapter.Name())

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	err := adapter.Deliver(context.Background(), RenderedNotification{
		EventID:   "evt-1",
		UserID:    "u1",
		Category:  models.CategoryPayment,
		Type:      "payment_received",
		Title:     "Payment Received",
		Message:   "You received R850.00",
		Metadata:  map[string]interface{}{"amount": "R850.00"},
		Priority:  8,
		Channel:   models.ChannelInApp,
		Timestamp: ts,
	})
	require.NoError(t, err)

	require.Len(t, feed.updates, 1)
	u := feed.updates[0]
	assert.Equal(t, "u1", feed.userIDs[0])
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.UpdateTransaction, u.Type)
	assert.Equal(t, "Payment Received", u.Title)
	assert.Equal(t, "You received R850.00", u.Description)
	assert.Equal(t, models.PriorityHigh, u.Priority)
	assert.Equal(t, ts, u.Timestamp)
	assert.False(t, u.Read)
}
