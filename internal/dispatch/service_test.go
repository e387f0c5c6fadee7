package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/channel"
	"github.com/stolenhq/notify/internal/models"
)

// Mock channel adapter
type MockAdapter struct {
	mock.Mock
	channel models.Channel
}

func NewMockAdapter(ch models.Channel) *MockAdapter {
	return &MockAdapter{channel: ch}
}

func (m *MockAdapter) Name() models.Channel { return m.channel }

func (m *MockAdapter) Deliver(ctx context.Context, n channel.RenderedNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// In-memory preference store
type fakeStore struct {
	prefs map[string]models.NotificationPreference
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: make(map[string]models.NotificationPreference)}
}

func (f *fakeStore) key(userID string, c models.Category) string {
	return userID + ":" + string(c)
}

func (f *fakeStore) Get(ctx context.Context, userID string, c models.Category) (models.NotificationPreference, error) {
	if f.err != nil {
		return models.NotificationPreference{}, &models.PreferenceStoreError{Op: "get", Err: f.err}
	}
	p, ok := f.prefs[f.key(userID, c)]
	if !ok {
		return models.NotificationPreference{}, models.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) List(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	if f.err != nil {
		return nil, &models.PreferenceStoreError{Op: "list", Err: f.err}
	}
	var out []models.NotificationPreference
	for _, c := range models.Categories {
		if p, ok := f.prefs[f.key(userID, c)]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceAll(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
	if f.err != nil {
		return &models.PreferenceStoreError{Op: "replace", Err: f.err}
	}
	for _, c := range models.Categories {
		delete(f.prefs, f.key(userID, c))
	}
	for _, p := range prefs {
		p.UserID = userID
		f.prefs[f.key(userID, p.Category)] = p
	}
	return nil
}

// Recording retry queue
type fakeRetryQueue struct {
	published []interface{}
	err       error
}

func (f *fakeRetryQueue) Publish(ctx context.Context, routingKey string, message interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, message)
	return nil
}

func (f *fakeRetryQueue) IsConnected() bool { return true }

func allAdapters() (email, sms, push, inApp *MockAdapter) {
	email = NewMockAdapter(models.ChannelEmail)
	sms = NewMockAdapter(models.ChannelSMS)
	push = NewMockAdapter(models.ChannelPush)
	inApp = NewMockAdapter(models.ChannelInApp)
	return
}

func channelOutcome(t *testing.T, res models.DeliveryResult, ch models.Channel) models.ChannelResult {
	t.Helper()
	for _, cr := range res.Channels {
		if cr.Channel == ch {
			return cr
		}
	}
	t.Fatalf("no result recorded for channel %s", ch)
	return models.ChannelResult{}
}

func TestSend_DefaultPreferenceDeliversInAppOnly(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryDevice,
		Title:    "Device Registered",
		Message:  "Your device is protected",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StatusDelivered, res.Status)
	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelInApp).Outcome)
	assert.Equal(t, models.OutcomeSuppressed, channelOutcome(t, res, models.ChannelEmail).Outcome)
	assert.Equal(t, "preference", channelOutcome(t, res, models.ChannelEmail).Reason)

	inApp.AssertExpectations(t)
	email.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	sms.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	push.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSend_QuietHoursSuppressesAllButInApp(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	store := newFakeStore()
	store.prefs["u1:payment"] = models.NotificationPreference{
		UserID:          "u1",
		Category:        models.CategoryPayment,
		Email:           true,
		Push:            true,
		InApp:           true,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "06:00",
	}

	elevenPM := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		withClock(func() time.Time { return elevenPM }))

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryPayment,
		Title:    "Payment Received",
		Message:  "You received R120.00",
		Priority: models.PriorityOf(5),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelInApp).Outcome)
	assert.Equal(t, "quiet_hours", channelOutcome(t, res, models.ChannelEmail).Reason)
	assert.Equal(t, "quiet_hours", channelOutcome(t, res, models.ChannelPush).Reason)
	email.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	push.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSend_UrgentPriorityBypassesQuietHours(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	email.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	push.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	store := newFakeStore()
	store.prefs["u1:security"] = models.NotificationPreference{
		UserID:          "u1",
		Category:        models.CategorySecurity,
		Email:           true,
		Push:            true,
		InApp:           true,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "06:00",
	}

	elevenPM := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		withClock(func() time.Time { return elevenPM }))

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategorySecurity,
		Title:    "Suspicious Login",
		Message:  "New login from unrecognised device",
		Priority: models.PriorityOf(9),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelEmail).Outcome)
	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelPush).Outcome)
	email.AssertExpectations(t)
	push.AssertExpectations(t)
}

func TestSend_ExpiredEventSuppressedWithoutError(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	past := time.Now().Add(-time.Hour)
	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:    "u1",
		Category:  models.CategoryMarketplace,
		Title:     "Offer Expiring",
		Message:   "Your offer expires soon",
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StatusExpired, res.Status)
	for _, cr := range res.Channels {
		assert.Equal(t, models.OutcomeSuppressed, cr.Outcome)
		assert.Equal(t, "expired", cr.Reason)
	}
	inApp.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSend_ChannelFailureDoesNotAffectOthers(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)
	email.On("Deliver", mock.Anything, mock.Anything).
		Return(&models.ChannelDeliveryError{Channel: models.ChannelEmail, Err: errors.New("smtp down")})

	store := newFakeStore()
	store.prefs["u1:payment"] = models.NotificationPreference{
		UserID: "u1", Category: models.CategoryPayment, Email: true, InApp: true,
	}

	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryPayment,
		Title:    "Payment Received",
		Message:  "You received R50.00",
		Priority: models.PriorityOf(6),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StatusDelivered, res.Status)
	assert.Equal(t, models.OutcomeFailed, channelOutcome(t, res, models.ChannelEmail).Outcome)
	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelInApp).Outcome)
}

func TestSend_PreferenceStoreOutageDefersEvent(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	store := newFakeStore()
	store.err = errors.New("connection refused")
	retry := &fakeRetryQueue{}

	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		WithRetryQueue(retry, "retry.queue"))

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryDevice,
		Title:    "Device Registered",
		Message:  "Your device is protected",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusDeferred, res.Status)
	assert.Len(t, retry.published, 1)
	inApp.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestSend_ScheduledEventGoesToRetryQueue(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	retry := &fakeRetryQueue{}
	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		WithRetryQueue(retry, "retry.queue"))

	future := time.Now().Add(2 * time.Hour)
	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:       "u1",
		Category:     models.CategoryMarketplace,
		Title:        "Price Drop",
		Message:      "A listing you watch dropped in price",
		ScheduledFor: &future,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.StatusScheduled, res.Status)
	assert.Len(t, retry.published, 1)
}

func TestSend_MalformedEventRejectedSynchronously(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	_, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: "telegram",
		Title:    "Hello",
		Message:  "World",
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category", verr.Field)
}

func TestSendBatch_IsolatesFailures(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	events := []models.NotificationEvent{
		{UserID: "u1", Category: models.CategoryDevice, Title: "A", Message: "first"},
		{UserID: "u2", Category: models.CategoryDevice, Title: "B"}, // missing message
		{UserID: "u3", Category: models.CategoryDevice, Title: "C", Message: "third"},
	}
	results := svc.SendBatch(context.Background(), events)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "message")
	assert.True(t, results[2].Success)
}

func TestSendBatch_SameUserKeepsSubmissionOrder(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	var delivered []string
	inApp.On("Deliver", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			n := args.Get(1).(channel.RenderedNotification)
			delivered = append(delivered, n.Type)
		}).
		Return(nil)

	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	events := []models.NotificationEvent{
		{UserID: "u1", Category: models.CategoryPayment, Type: "first", Title: "1", Message: "m", Priority: models.PriorityOf(5)},
		{UserID: "u1", Category: models.CategoryPayment, Type: "second", Title: "2", Message: "m", Priority: models.PriorityOf(5)},
		{UserID: "u1", Category: models.CategoryPayment, Type: "third", Title: "3", Message: "m", Priority: models.PriorityOf(5)},
	}
	svc.SendBatch(context.Background(), events)

	assert.Equal(t, []string{"first", "second", "third"}, delivered)
}

func TestSend_HighPriorityPaymentScenario(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	// quiet hours cover the dispatch time, but priority 8 bypasses them;
	// the remaining channels stay off because the default preference
	// disables them
	tenPM := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		withClock(func() time.Time { return tenPM }))

	res, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryPayment,
		Type:     "payment_received",
		Title:    "Payment Received",
		Message:  "You received R850.00",
		Priority: models.PriorityOf(8),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelInApp).Outcome)
	assert.Equal(t, "preference", channelOutcome(t, res, models.ChannelEmail).Reason)
	assert.Equal(t, "preference", channelOutcome(t, res, models.ChannelSMS).Reason)
	assert.Equal(t, "preference", channelOutcome(t, res, models.ChannelPush).Reason)
}

func TestSend_DeferredEventDeliversOnReplay(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})

	email, sms, push, inApp := allAdapters()
	inApp.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	store := newFakeStore()
	store.err = errors.New("connection refused")
	retry := &fakeRetryQueue{}

	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop(),
		WithRetryQueue(retry, "retry.queue"),
		WithIdempotency(NewRedisIdempotency(rdb, time.Hour)))

	event := models.NotificationEvent{
		ID:       "evt-defer-1",
		UserID:   "u1",
		Category: models.CategoryDevice,
		Title:    "Device Registered",
		Message:  "Your device is protected",
	}

	res, err := svc.Send(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeferred, res.Status)
	require.Len(t, retry.published, 1)
	inApp.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)

	// the store recovers and the retry consumer replays the same event;
	// the deferral must not have burned its id
	store.err = nil
	res, err = svc.Send(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, res.Status)
	assert.Equal(t, models.OutcomeDelivered, channelOutcome(t, res, models.ChannelInApp).Outcome)
	inApp.AssertNumberOfCalls(t, "Deliver", 1)

	// after the delivery the id is spent
	res, err = svc.Send(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, res.Status)
	inApp.AssertNumberOfCalls(t, "Deliver", 1)
}

func TestSend_ExplicitZeroPriorityIsKept(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	var rendered channel.RenderedNotification
	inApp.On("Deliver", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			rendered = args.Get(1).(channel.RenderedNotification)
		}).
		Return(nil)

	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	_, err := svc.Send(context.Background(), models.NotificationEvent{
		UserID:   "u1",
		Category: models.CategoryMarketplace,
		Title:    "Digest",
		Message:  "Weekly summary",
		Priority: models.PriorityOf(0),
	})
	require.NoError(t, err)

	// zero is a real priority, not an omission; the category baseline only
	// applies when the field is absent
	assert.Equal(t, 0, rendered.Priority)
}

func TestUpdatePreferences_RejectsDuplicateCategory(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	svc := NewService(newFakeStore(), []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	err := svc.UpdatePreferences(context.Background(), "u1", []models.NotificationPreference{
		{Category: models.CategoryPayment, InApp: true},
		{Category: models.CategoryPayment, Email: true},
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "more than once")
}

func TestGetPreferences_FillsDefaults(t *testing.T) {
	email, sms, push, inApp := allAdapters()
	store := newFakeStore()
	store.prefs["u1:security"] = models.NotificationPreference{
		UserID: "u1", Category: models.CategorySecurity, Email: true, SMS: true, InApp: true,
	}
	svc := NewService(store, []channel.Adapter{email, sms, push, inApp}, zap.NewNop())

	got, err := svc.GetPreferences(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, len(models.Categories))

	for _, p := range got {
		if p.Category == models.CategorySecurity {
			assert.True(t, p.Email)
			assert.True(t, p.SMS)
			continue
		}
		// defaults: in-app only
		assert.True(t, p.InApp, "category %s", p.Category)
		assert.False(t, p.Email, "category %s", p.Category)
		assert.False(t, p.SMS, "category %s", p.Category)
		assert.False(t, p.Push, "category %s", p.Category)
	}
}

func TestDefaultPriorityFor(t *testing.T) {
	assert.Equal(t, 8, DefaultPriorityFor(models.CategorySecurity))
	assert.Equal(t, 6, DefaultPriorityFor(models.CategoryPayment))
	assert.Equal(t, 4, DefaultPriorityFor(models.CategoryCommunity))
}
