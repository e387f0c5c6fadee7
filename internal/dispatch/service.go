package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stolenhq/notify/internal/channel"
	"github.com/stolenhq/notify/internal/models"
	"github.com/stolenhq/notify/internal/prefs"
	"github.com/stolenhq/notify/internal/queue"
)

type ctxKey int

const correlationIDKey ctxKey = 0

// WithCorrelationID tags the context so every channel delivery for this
// request carries the same trace id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// defaultPriorities are the category baselines applied when an event omits
// its priority.
var defaultPriorities = map[models.Category]int{
	models.CategorySecurity: 8,
	models.CategoryPayment:  6,
	models.CategoryTransfer: 6,
	models.CategoryAdmin:    5,
}

const defaultPriority = 4

// DefaultPriorityFor returns the baseline priority for a category.
func DefaultPriorityFor(category models.Category) int {
	if p, ok := defaultPriorities[category]; ok {
		return p
	}
	return defaultPriority
}

// Idempotency remembers event ids so a replayed Send does not deliver
// twice. Mark is called only once dispatch reaches a terminal outcome;
// deferred and scheduled events stay unmarked so their retry replays.
type Idempotency interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Service resolves domain events into concrete channel deliveries. Build
// one at the composition root and hand references to producers; there is
// deliberately no package-level instance.
type Service struct {
	store          prefs.Store
	adapters       map[models.Channel]channel.Adapter
	retry          queue.Publisher
	retryKey       string
	idem           Idempotency
	channelTimeout time.Duration
	batchWorkers   int
	now            func() time.Time
	log            *zap.Logger
}

type Option func(*Service)

// WithIdempotency enables duplicate-suppression keyed on event id.
func WithIdempotency(idem Idempotency) Option {
	return func(s *Service) { s.idem = idem }
}

// WithRetryQueue routes deferred events (store outage, future schedule) to
// a queue for later redelivery.
func WithRetryQueue(pub queue.Publisher, routingKey string) Option {
	return func(s *Service) {
		s.retry = pub
		s.retryKey = routingKey
	}
}

func WithChannelTimeout(d time.Duration) Option {
	return func(s *Service) { s.channelTimeout = d }
}

func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// withClock is test-only: it pins "now" for quiet-hours and expiry checks.
func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store prefs.Store, adapters []channel.Adapter, log *zap.Logger, opts ...Option) *Service {
	byName := make(map[models.Channel]channel.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	s := &Service{
		store:          store,
		adapters:       byName,
		channelTimeout: 5 * time.Second,
		batchWorkers:   8,
		now:            time.Now,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send resolves one event against the user's preferences and fans it out.
// Validation failures return synchronously; store outages defer the event
// to the retry queue; individual channel failures are recorded per channel
// and never abort the rest.
func (s *Service) Send(ctx context.Context, event models.NotificationEvent) (models.DeliveryResult, error) {
	now := s.now()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.Priority == nil {
		event.Priority = models.PriorityOf(DefaultPriorityFor(event.Category))
	}

	result := models.DeliveryResult{EventID: event.ID, DispatchedAt: now}

	if err := event.Validate(); err != nil {
		result.Status = models.StatusFailed
		result.Error = err.Error()
		return result, err
	}

	if s.idem != nil {
		seen, err := s.idem.Seen(ctx, event.ID)
		if err != nil {
			// idempotency is best effort; a dead store must not block dispatch
			s.log.Warn("idempotency check failed", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen {
			result.Status = models.StatusDuplicate
			result.Success = true
			return result, nil
		}
	}

	if event.ExpiresAt != nil && event.ExpiresAt.Before(now) {
		result.Status = models.StatusExpired
		result.Success = true
		for _, ch := range s.requestedChannels(event) {
			result.Channels = append(result.Channels, models.ChannelResult{
				Channel: ch, Outcome: models.OutcomeSuppressed, Reason: "expired",
			})
		}
		s.markProcessed(ctx, event.ID)
		return result, nil
	}

	if event.ScheduledFor != nil && event.ScheduledFor.After(now) {
		return s.deferEvent(ctx, event, result, models.StatusScheduled, "scheduled for later delivery")
	}

	pref, err := s.store.Get(ctx, event.UserID, event.Category)
	if err == models.ErrNotFound {
		pref = models.DefaultPreference(event.UserID, event.Category)
	} else if err != nil {
		s.log.Error("preference lookup failed, deferring event",
			zap.String("event_id", event.ID),
			zap.String("user_id", event.UserID),
			zap.Error(err))
		return s.deferEvent(ctx, event, result, models.StatusDeferred, "preference store unavailable")
	}

	plan := s.plan(event, pref)
	quiet := pref.InQuietHours(now) && *event.Priority < models.UrgentPriority

	delivered := 0
	suppressed := 0

	// In-app goes first and synchronously so the feed sees events in send
	// order even when slower channels straggle.
	if decision, ok := plan[models.ChannelInApp]; ok {
		outcome := s.deliverOne(ctx, event, models.ChannelInApp, decision)
		result.Channels = append(result.Channels, outcome)
		switch outcome.Outcome {
		case models.OutcomeDelivered:
			delivered++
		case models.OutcomeSuppressed:
			suppressed++
		}
		delete(plan, models.ChannelInApp)
	}

	for _, ch := range orderedChannels(plan) {
		decision := plan[ch]
		if quiet && decision == decideDeliver {
			decision = decideQuietHours
		}
		outcome := s.deliverOne(ctx, event, ch, decision)
		result.Channels = append(result.Channels, outcome)
		switch outcome.Outcome {
		case models.OutcomeDelivered:
			delivered++
		case models.OutcomeSuppressed:
			suppressed++
		}
	}

	switch {
	case delivered > 0:
		result.Status = models.StatusDelivered
		result.Success = true
	case suppressed == len(result.Channels) && len(result.Channels) > 0:
		result.Status = models.StatusSuppressed
		result.Success = true
	default:
		result.Status = models.StatusFailed
		result.Error = "all channels failed"
	}

	// only terminal outcomes are marked; a failed dispatch stays unmarked
	// so the producer can retry it
	if result.Success {
		s.markProcessed(ctx, event.ID)
	}

	s.log.Info("dispatched notification",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("category", string(event.Category)),
		zap.String("status", string(result.Status)),
		zap.Int("delivered", delivered))
	return result, nil
}

func (s *Service) markProcessed(ctx context.Context, eventID string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Mark(ctx, eventID); err != nil {
		s.log.Warn("idempotency mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

type decision int

const (
	decideDeliver decision = iota
	decideDisabled
	decideQuietHours
)

// plan computes the per-channel decision before any delivery starts: the
// requested channel set intersected with the preference, with disabled
// channels kept in the plan so the result can report the suppression.
func (s *Service) plan(event models.NotificationEvent, pref models.NotificationPreference) map[models.Channel]decision {
	out := make(map[models.Channel]decision)
	for _, ch := range s.requestedChannels(event) {
		if pref.ChannelEnabled(ch) {
			out[ch] = decideDeliver
		} else {
			out[ch] = decideDisabled
		}
	}
	return out
}

// requestedChannels is the event's explicit override, or every channel the
// preference could enable when the event leaves it open.
func (s *Service) requestedChannels(event models.NotificationEvent) []models.Channel {
	if len(event.Channels) > 0 {
		return event.Channels
	}
	return models.Channels
}

func orderedChannels(plan map[models.Channel]decision) []models.Channel {
	out := make([]models.Channel, 0, len(plan))
	for ch := range plan {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) deliverOne(ctx context.Context, event models.NotificationEvent, ch models.Channel, d decision) models.ChannelResult {
	switch d {
	case decideDisabled:
		return models.ChannelResult{Channel: ch, Outcome: models.OutcomeSuppressed, Reason: "preference"}
	case decideQuietHours:
		return models.ChannelResult{Channel: ch, Outcome: models.OutcomeSuppressed, Reason: "quiet_hours"}
	}

	adapter, ok := s.adapters[ch]
	if !ok {
		return models.ChannelResult{Channel: ch, Outcome: models.OutcomeFailed, Reason: "no adapter registered"}
	}

	dctx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	defer cancel()
	rendered := channel.RenderedNotification{
		EventID:       event.ID,
		UserID:        event.UserID,
		Category:      event.Category,
		Type:          event.Type,
		Title:         event.Title,
		Message:       event.Message,
		Metadata:      event.Metadata,
		Priority:      *event.Priority,
		Channel:       ch,
		Timestamp:     event.CreatedAt,
		CorrelationID: correlationID(ctx),
	}
	if err := adapter.Deliver(dctx, rendered); err != nil {
		s.log.Warn("channel delivery failed",
			zap.String("event_id", event.ID),
			zap.String("channel", string(ch)),
			zap.Error(err))
		return models.ChannelResult{Channel: ch, Outcome: models.OutcomeFailed, Reason: err.Error()}
	}
	return models.ChannelResult{Channel: ch, Outcome: models.OutcomeDelivered}
}

// deferEvent parks the event on the retry queue instead of dropping it.
func (s *Service) deferEvent(ctx context.Context, event models.NotificationEvent, result models.DeliveryResult, status models.DeliveryStatus, reason string) (models.DeliveryResult, error) {
	result.Status = status
	if s.retry == nil {
		result.Error = fmt.Sprintf("%s and no retry queue configured", reason)
		return result, fmt.Errorf("cannot defer event %s: no retry queue", event.ID)
	}
	if err := s.retry.Publish(ctx, s.retryKey, event); err != nil {
		result.Error = fmt.Sprintf("%s; retry enqueue failed: %v", reason, err)
		return result, fmt.Errorf("defer event %s: %w", event.ID, err)
	}
	result.Error = reason
	if status == models.StatusScheduled {
		result.Success = true
	}
	return result, nil
}

// SendBatch dispatches events with per-item isolation: one malformed event
// never aborts its neighbours. Different users run concurrently; one
// user's events stay in submission order.
func (s *Service) SendBatch(ctx context.Context, events []models.NotificationEvent) []models.DeliveryResult {
	results := make([]models.DeliveryResult, len(events))

	byUser := make(map[string][]int)
	var order []string
	for i, e := range events {
		if _, ok := byUser[e.UserID]; !ok {
			order = append(order, e.UserID)
		}
		byUser[e.UserID] = append(byUser[e.UserID], i)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.batchWorkers)
	for _, user := range order {
		indexes := byUser[user]
		eg.Go(func() error {
			for _, i := range indexes {
				res, err := s.Send(gctx, events[i])
				if err != nil && res.Error == "" {
					res.Error = err.Error()
				}
				results[i] = res
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// GetPreferences returns one preference per category in canonical order,
// synthesising defaults for categories the user never configured.
func (s *Service) GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	stored, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[models.Category]models.NotificationPreference, len(stored))
	for _, p := range stored {
		byCategory[p.Category] = p
	}
	out := make([]models.NotificationPreference, 0, len(models.Categories))
	for _, category := range models.Categories {
		if p, ok := byCategory[category]; ok {
			out = append(out, p)
		} else {
			out = append(out, models.DefaultPreference(userID, category))
		}
	}
	return out, nil
}

// UpdatePreferences validates and stores a full replacement preference set.
// Each category may appear at most once.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
	seen := make(map[models.Category]bool, len(prefs))
	for _, p := range prefs {
		if !p.Category.Valid() {
			return &models.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", p.Category)}
		}
		if seen[p.Category] {
			return &models.ValidationError{Field: "category", Reason: fmt.Sprintf("category %q appears more than once", p.Category)}
		}
		seen[p.Category] = true
	}
	return s.store.ReplaceAll(ctx, userID, prefs)
}
