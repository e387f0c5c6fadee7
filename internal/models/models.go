package models

import (
	"errors"
	"fmt"
	"time"
)

// Category is the closed set of notification domains.
type Category string

const (
	CategoryDevice      Category = "device"
	CategoryMarketplace Category = "marketplace"
	CategoryInsurance   Category = "insurance"
	CategoryRepair      Category = "repair"
	CategoryPayment     Category = "payment"
	CategorySecurity    Category = "security"
	CategoryAdmin       Category = "admin"
	CategoryLostFound   Category = "lost_found"
	CategoryCommunity   Category = "community"
	CategoryTransfer    Category = "transfer"
)

// Categories lists every valid category in a stable order, used for
// preference listings and validation.
var Categories = []Category{
	CategoryDevice,
	CategoryMarketplace,
	CategoryInsurance,
	CategoryRepair,
	CategoryPayment,
	CategorySecurity,
	CategoryAdmin,
	CategoryLostFound,
	CategoryCommunity,
	CategoryTransfer,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Channel is a delivery mechanism for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (ch Channel) Valid() bool {
	switch ch {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// UrgentPriority is the threshold at or above which an event bypasses
// quiet-hours suppression.
const UrgentPriority = 8

// PriorityOf returns a pointer for an explicit 0-10 priority. A nil
// Priority on an event means "use the category baseline"; an explicit
// zero stays zero.
func PriorityOf(n int) *int {
	return &n
}

// NotificationEvent is the unit of dispatch. Immutable once created.
type NotificationEvent struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Category     Category               `json:"category"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Priority     *int                   `json:"priority,omitempty"`
	Channels     []Channel              `json:"channels,omitempty"`
	ScheduledFor *time.Time             `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Validate rejects malformed events before any dispatch work begins.
// A validation failure is permanent and never retried.
func (e *NotificationEvent) Validate() error {
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if e.Category == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if !e.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", e.Category)}
	}
	if e.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if e.Message == "" {
		return &ValidationError{Field: "message", Reason: "required"}
	}
	if e.Priority != nil && (*e.Priority < 0 || *e.Priority > 10) {
		return &ValidationError{Field: "priority", Reason: "must be between 0 and 10"}
	}
	for _, ch := range e.Channels {
		if !ch.Valid() {
			return &ValidationError{Field: "channels", Reason: fmt.Sprintf("unknown channel %q", ch)}
		}
	}
	return nil
}

// Frequency is the delivery cadence policy on a preference.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyBatched   Frequency = "batched"
	FrequencyDigest    Frequency = "digest"
)

// NotificationPreference holds one user's settings for one category.
// Exactly one record exists per (user, category) pair; absence means
// DefaultPreference applies.
type NotificationPreference struct {
	UserID          string          `json:"user_id"`
	Category        Category        `json:"category"`
	Email           bool            `json:"email"`
	SMS             bool            `json:"sms"`
	Push            bool            `json:"push"`
	InApp           bool            `json:"in_app"`
	Frequency       Frequency       `json:"frequency"`
	QuietHoursStart string          `json:"quiet_hours_start,omitempty"` // "HH:MM", 24h
	QuietHoursEnd   string          `json:"quiet_hours_end,omitempty"`
	Filters         map[string]bool `json:"filters,omitempty"`
}

// DefaultPreference is what applies when no record is stored: in-app on,
// everything else off.
func DefaultPreference(userID string, category Category) NotificationPreference {
	return NotificationPreference{
		UserID:    userID,
		Category:  category,
		InApp:     true,
		Frequency: FrequencyImmediate,
	}
}

// ChannelEnabled reports whether the preference allows the given channel.
func (p NotificationPreference) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelPush:
		return p.Push
	case ChannelInApp:
		return p.InApp
	}
	return false
}

// EnabledChannels returns the channels this preference turns on, in the
// canonical channel order.
func (p NotificationPreference) EnabledChannels() []Channel {
	var out []Channel
	for _, ch := range Channels {
		if p.ChannelEnabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// InQuietHours reports whether t falls inside the configured quiet window.
// The window is [start, end) and may wrap midnight. An unset or malformed
// window never suppresses.
func (p NotificationPreference) InQuietHours(t time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	// wraps midnight, e.g. 22:00 -> 06:00
	return now >= start || now < end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// ChannelOutcome records what happened on one channel during dispatch.
type ChannelOutcome string

const (
	OutcomeDelivered  ChannelOutcome = "delivered"
	OutcomeFailed     ChannelOutcome = "failed"
	OutcomeSuppressed ChannelOutcome = "suppressed"
	OutcomeDeferred   ChannelOutcome = "deferred"
)

// DeliveryStatus summarises a whole dispatch.
type DeliveryStatus string

const (
	StatusDelivered  DeliveryStatus = "delivered"
	StatusSuppressed DeliveryStatus = "suppressed"
	StatusExpired    DeliveryStatus = "expired"
	StatusScheduled  DeliveryStatus = "scheduled"
	StatusDeferred   DeliveryStatus = "deferred"
	StatusFailed     DeliveryStatus = "failed"
	StatusDuplicate  DeliveryStatus = "duplicate"
)

// ChannelResult is the per-channel entry inside a DeliveryResult.
type ChannelResult struct {
	Channel Channel        `json:"channel"`
	Outcome ChannelOutcome `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
}

// DeliveryResult is returned from every Send call. Success is true when at
// least one channel delivered or the event was legitimately suppressed.
type DeliveryResult struct {
	EventID      string          `json:"event_id"`
	Status       DeliveryStatus  `json:"status"`
	Success      bool            `json:"success"`
	Channels     []ChannelResult `json:"channels,omitempty"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}

// ValidationError marks a malformed event or preference payload. It is
// surfaced synchronously and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// PreferenceStoreError wraps a transient backing-store failure. Dispatch for
// the affected event is deferred, not dropped.
type PreferenceStoreError struct {
	Op  string
	Err error
}

func (e *PreferenceStoreError) Error() string {
	return fmt.Sprintf("preference store %s: %v", e.Op, e.Err)
}

func (e *PreferenceStoreError) Unwrap() error { return e.Err }

// ChannelDeliveryError wraps a single adapter failure. It is recorded in the
// DeliveryResult and never propagates to other channels or events.
type ChannelDeliveryError struct {
	Channel Channel
	Err     error
}

func (e *ChannelDeliveryError) Error() string {
	return fmt.Sprintf("channel %s delivery failed: %v", e.Channel, e.Err)
}

func (e *ChannelDeliveryError) Unwrap() error { return e.Err }

// ErrNotFound is returned by stores when no record exists for a key.
var ErrNotFound = errors.New("not found")

// APIResponse is the JSON envelope every HTTP handler returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
}
