package models

import "time"

// UpdateType classifies entries in the live feed.
type UpdateType string

const (
	UpdateBalance      UpdateType = "balance"
	UpdateTransaction  UpdateType = "transaction"
	UpdateSecurity     UpdateType = "security"
	UpdateSystem       UpdateType = "system"
	UpdateNotification UpdateType = "notification"
)

// UpdatePriority is the three-level scale used by the feed UI. It is not
// interchangeable with the 0-10 dispatch scale; PriorityLevel is the only
// sanctioned mapping between the two.
type UpdatePriority string

const (
	PriorityLow    UpdatePriority = "low"
	PriorityMedium UpdatePriority = "medium"
	PriorityHigh   UpdatePriority = "high"
)

// PriorityLevel maps a 0-10 dispatch priority onto the feed scale:
// 0-3 low, 4-7 medium, 8-10 high.
func PriorityLevel(priority int) UpdatePriority {
	switch {
	case priority >= UrgentPriority:
		return PriorityHigh
	case priority >= 4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// RealTimeUpdate is the client-visible projection of a notification event
// pushed over the live subscription.
type RealTimeUpdate struct {
	ID          string                 `json:"id"`
	Type        UpdateType             `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Priority    UpdatePriority         `json:"priority"`
	Read        bool                   `json:"read"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// UpdateTypeFor projects a dispatch category onto a feed update type.
func UpdateTypeFor(category Category) UpdateType {
	switch category {
	case CategoryPayment, CategoryTransfer:
		return UpdateTransaction
	case CategorySecurity:
		return UpdateSecurity
	case CategoryAdmin:
		return UpdateSystem
	default:
		return UpdateNotification
	}
}

// ConnectionStatus describes the health of one live subscription.
type ConnectionStatus struct {
	Connected         bool       `json:"connected"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
}
