package dispatch

import (
	"fmt"

	"github.com/stolenhq/notify/internal/models"
)

// Convenience builders for the common producer events. They only assemble a
// fully-formed event; all policy lives in Send.

func DeviceRegistered(userID, deviceName string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryDevice,
		Type:     "device_registered",
		Title:    "Device Registered",
		Message:  fmt.Sprintf("%s has been registered and is now protected.", deviceName),
		Metadata: map[string]interface{}{"device_name": deviceName},
		Priority: models.PriorityOf(4),
	}
}

func DeviceReportedStolen(userID, deviceName string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategorySecurity,
		Type:     "device_reported_stolen",
		Title:    "Device Reported Stolen",
		Message:  fmt.Sprintf("%s has been flagged as stolen. Marketplace listings are blocked.", deviceName),
		Metadata: map[string]interface{}{"device_name": deviceName},
		Priority: models.PriorityOf(9),
	}
}

func PaymentReceived(userID, amount string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryPayment,
		Type:     "payment_received",
		Title:    "Payment Received",
		Message:  fmt.Sprintf("You received %s", amount),
		Metadata: map[string]interface{}{"amount": amount},
		Priority: models.PriorityOf(8),
	}
}

func TransferInitiated(userID, deviceName, recipient string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryTransfer,
		Type:     "transfer_initiated",
		Title:    "Ownership Transfer Started",
		Message:  fmt.Sprintf("Transfer of %s to %s is awaiting confirmation.", deviceName, recipient),
		Metadata: map[string]interface{}{"device_name": deviceName, "recipient": recipient},
		Priority: models.PriorityOf(6),
	}
}

func SecurityAlert(userID, detail string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategorySecurity,
		Type:     "security_alert",
		Title:    "Security Alert",
		Message:  detail,
		Priority: models.PriorityOf(9),
	}
}

func MarketplaceOffer(userID, listing, amount string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryMarketplace,
		Type:     "offer_received",
		Title:    "New Offer",
		Message:  fmt.Sprintf("You received an offer of %s on %s.", amount, listing),
		Metadata: map[string]interface{}{"listing": listing, "amount": amount},
		Priority: models.PriorityOf(5),
	}
}

func RepairStatusChanged(userID, deviceName, status string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryRepair,
		Type:     "repair_status_changed",
		Title:    "Repair Update",
		Message:  fmt.Sprintf("Repair for %s is now %s.", deviceName, status),
		Metadata: map[string]interface{}{"device_name": deviceName, "status": status},
		Priority: models.PriorityOf(4),
	}
}

func InsuranceClaimUpdated(userID, claimID, status string) models.NotificationEvent {
	return models.NotificationEvent{
		UserID:   userID,
		Category: models.CategoryInsurance,
		Type:     "claim_updated",
		Title:    "Insurance Claim Update",
		Message:  fmt.Sprintf("Claim %s is now %s.", claimID, status),
		Metadata: map[string]interface{}{"claim_id": claimID, "status": status},
		Priority: models.PriorityOf(5),
	}
}
