package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/dispatch"
	"github.com/stolenhq/notify/internal/models"
)

type SendNotificationRequest struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id" binding:"required"`
	Category     string                 `json:"category" binding:"required"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title" binding:"required"`
	Message      string                 `json:"message" binding:"required"`
	Metadata     map[string]interface{} `json:"metadata"`
	Priority     *int                   `json:"priority"`
	Channels     []string               `json:"channels"`
	ScheduledFor *time.Time             `json:"scheduled_for"`
	ExpiresAt    *time.Time             `json:"expires_at"`
}

func (r SendNotificationRequest) toEvent() models.NotificationEvent {
	event := models.NotificationEvent{
		ID:           r.ID,
		UserID:       r.UserID,
		Category:     models.Category(r.Category),
		Type:         r.Type,
		Title:        r.Title,
		Message:      r.Message,
		Metadata:     r.Metadata,
		Priority:     r.Priority,
		ScheduledFor: r.ScheduledFor,
		ExpiresAt:    r.ExpiresAt,
	}
	for _, ch := range r.Channels {
		event.Channels = append(event.Channels, models.Channel(ch))
	}
	return event
}

type SendBatchRequest struct {
	Events []SendNotificationRequest `json:"events" binding:"required"`
}

type NotificationHandler struct {
	svc *dispatch.Service
	log *zap.Logger
}

func NewNotificationHandler(svc *dispatch.Service, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, log: log}
}

func (n *NotificationHandler) Send(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	ctx := dispatch.WithCorrelationID(c.Request.Context(), c.GetString("correlation_id"))
	result, err := n.svc.Send(ctx, req.toEvent())
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   verr.Error(),
				Message: "Validation failed",
			})
			return
		}
		n.log.Error("dispatch failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   "failed to dispatch notification",
			Message: "Service Unavailable",
			Data:    result,
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification dispatched",
		Data:    result,
	})
}

func (n *NotificationHandler) SendBatch(c *gin.Context) {
	var req SendBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	events := make([]models.NotificationEvent, len(req.Events))
	for i, r := range req.Events {
		events[i] = r.toEvent()
	}

	ctx := dispatch.WithCorrelationID(c.Request.Context(), c.GetString("correlation_id"))
	results := n.svc.SendBatch(ctx, events)

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Batch processed",
		Data:    results,
	})
}

func (n *NotificationHandler) GetPreferences(c *gin.Context) {
	userID := c.Param("user_id")
	prefs, err := n.svc.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		n.log.Error("preference lookup failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   "preference store unavailable",
			Message: "Service Unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Preferences retrieved",
		Data:    prefs,
	})
}

func (n *NotificationHandler) UpdatePreferences(c *gin.Context) {
	userID := c.Param("user_id")
	var prefs []models.NotificationPreference
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	if err := n.svc.UpdatePreferences(c.Request.Context(), userID, prefs); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   verr.Error(),
				Message: "Validation failed",
			})
			return
		}
		n.log.Error("preference update failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   "preference store unavailable",
			Message: "Service Unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Preferences updated",
	})
}
