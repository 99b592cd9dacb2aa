package events

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/models"
	"github.com/placebook/placebook/internal/rewards"
	log "github.com/sirupsen/logrus"
)

// eventTokenHeader carries the shared intake token.
const eventTokenHeader = "X-Event-Token"

// Handler accepts booking lifecycle events from the booking service and
// persists them for asynchronous dispatch.
type Handler struct {
	queue *rewards.Queue
	token string
}

// NewHandler constructs an events Handler.
func NewHandler(queue *rewards.Queue, token string) *Handler {
	return &Handler{queue: queue, token: token}
}

// RegisterEventRoutes registers the booking event intake route.
func RegisterEventRoutes(r *gin.Engine, h *Handler) {
	if r == nil || h == nil {
		return
	}
	r.POST("/v0/events/booking", h.Intake)
}

// bookingEventRequest defines the intake payload.
type bookingEventRequest struct {
	Type       string  `json:"type"`
	BookingID  uint64  `json:"booking_id"`
	UserID     uint64  `json:"user_id"`
	PlaceID    uint64  `json:"place_id"`
	TotalPrice float64 `json:"total_price"`
}

// Intake validates and enqueues one booking event. Accepting the event only
// persists it; ledger application happens in the dispatcher.
func (h *Handler) Intake(c *gin.Context) {
	if h.token == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(eventTokenHeader)), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid event token"})
		return
	}

	var body bookingEventRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch body.Type {
	case models.EventBookingCompleted, models.EventBookingCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}
	if body.BookingID == 0 || body.UserID == 0 || body.PlaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id, user_id and place_id are required"})
		return
	}

	errEnqueue := h.queue.Enqueue(c.Request.Context(), rewards.BookingEvent{
		Type:       body.Type,
		BookingID:  body.BookingID,
		UserID:     body.UserID,
		PlaceID:    body.PlaceID,
		TotalPrice: body.TotalPrice,
	})
	if errEnqueue != nil {
		log.WithError(errEnqueue).WithField("booking_id", body.BookingID).
			Warn("events: enqueue booking event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store event failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
